package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogger_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	defer GetAuditLogger().Close()

	RecordTaskAudit(context.Background(), "conv-1", "task-1", "completed", map[string]interface{}{"capability": "billing"})
	RecordToolAudit(context.Background(), "refund_ticket", "conv-1", "success", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"task:completed"`)
	assert.Contains(t, string(data), `"task_id":"task-1"`)
	assert.Contains(t, string(data), `"action":"tool:refund_ticket"`)
}

func TestAuditLogger_RedactsToolParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	defer GetAuditLogger().Close()

	RecordToolAudit(context.Background(), "update_payment", "conv-1", "success", map[string]interface{}{
		"params": map[string]interface{}{
			"phone": "5551234567",
			"card":  "4111 1111 1111 1111",
			"robot": "R1",
		},
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.NotContains(t, line, "5551234567")
	assert.NotContains(t, line, "4111 1111 1111 1111")
	assert.Contains(t, line, "[REDACTED]")
	assert.Contains(t, line, `"robot":"R1"`)
	assert.Contains(t, line, `"action":"tool:update_payment"`)
}

func TestMetricsHandler_ExposesSupportMetrics(t *testing.T) {
	RecordTaskTransition("billing", "completed")
	RecordDecomposition("tasks")
	assert.NotNil(t, MetricsHandler())
}
