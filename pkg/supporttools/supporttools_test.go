package supporttools

import (
	"context"
	"testing"

	"github.com/harun/supportdesk/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) *toolexecutor.ToolExecutor {
	t.Helper()
	te := toolexecutor.New()
	require.NoError(t, Register(te))
	return te
}

func TestRegister_AllCapabilityToolsExist(t *testing.T) {
	te := newExecutor(t)
	for _, c := range Capabilities() {
		for _, name := range c.Tools {
			tool := te.GetTool(name)
			require.NotNil(t, tool, name)
			assert.Equal(t, c.Name, tool.Capability)
		}
	}
	assert.Error(t, Register(nil))
}

func TestRefundTicket(t *testing.T) {
	te := newExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		amount  interface{}
		success bool
		want    string
	}{
		{name: "negative string", amount: "-5", want: "Please calculate the refund amount before raising a refund ticket."},
		{name: "zero", amount: 0.0, want: "Please calculate the refund amount before raising a refund ticket."},
		{name: "not numeric", amount: "five", want: "Invalid amount provided. Please enter a numeric value."},
		{name: "numeric string", amount: "20.5", success: true,
			want: "A refund ticket of $20.50 for bill B001 has been raised for phone number 1234567890 due to 'double charge'."},
		{name: "number", amount: 188.26, success: true,
			want: "A refund ticket of $188.26 for bill B001 has been raised for phone number 1234567890 due to 'double charge'."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := te.Execute(ctx, "refund_ticket", map[string]interface{}{
				"ph_number": "1234567890",
				"bill_id":   "B001",
				"amount":    tt.amount,
				"reason":    "double charge",
			}, nil)

			assert.Equal(t, tt.success, result.Success)
			if tt.success {
				assert.Equal(t, tt.want, result.Output)
			} else {
				assert.Equal(t, tt.want, result.Error)
			}
		})
	}
}

func TestGetBillByID(t *testing.T) {
	te := newExecutor(t)

	result := te.Execute(context.Background(), "get_bill_by_id", map[string]interface{}{
		"ph_number": 1234567890.0,
		"bill_id":   "b002",
	}, nil)
	require.True(t, result.Success, result.Error)

	out := result.Output.(map[string]interface{})
	assert.Equal(t, "1234567890", out["ph_number"])
	assert.Equal(t, 488.23, out["bill"].(Bill).TotalAmount)

	missing := te.Execute(context.Background(), "get_bill_by_id", map[string]interface{}{
		"ph_number": "1234567890",
		"bill_id":   "B999",
	}, nil)
	assert.False(t, missing.Success)
}

func TestGetBills(t *testing.T) {
	te := newExecutor(t)
	result := te.Execute(context.Background(), "get_bills", map[string]interface{}{"ph_number": "555"}, nil)
	require.True(t, result.Success)

	customer := result.Output.(Customer)
	assert.Equal(t, "John Doe", customer.Name)
	assert.Len(t, customer.Bills, 2)
	assert.Contains(t, result.Text(), `"bill_id":"B001"`)
}

func TestTroubleshootTools(t *testing.T) {
	te := newExecutor(t)
	ctx := context.Background()

	status := te.Execute(ctx, "get_robot_status", map[string]interface{}{"serial_number": "12345"}, nil)
	require.True(t, status.Success)
	robot := status.Output.(RobotStatus)
	assert.Equal(t, "12345", robot.SerialNumber)
	assert.Equal(t, "STALLED", robot.ComponentHealth["Left Wheel Motor"])

	repair := te.Execute(ctx, "schedule_repair", map[string]interface{}{"serial_number": "12345"}, nil)
	assert.False(t, repair.Success)
	assert.Equal(t, "Error: Missing part identification or service address.", repair.Text())

	repair = te.Execute(ctx, "schedule_repair", map[string]interface{}{
		"serial_number": "12345",
		"part_needed":   "Left Wheel Motor",
		"address":       "1 Main St",
	}, nil)
	assert.True(t, repair.Success)
	assert.Equal(t, "Repair ticket created for 12345. A technician will arrive at 1 Main St with a replacement Left Wheel Motor within 48 hours.", repair.Output)
}

func TestWarrantyAndReturns(t *testing.T) {
	te := newExecutor(t)
	ctx := context.Background()

	plain := te.Execute(ctx, "check_warranty", map[string]interface{}{}, nil)
	assert.Equal(t, warrantyCoverage, plain.Output)

	unresolved := te.Execute(ctx, "check_warranty", map[string]interface{}{"issue_resolved": false}, nil)
	assert.Equal(t, warrantyCoverage+replacementEligible, unresolved.Output)

	ret := te.Execute(ctx, "start_return", map[string]interface{}{"order_reference": "B001"}, nil)
	assert.Equal(t, returnPolicy, ret.Output)
}

func TestCapabilityPolicy(t *testing.T) {
	c, ok := Lookup(CapabilityWarranty)
	require.True(t, ok)
	assert.True(t, c.Policy().IsToolAllowed("check_warranty"))
	assert.False(t, c.Policy().IsToolAllowed("refund_ticket"))

	_, ok = Lookup("account")
	assert.False(t, ok)
}
