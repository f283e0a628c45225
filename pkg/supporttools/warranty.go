package supporttools

import (
	"context"

	"github.com/harun/supportdesk/pkg/toolexecutor"
)

const (
	CapabilityWarranty = "warranty"
	CapabilityReturns  = "returns"
)

const (
	warrantyCoverage    = "Your product is under warranty until Dec 2025. It covers manufacturing defects."
	replacementEligible = " Since troubleshooting didn't resolve the issue, you may be eligible for a replacement."
	returnPolicy        = "I can help you with a return. You have 30 days from purchase. I'll email you a return label."
)

func warrantyTools() []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        "check_warranty",
			Description: "Look up warranty coverage for the customer's robot",
			Capability:  CapabilityWarranty,
			Parameters: []toolexecutor.ToolParameter{
				{Name: "serial_number", Types: []string{"string", "integer"}, Description: "Robot serial number, if known"},
				{Name: "issue_resolved", Type: "boolean", Description: "Whether earlier troubleshooting fixed the problem, if known"},
			},
			Handler: checkWarranty,
		},
	}
}

func returnsTools() []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        "start_return",
			Description: "Start a product return and email the customer a return label",
			Capability:  CapabilityReturns,
			Parameters: []toolexecutor.ToolParameter{
				{Name: "order_reference", Type: "string", Description: "Bill or order id, if known"},
				{Name: "reason", Type: "string", Description: "Reason for the return, if given"},
			},
			Handler: startReturn,
		},
	}
}

func checkWarranty(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	result := warrantyCoverage
	if resolved, ok := boolParam(params, "issue_resolved"); ok && !resolved {
		result += replacementEligible
	}
	return result, nil
}

func startReturn(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return returnPolicy, nil
}
