package supporttools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/harun/supportdesk/pkg/toolexecutor"
)

const CapabilityBilling = "billing"

var (
	errInvalidAmount = errors.New("Invalid amount provided. Please enter a numeric value.")
	errNoAmount      = errors.New("Please calculate the refund amount before raising a refund ticket.")
)

// BillItem is one line of a bill.
type BillItem struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Bill is a customer invoice.
type Bill struct {
	BillID      string     `json:"bill_id"`
	DueDate     string     `json:"due_date"`
	PaymentMode string     `json:"payment_mode"`
	Items       []BillItem `json:"items"`
	TotalAmount float64    `json:"total_amount"`
}

// Customer is the billing account behind a phone number.
type Customer struct {
	Name       string `json:"name"`
	CustomerID string `json:"customer_id"`
	PhNumber   string `json:"ph_number"`
	Bills      []Bill `json:"bills"`
}

// customerFor returns the mock account; the phone number is echoed back.
func customerFor(phNumber string) Customer {
	return Customer{
		Name:       "John Doe",
		CustomerID: "U123456",
		PhNumber:   phNumber,
		Bills: []Bill{
			{
				BillID:      "B001",
				DueDate:     "2024-07-15",
				PaymentMode: "UPI",
				Items: []BillItem{
					{Name: "Robotic Floor Cleaner M612", Price: 249.99},
					{Name: "Cleaner Solution (1L)", Price: 19.99},
					{Name: "Replacement Mop Pads (Pack of 3)", Price: 29.99},
				},
				TotalAmount: 299.97,
			},
			{
				BillID:      "B002",
				DueDate:     "2024-09-05",
				PaymentMode: "Credit Card",
				Items: []BillItem{
					{Name: "Robotic Floor Cleaner M612", Price: 249.99},
					{Name: "Dust Filter Cartridge", Price: 15.49},
					{Name: "Mop Head Replacement Kit", Price: 22.75},
				},
				TotalAmount: 488.23,
			},
		},
	}
}

var phNumberParam = toolexecutor.ToolParameter{
	Name:        "ph_number",
	Types:       []string{"string", "integer"},
	Description: "Customer phone number",
	Required:    true,
}

var billIDParam = toolexecutor.ToolParameter{
	Name:        "bill_id",
	Type:        "string",
	Description: "Bill identifier, e.g. B001",
	Required:    true,
}

func billingTools() []toolexecutor.ToolDefinition {
	return []toolexecutor.ToolDefinition{
		{
			Name:        "get_bills",
			Description: "Get all bills for a phone number",
			Capability:  CapabilityBilling,
			Parameters:  []toolexecutor.ToolParameter{phNumberParam},
			Handler:     getBills,
		},
		{
			Name:        "get_bill_by_id",
			Description: "Get the details of one bill",
			Capability:  CapabilityBilling,
			Parameters:  []toolexecutor.ToolParameter{phNumberParam, billIDParam},
			Handler:     getBillByID,
		},
		{
			Name:        "send_bill",
			Description: "Send a bill to the customer by email or SMS",
			Capability:  CapabilityBilling,
			Parameters: []toolexecutor.ToolParameter{
				phNumberParam,
				billIDParam,
				{Name: "mode", Type: "string", Description: "Delivery mode (email or SMS)", Required: true},
			},
			Handler: sendBill,
		},
		{
			Name:        "refund_ticket",
			Description: "Raise a refund ticket for a bill once the amount is confirmed with the customer",
			Capability:  CapabilityBilling,
			Parameters: []toolexecutor.ToolParameter{
				phNumberParam,
				billIDParam,
				{Name: "amount", Types: []string{"number", "string"}, Description: "Refund amount", Required: true},
				{Name: "reason", Type: "string", Description: "Reason for the refund", Required: true},
			},
			Handler: refundTicket,
		},
	}
}

func getBills(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return customerFor(stringParam(params, "ph_number")), nil
}

func getBillByID(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	ph := stringParam(params, "ph_number")
	billID := stringParam(params, "bill_id")

	customer := customerFor(ph)
	for _, bill := range customer.Bills {
		if strings.EqualFold(bill.BillID, billID) {
			return map[string]interface{}{
				"ph_number": ph,
				"name":      customer.Name,
				"bill":      bill,
			}, nil
		}
	}
	return nil, fmt.Errorf("no bill %s found for phone number %s", billID, ph)
}

func sendBill(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return fmt.Sprintf("Bill %s has been sent to phone number %s via %s.",
		stringParam(params, "bill_id"), stringParam(params, "ph_number"), stringParam(params, "mode")), nil
}

func refundTicket(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	var amount float64
	switch v := params["amount"].(type) {
	case float64:
		amount = v
	case int:
		amount = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(v), "$"), 64)
		if err != nil {
			return nil, errInvalidAmount
		}
		amount = parsed
	default:
		return nil, errInvalidAmount
	}
	if amount <= 0 {
		return nil, errNoAmount
	}

	return fmt.Sprintf("A refund ticket of $%.2f for bill %s has been raised for phone number %s due to '%s'.",
		amount, stringParam(params, "bill_id"), stringParam(params, "ph_number"), stringParam(params, "reason")), nil
}
