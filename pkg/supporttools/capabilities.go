package supporttools

import (
	"errors"
	"fmt"

	"github.com/harun/supportdesk/pkg/toolexecutor"
)

// Capability is a specialised worker behaviour: what it handles, how it is
// instructed, and which tools it may call.
type Capability struct {
	Name        string
	Description string
	Prompt      string
	Tools       []string
}

// Policy returns the tool policy that confines a worker to its own tools.
func (c Capability) Policy() *toolexecutor.ToolPolicy {
	return &toolexecutor.ToolPolicy{Allow: append([]string(nil), c.Tools...)}
}

const billingPrompt = `You are a billing support agent for SmartClean Robotics.
Work out what the customer needs regarding their bills, which details you still need (phone number, bill id, amount) and which tools to call.

Rules:
- Confirm the bill details and the refund amount with the customer before calling refund_ticket, and raise the ticket only after they agree.
- If the customer does not remember the bill id, call get_bills and narrow it down from what they tell you.
- Never invent bill data; use the tools.`

const troubleshootPrompt = `You are a technical support specialist for SmartClean Robotics robot vacuums.
Identify the issue or error code, collect what you need to diagnose it (serial number first), consult the playbook context, and pick the diagnostic or repair tool.

Rules:
- Before reset_firmware, warn that custom maps and schedules will be deleted and wait for explicit consent.
- For hardware faults call get_robot_status first to identify part_needed, then schedule_repair with the customer's address.
- If the customer gives an error code without a serial number, ask for the serial number.
- When you finish, set "issue_resolved" in the context object to true or false.`

const warrantyPrompt = `You are a warranty specialist for SmartClean Robotics.
Use check_warranty to look up coverage. If the shared context shows troubleshooting did not resolve the issue, pass issue_resolved=false so replacement eligibility is included.
Explain the coverage plainly and finish.`

const returnsPrompt = `You are a returns specialist for SmartClean Robotics.
Use start_return to open the return and send the label, then explain the return window to the customer and finish.`

var capabilities = []Capability{
	{
		Name:        CapabilityTroubleshoot,
		Description: "robot malfunctions, error codes, diagnostics, resets and repairs",
		Prompt:      troubleshootPrompt,
		Tools:       []string{"get_robot_status", "run_remote_diag", "reset_firmware", "schedule_repair"},
	},
	{
		Name:        CapabilityBilling,
		Description: "bills, charges, payments and refunds",
		Prompt:      billingPrompt,
		Tools:       []string{"get_bills", "get_bill_by_id", "send_bill", "refund_ticket"},
	},
	{
		Name:        CapabilityWarranty,
		Description: "warranty coverage and replacement eligibility",
		Prompt:      warrantyPrompt,
		Tools:       []string{"check_warranty"},
	},
	{
		Name:        CapabilityReturns,
		Description: "product returns and return labels",
		Prompt:      returnsPrompt,
		Tools:       []string{"start_return"},
	},
}

// Capabilities returns the built-in capabilities in a stable order.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilities))
	copy(out, capabilities)
	return out
}

// Lookup finds a capability by name.
func Lookup(name string) (Capability, bool) {
	for _, c := range capabilities {
		if c.Name == name {
			return c, true
		}
	}
	return Capability{}, false
}

// Register adds every support tool to the executor.
func Register(executor *toolexecutor.ToolExecutor) error {
	if executor == nil {
		return errors.New("tool executor is required")
	}

	groups := [][]toolexecutor.ToolDefinition{
		billingTools(),
		troubleshootTools(),
		warrantyTools(),
		returnsTools(),
	}
	for _, group := range groups {
		for _, tool := range group {
			if err := executor.RegisterTool(tool); err != nil {
				return fmt.Errorf("failed to register tool %s: %w", tool.Name, err)
			}
		}
	}
	return nil
}
