package worker

import (
	"fmt"
	"strings"

	"github.com/harun/supportdesk/pkg/conversation"
	"github.com/harun/supportdesk/pkg/taskgraph"
)

const protocol = `Tools can be called natively. When you are not calling a tool, reply with ONE JSON object and nothing else:
{
  "action": "need_info" | "respond" | "use_tools" | "completed",
  "message": "text shown to the customer",
  "required_info": ["fields you still need"],
  "tools_to_call": [{"tool": "tool_name", "params": {}}],
  "context": {"key": "facts to hand to other agents"}
}
- need_info / respond: you need the customer to answer before continuing.
- use_tools: run the listed tools; you will get their results.
- completed: the task is done; "message" summarises the outcome.`

func systemPrompt(base string, task taskgraph.Task, scope *conversation.Scope, grounding string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	b.WriteString("\n\n")
	b.WriteString(protocol)
	fmt.Fprintf(&b, "\n\nCurrent task (%s): %s", task.ID, task.Description)

	if scope != nil && scope.Shared().Len() > 0 {
		b.WriteString("\n\nShared context from this conversation:\n")
		b.WriteString(scope.Shared().String())
	}
	if g := strings.TrimSpace(grounding); g != "" {
		b.WriteString("\n\nPlaybook:\n")
		b.WriteString(g)
	}
	return b.String()
}
