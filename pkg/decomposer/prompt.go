package decomposer

import "strings"

const decompositionPrompt = `You are the supervisor of a customer support desk. Read the conversation and split the customer's latest request into subtasks for the specialised agents below.

Available agents:
- troubleshoot: diagnoses and resolves product issues and technical problems
- billing: payments, invoices, refunds, charges
- warranty: warranty status, coverage, claims
- returns: return and exchange requests

Rules:
- Greetings, thanks and small talk are casual. Reply with an empty array [].
- If the request is actionable but you cannot tell what the customer wants, reply with a JSON string asking one short clarifying question.
- Otherwise reply with a JSON array of tasks:
[
  {
    "id": "task_1",
    "description": "brief description of what needs to be done",
    "capability": "troubleshoot",
    "dependencies": [],
    "priority": 1
  }
]
- Lower priority numbers run first. Only list dependencies on ids you created.
- Create one task per distinct need. Do not invent tasks the customer did not ask for.

Reply ONLY with JSON. No prose, no markdown.`

const (
	welcomePrompt = `Write a friendly greeting for a customer support assistant. Mention that you can help with troubleshooting, billing, warranty, returns and account questions, then ask what the customer needs. Keep it to 2-3 sentences. Reply with the message only.`

	helpfulPrompt = `The customer has not asked a specific question yet. Acknowledge they may be browsing and give two or three concrete examples of what you can help with, then invite a question. Keep it to 2 sentences. Reply with the message only.`

	directPrompt = `The customer keeps chatting without asking for help. Politely ask what specific issue they are experiencing. Keep it to 1-2 sentences. Reply with the message only.`

	closingPrompt = `The customer has sent several casual messages without asking for help. Let them know it looks like they don't need assistance right now and that they are welcome back any time. Keep it to 1-2 sentences. Reply with the message only.`
)

// Fixed replies used when the model cannot phrase a casual turn.
const (
	FallbackWelcome = "Hello! I can help you with product troubleshooting, billing questions, warranty information, returns, and account management. What do you need help with today?"
	FallbackHelpful = "I'm here to help! For example, I can troubleshoot issues, check warranty status, or answer billing questions. What would you like to know?"
	FallbackDirect  = "I'd love to help! Could you let me know what specific issue you're experiencing?"
	FallbackClosing = "It looks like you might not need assistance right now. Feel free to reach out whenever you have a question!"
)

func systemPrompt(grounding string) string {
	grounding = strings.TrimSpace(grounding)
	if grounding == "" {
		return decompositionPrompt
	}
	return decompositionPrompt + "\n\nRelevant support playbook:\n" + grounding
}

// casualPrompt picks the instruction and fallback for the n-th consecutive
// casual turn, counting from 1.
func casualPrompt(turn int) (string, string) {
	switch {
	case turn <= 1:
		return welcomePrompt, FallbackWelcome
	case turn == 2:
		return helpfulPrompt, FallbackHelpful
	case turn == 3:
		return directPrompt, FallbackDirect
	default:
		return closingPrompt, FallbackClosing
	}
}
