package conversation

import "github.com/harun/supportdesk/pkg/llm"

func userMsg(text string) llm.Message {
	return llm.Message{Role: llm.RoleUser, Content: text}
}
