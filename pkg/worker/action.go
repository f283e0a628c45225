package worker

import (
	"strings"

	"github.com/harun/supportdesk/internal/jsonrepair"
	"github.com/harun/supportdesk/pkg/llm"
	"github.com/tidwall/gjson"
)

// GenericPrompt is shown when the model's reply cannot be interpreted.
const GenericPrompt = "Could you share a few more details so I can continue with your request?"

// Action is the terminal or tool-requesting decision read from a model
// reply. It is one of Clarify, Complete or UseTools.
type Action interface {
	isAction()
}

// Clarify pauses the task until the customer answers.
type Clarify struct {
	Message        string
	RequiredFields []string
}

// Complete finishes the task. Context entries are published to the
// capability's shared namespace.
type Complete struct {
	Message string
	Context map[string]interface{}
}

// UseTools asks for tool calls through the text protocol.
type UseTools struct {
	Calls   []llm.ToolCall
	Message string
}

func (Clarify) isAction()  {}
func (Complete) isAction() {}
func (UseTools) isAction() {}

// ParseAction decodes a text reply. It never fails: anything it cannot read
// becomes a Clarify.
func ParseAction(text string) Action {
	body, ok := jsonObject(text)
	if !ok {
		return Clarify{Message: GenericPrompt}
	}

	res := gjson.Parse(body)
	message := strings.TrimSpace(res.Get("message").String())

	switch strings.ToLower(strings.TrimSpace(res.Get("action").String())) {
	case "need_info", "respond":
		if message == "" {
			message = GenericPrompt
		}
		return Clarify{Message: message, RequiredFields: stringList(res.Get("required_info"))}

	case "completed", "complete":
		ctx := map[string]interface{}{}
		if c := res.Get("context"); c.IsObject() {
			if m, ok := c.Value().(map[string]interface{}); ok {
				ctx = m
			}
		}
		return Complete{Message: message, Context: ctx}

	case "use_tools":
		var calls []llm.ToolCall
		res.Get("tools_to_call").ForEach(func(_, item gjson.Result) bool {
			name := strings.TrimSpace(firstOf(item, "tool", "name").String())
			if name == "" {
				return true
			}
			params := map[string]interface{}{}
			if p := firstOf(item, "params", "parameters", "arguments"); p.IsObject() {
				if m, ok := p.Value().(map[string]interface{}); ok {
					params = m
				}
			}
			calls = append(calls, llm.ToolCall{
				ID:         strings.TrimSpace(item.Get("id").String()),
				Name:       name,
				Parameters: params,
			})
			return true
		})
		if len(calls) == 0 {
			if message == "" {
				message = GenericPrompt
			}
			return Clarify{Message: message}
		}
		return UseTools{Calls: calls, Message: message}
	}

	if message != "" {
		return Clarify{Message: message}
	}
	return Clarify{Message: GenericPrompt}
}

// jsonObject finds the JSON object in a reply, tolerating code fences and
// surrounding prose. Invalid JSON gets one repair pass.
func jsonObject(text string) (string, bool) {
	text = jsonrepair.StripFences(text)
	if isObject(text) {
		return text, true
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	body := text[start : end+1]
	if isObject(body) {
		return body, true
	}
	if body = jsonrepair.Repair(body); isObject(body) {
		return body, true
	}
	return "", false
}

func isObject(s string) bool {
	return gjson.Valid(s) && gjson.Parse(s).IsObject()
}

func firstOf(res gjson.Result, keys ...string) gjson.Result {
	for _, key := range keys {
		if v := res.Get(key); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func stringList(res gjson.Result) []string {
	if !res.Exists() {
		return nil
	}
	if !res.IsArray() {
		if s := strings.TrimSpace(res.String()); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, item := range res.Array() {
		if s := strings.TrimSpace(item.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}
