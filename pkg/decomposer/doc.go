// Package decomposer turns a customer's request into a task list.
//
// One model call per Decompose. The reply is read leniently: code fences are
// stripped, and output that is not valid JSON gets one repair pass before it
// is reported as ErrParse. Casual turns (greetings, thanks) come back as an
// Empty outcome and are answered through CasualReply.
package decomposer
