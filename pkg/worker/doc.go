// Package worker runs one task through its capability's model/tool loop.
//
// Each turn sends the conversation and the capability's tool schemas to the
// model. Tool calls, whether native or requested through the JSON action
// protocol, are executed by the toolexecutor and fed back as tool messages.
// A text reply ends the loop as a terminal Action: Clarify blocks the task
// for human input, Complete finishes it. The loop is capped at MaxTurns
// model calls; past that the task fails with ErrToolLoopExceeded.
package worker
