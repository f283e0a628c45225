// Package router drives a support conversation one inbound message at a time.
//
// A conversation moves through Idle, Decomposing, Dispatching,
// AwaitingHumanInput and Completed. Each Step loads the persisted state,
// compacts history, and either resumes the blocked task, retries an
// episode-level clarification, or starts a new episode. It runs tasks until
// one blocks or the graph is terminal, then saves the state again.
//
// Steps for the same conversation are serialized through a commandqueue lane.
package router
