// Package conversation defines the per-conversation state the router owns:
// the phase, the episode's task graph, the shared context workers exchange
// facts through, and the pending-input prompt.
package conversation
