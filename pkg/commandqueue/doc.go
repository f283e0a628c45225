// Package commandqueue serializes work per lane.
//
// The router runs every conversation step through the lane returned by
// ConversationLane, so two messages for the same conversation never
// interleave while steps for different conversations proceed concurrently.
//
//	queue := commandqueue.New()
//	defer queue.Close()
//	reply, err := queue.EnqueueWithContext(ctx, commandqueue.ConversationLane("c-1"), step, nil)
package commandqueue
