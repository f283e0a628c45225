// Package taskgraph holds the tasks of one support episode and decides which
// one runs next.
//
// Invariants:
// - Dependencies reference tasks in the graph; self-dependencies and cycles
//   are rejected when tasks are added.
// - NextReady only returns Pending tasks whose dependencies are all Completed.
// - At most one task is InProgress at any instant.
// - Completed and Failed are terminal; a terminal task's result never changes.
//
// Usage:
//
//	g := taskgraph.New()
//	if err := g.AddTasks(tasks); err != nil {
//		return err
//	}
//	for {
//		t, ok := g.NextReady()
//		if !ok {
//			break
//		}
//		_ = g.MarkInProgress(t.ID)
//		// ...
//	}
package taskgraph
