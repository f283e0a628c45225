// Package playbook indexes the support playbooks (markdown files) and
// retrieves grounding context for a customer request.
//
// Files are split into sections on "##" headings. Sections are searchable
// through SQLite FTS5 (bm25) and, when an Embedder is configured, through
// sqlite-vec cosine distance; the two scores are merged with weights.
//
// Usage:
//
//	idx, _ := playbook.NewIndex(playbook.Config{Dir: "playbooks", DBPath: "playbook.db"})
//	defer idx.Close()
//	grounding, _ := idx.Extract(ctx, "my vacuum shows E102")
package playbook
