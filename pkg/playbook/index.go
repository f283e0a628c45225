package playbook

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

func init() {
	sqlite_vec.Auto()
}

// ErrSyncInProgress is returned when Sync is called during another sync.
var ErrSyncInProgress = errors.New("playbook: sync already in progress")

// Section is a search hit.
type Section struct {
	ID           string   `json:"id"`
	File         string   `json:"file"`
	Heading      string   `json:"heading"`
	Content      string   `json:"content"`
	Score        float64  `json:"score"`
	VectorScore  *float64 `json:"vector_score,omitempty"`
	KeywordScore *float64 `json:"keyword_score,omitempty"`
}

// SearchOptions configures search behavior
type SearchOptions struct {
	Limit         int
	VectorWeight  float64
	KeywordWeight float64
	MinScore      float64
}

// Status describes the index.
type Status struct {
	Files    int        `json:"files"`
	Sections int        `json:"sections"`
	Dirty    bool       `json:"dirty"`
	Syncing  bool       `json:"syncing"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}

// SyncReport summarises one Sync.
type SyncReport struct {
	Indexed  int
	Skipped  int
	Pruned   int
	Sections int
}

// Config holds index settings.
type Config struct {
	Dir      string
	DBPath   string
	TopK     int
	Watch    bool
	Embedder Embedder // optional; nil disables vector search
	Logger   zerolog.Logger
}

// Index is the playbook search index.
type Index struct {
	db       *sql.DB
	dir      string
	topK     int
	embedder Embedder
	watcher  *FileWatcher
	logger   zerolog.Logger

	mu       sync.RWMutex
	dirty    bool
	syncing  bool
	lastSync *time.Time
}

// NewIndex opens (or creates) the index database.
func NewIndex(cfg Config) (*Index, error) {
	observability.EnsureRegistered()

	if cfg.Dir == "" {
		return nil, errors.New("playbook directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create playbook directory: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.Dir, "playbook.db")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 1
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{
		db:       db,
		dir:      cfg.Dir,
		topK:     cfg.TopK,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
		dirty:    true,
	}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if cfg.Watch {
		watcher, err := NewFileWatcher(cfg.Logger, idx.MarkDirty)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Watch(cfg.Dir); err != nil {
			watcher.Stop()
			db.Close()
			return nil, fmt.Errorf("failed to watch playbook directory: %w", err)
		}
		idx.watcher = watcher
	}

	idx.logger.Info().Str("dir", cfg.Dir).Bool("vector", cfg.Embedder != nil).Msg("Playbook index initialized")
	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			content_hash TEXT NOT NULL,
			indexed_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			file_id INTEGER NOT NULL,
			heading TEXT,
			content TEXT NOT NULL,
			FOREIGN KEY (file_id) REFERENCES files(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_sections_file ON sections(file_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
			section_id UNINDEXED,
			heading,
			content,
			tokenize='porter unicode61'
		);

		CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	if idx.embedder != nil {
		vectorSchema := fmt.Sprintf(`
			CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
				section_id TEXT PRIMARY KEY,
				embedding float[%d] distance_metric=cosine
			);
		`, idx.embedder.Dimension())
		if _, err := idx.db.Exec(vectorSchema); err != nil {
			return fmt.Errorf("failed to create vector table: %w", err)
		}
	}
	return nil
}

// Extract returns grounding context for text: the top-k sections joined by
// newlines, or "" when nothing matches.
func (idx *Index) Extract(ctx context.Context, text string) (string, error) {
	results, err := idx.Search(ctx, text, &SearchOptions{
		Limit:         idx.topK,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	})
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, r.Content)
	}
	return strings.Join(parts, "\n"), nil
}

// Search performs hybrid search (vector + keyword).
func (idx *Index) Search(ctx context.Context, query string, opts *SearchOptions) (results []Section, err error) {
	ctx, span := tracing.StartSpan(ctx, "supportdesk.playbook", "playbook.search",
		attribute.Int("query_length", len(query)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, idx.logger)
	start := time.Now()
	defer func() { observability.RecordPlaybookSearch(time.Since(start)) }()

	if strings.TrimSpace(query) == "" {
		return []Section{}, nil
	}
	if opts == nil {
		opts = &SearchOptions{Limit: 5, VectorWeight: 0.7, KeywordWeight: 0.3}
	}
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	idx.mu.RLock()
	dirty := idx.dirty
	idx.mu.RUnlock()
	if dirty {
		if _, err := idx.Sync(ctx); err != nil && !errors.Is(err, ErrSyncInProgress) {
			logger.Warn().Err(err).Msg("Sync failed before search")
		}
	}

	var (
		vectorResults  map[string]float64
		keywordResults map[string]float64
		vectorErr      error
		keywordErr     error
		wg             sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if idx.embedder != nil {
			vectorResults, vectorErr = idx.vectorSearch(ctx, query, 50)
		}
	}()
	go func() {
		defer wg.Done()
		keywordResults, keywordErr = idx.keywordSearch(ctx, query, 50)
	}()
	wg.Wait()

	if vectorErr != nil {
		logger.Warn().Err(vectorErr).Msg("Vector search failed, using keyword only")
	}
	if keywordErr != nil {
		logger.Warn().Err(keywordErr).Msg("Keyword search failed, using vector only")
	}
	if keywordErr != nil && (idx.embedder == nil || vectorErr != nil) {
		return nil, fmt.Errorf("playbook search failed: %w", keywordErr)
	}

	results = idx.merge(ctx, vectorResults, keywordResults, opts)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	logger.Debug().Int("results", len(results)).Msg("Playbook search completed")
	return results, nil
}

// vectorSearch returns section id -> cosine similarity.
func (idx *Index) vectorSearch(ctx context.Context, query string, limit int) (map[string]float64, error) {
	vectors, err := idx.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	blob, err := sqlite_vec.SerializeFloat32(vectors[0])
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query embedding: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT section_id, vec_distance_cosine(embedding, ?) AS distance
		FROM embeddings
		ORDER BY distance ASC
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var id string
		var distance float64
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, err
		}
		out[id] = 1.0 - distance
	}
	return out, rows.Err()
}

// keywordSearch returns section id -> positive bm25 score.
func (idx *Index) keywordSearch(ctx context.Context, query string, limit int) (map[string]float64, error) {
	match := matchQuery(query)
	if match == "" {
		return map[string]float64{}, nil
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT section_id, bm25(sections_fts) AS score
		FROM sections_fts
		WHERE sections_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		out[id] = -score
	}
	return out, rows.Err()
}

func (idx *Index) merge(ctx context.Context, vector, keyword map[string]float64, opts *SearchOptions) []Section {
	var maxKeyword float64
	for _, s := range keyword {
		if s > maxKeyword {
			maxKeyword = s
		}
	}

	ids := map[string]bool{}
	for id := range vector {
		ids[id] = true
	}
	for id := range keyword {
		ids[id] = true
	}

	vectorWeight, keywordWeight := opts.VectorWeight, opts.KeywordWeight
	if idx.embedder == nil || len(vector) == 0 {
		vectorWeight, keywordWeight = 0, 1
	}

	scored := make([]Section, 0, len(ids))
	for id := range ids {
		s := Section{ID: id}
		if v, ok := vector[id]; ok {
			n := (v + 1) / 2
			s.VectorScore = &n
			s.Score += n * vectorWeight
		}
		if k, ok := keyword[id]; ok {
			n := 1.0
			if maxKeyword > 0 {
				n = k / maxKeyword
			}
			s.KeywordScore = &n
			s.Score += n * keywordWeight
		}
		if opts.MinScore > 0 && s.Score < opts.MinScore {
			continue
		}
		scored = append(scored, s)
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].ID < scored[j].ID
		}
		return scored[i].Score > scored[j].Score
	})

	out := make([]Section, 0, len(scored))
	for _, s := range scored {
		err := idx.db.QueryRowContext(ctx, `
			SELECT s.heading, s.content, f.path
			FROM sections s
			JOIN files f ON s.file_id = f.id
			WHERE s.id = ?
		`, s.ID).Scan(&s.Heading, &s.Content, &s.File)
		if err != nil {
			idx.logger.Warn().Err(err).Str("section", s.ID).Msg("Failed to fetch section")
			continue
		}
		out = append(out, s)
	}
	return out
}

// Sync indexes new and changed markdown files and drops deleted ones.
func (idx *Index) Sync(ctx context.Context) (report SyncReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "supportdesk.playbook", "playbook.sync")
	defer func() { tracing.EndSpan(span, err) }()
	logger := tracing.LoggerFromContext(ctx, idx.logger)

	idx.mu.Lock()
	if idx.syncing {
		idx.mu.Unlock()
		return report, ErrSyncInProgress
	}
	idx.syncing = true
	idx.mu.Unlock()

	defer func() {
		idx.mu.Lock()
		idx.syncing = false
		if err == nil {
			idx.dirty = false
			now := time.Now()
			idx.lastSync = &now
		}
		idx.mu.Unlock()
	}()

	start := time.Now()
	defer func() { observability.RecordPlaybookSync(time.Since(start)) }()

	var files []string
	err = filepath.WalkDir(idx.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			rel, _ := filepath.Rel(idx.dir, path)
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to walk playbook directory: %w", err)
	}

	for _, rel := range files {
		indexed, sections, fileErr := idx.indexFile(ctx, filepath.Join(idx.dir, rel), rel)
		if fileErr != nil {
			logger.Warn().Err(fileErr).Str("file", rel).Msg("Failed to index playbook")
			continue
		}
		if indexed {
			report.Indexed++
			report.Sections += sections
		} else {
			report.Skipped++
		}
	}

	report.Pruned, err = idx.prune(ctx, files)
	if err != nil {
		return report, fmt.Errorf("failed to prune deleted playbooks: %w", err)
	}

	status := idx.Status()
	observability.SetPlaybookSections(status.Sections)
	logger.Info().
		Int("indexed", report.Indexed).
		Int("skipped", report.Skipped).
		Int("pruned", report.Pruned).
		Int("sections", status.Sections).
		Dur("duration", time.Since(start)).
		Msg("Playbook sync completed")

	return report, nil
}

func (idx *Index) indexFile(ctx context.Context, fullPath, relPath string) (bool, int, error) {
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return false, 0, err
	}
	contentHash := hashOf(string(content))

	var existing string
	err = idx.db.QueryRowContext(ctx, "SELECT content_hash FROM files WHERE path = ?", relPath).Scan(&existing)
	if err == nil && existing == contentHash {
		return false, 0, nil
	}

	sections := splitSections(string(content))

	var vectors [][]float32
	if idx.embedder != nil && len(sections) > 0 {
		vectors, err = idx.embedSections(ctx, sections)
		if err != nil {
			idx.logger.Warn().Err(err).Str("file", relPath).Msg("Embedding failed, indexing keywords only")
			vectors = nil
		}
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback()

	if err := removeFile(ctx, tx, relPath, idx.embedder != nil); err != nil {
		return false, 0, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO files (path, content_hash, indexed_at) VALUES (?, ?, ?)",
		relPath, contentHash, time.Now().Unix(),
	)
	if err != nil {
		return false, 0, err
	}
	fileID, _ := res.LastInsertId()

	for i, s := range sections {
		id := fmt.Sprintf("%s#%d", relPath, i)
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sections (id, file_id, heading, content) VALUES (?, ?, ?, ?)",
			id, fileID, s.heading, s.content,
		); err != nil {
			return false, 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sections_fts (section_id, heading, content) VALUES (?, ?, ?)",
			id, s.heading, s.content,
		); err != nil {
			return false, 0, err
		}
		if vectors != nil {
			blob, err := sqlite_vec.SerializeFloat32(vectors[i])
			if err != nil {
				return false, 0, err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO embeddings (section_id, embedding) VALUES (?, ?)", id, blob,
			); err != nil {
				return false, 0, fmt.Errorf("failed to store embedding: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, len(sections), nil
}

// embedSections embeds sections, reusing cached vectors by content hash.
func (idx *Index) embedSections(ctx context.Context, sections []section) ([][]float32, error) {
	vectors := make([][]float32, len(sections))
	var missing []int

	for i, s := range sections {
		var blob []byte
		err := idx.db.QueryRowContext(ctx,
			"SELECT embedding FROM embedding_cache WHERE content_hash = ?", hashOf(s.content),
		).Scan(&blob)
		if err == nil {
			vectors[i] = deserializeFloat32(blob)
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return vectors, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = sections[i].content
	}
	fresh, err := idx.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		vectors[i] = fresh[j]
		blob, err := sqlite_vec.SerializeFloat32(fresh[j])
		if err != nil {
			return nil, err
		}
		if _, err := idx.db.ExecContext(ctx,
			"INSERT OR REPLACE INTO embedding_cache (content_hash, embedding, created_at) VALUES (?, ?, ?)",
			hashOf(sections[i].content), blob, time.Now().Unix(),
		); err != nil {
			idx.logger.Warn().Err(err).Msg("Failed to cache embedding")
		}
	}
	return vectors, nil
}

func removeFile(ctx context.Context, tx *sql.Tx, relPath string, vectors bool) error {
	stmts := []string{
		"DELETE FROM sections_fts WHERE section_id IN (SELECT s.id FROM sections s JOIN files f ON s.file_id = f.id WHERE f.path = ?)",
	}
	if vectors {
		stmts = append(stmts,
			"DELETE FROM embeddings WHERE section_id IN (SELECT s.id FROM sections s JOIN files f ON s.file_id = f.id WHERE f.path = ?)")
	}
	stmts = append(stmts,
		"DELETE FROM sections WHERE file_id IN (SELECT id FROM files WHERE path = ?)",
		"DELETE FROM files WHERE path = ?",
	)
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, relPath); err != nil {
			return err
		}
	}
	return nil
}

func (idx *Index) prune(ctx context.Context, existing []string) (int, error) {
	rows, err := idx.db.QueryContext(ctx, "SELECT path FROM files")
	if err != nil {
		return 0, err
	}
	keep := make(map[string]bool, len(existing))
	for _, f := range existing {
		keep[f] = true
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, err
		}
		if !keep[path] {
			stale = append(stale, path)
		}
	}
	rows.Close()

	for _, path := range stale {
		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return 0, err
		}
		if err := removeFile(ctx, tx, path, idx.embedder != nil); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

// Status returns current index status.
func (idx *Index) Status() Status {
	idx.mu.RLock()
	status := Status{Dirty: idx.dirty, Syncing: idx.syncing, LastSync: idx.lastSync}
	idx.mu.RUnlock()

	idx.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&status.Files)
	idx.db.QueryRow("SELECT COUNT(*) FROM sections").Scan(&status.Sections)
	return status
}

// MarkDirty schedules a sync before the next search.
func (idx *Index) MarkDirty() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dirty = true
}

// Close stops the watcher and closes the database.
func (idx *Index) Close() error {
	if idx.watcher != nil {
		idx.watcher.Stop()
	}
	return idx.db.Close()
}

func hashOf(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
