// Package store provides SQLite persistence for collected items, articles,
// prompt templates, system logs and pipeline statistics.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsroom/internal/core"
)

// Store represents the SQLite-backed store.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with a SQLite database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "newsroom.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables.
func (s *Store) initialize() error {
	collectedItemsTable := `
	CREATE TABLE IF NOT EXISTS collected_items (
		id TEXT PRIMARY KEY,
		source TEXT,
		title TEXT,
		body TEXT,
		collected_at DATETIME,
		processed INTEGER DEFAULT 0,
		trend_score REAL DEFAULT 0
	);`

	collectedItemsIndex := `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_collected_items_source_title
	ON collected_items (source, title);`

	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT,
		slug TEXT,
		content TEXT,
		score_report TEXT,
		status TEXT,
		created_at DATETIME,
		published_at DATETIME,
		views INTEGER DEFAULT 0,
		dwell_seconds REAL DEFAULT 0,
		bounce_rate REAL DEFAULT 0,
		shares INTEGER DEFAULT 0
	);`

	promptTemplatesTable := `
	CREATE TABLE IF NOT EXISTS prompt_templates (
		id TEXT PRIMARY KEY,
		type TEXT,
		template TEXT,
		performance_score REAL DEFAULT 0,
		usage_count INTEGER DEFAULT 0,
		is_active INTEGER DEFAULT 0,
		created_at DATETIME
	);`

	systemLogsTable := `
	CREATE TABLE IF NOT EXISTS system_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT,
		component TEXT,
		message TEXT,
		detail TEXT,
		created_at DATETIME
	);`

	pipelineStatsTable := `
	CREATE TABLE IF NOT EXISTS pipeline_stats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT,
		items_in INTEGER,
		items_out INTEGER,
		duration_ms INTEGER,
		created_at DATETIME
	);`

	statements := []string{
		collectedItemsTable, collectedItemsIndex, articlesTable,
		promptTemplatesTable, systemLogsTable, pipelineStatsTable,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Collected items
// ---------------------------------------------------------------------------

// SaveRawItems stores collected items, skipping duplicates by (source, title).
// It returns the number of newly inserted items.
func (s *Store) SaveRawItems(items []core.RawItem) (int, error) {
	inserted := 0
	for _, item := range items {
		res, err := s.db.Exec(`
		INSERT OR IGNORE INTO collected_items
		(id, source, title, body, collected_at, processed, trend_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, item.Source, item.Title, item.Body,
			item.CollectedAt, boolToInt(item.Processed), item.TrendScore,
		)
		if err != nil {
			return inserted, fmt.Errorf("failed to save raw item %s: %w", item.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// GetUnprocessedItems returns items not yet consumed by a generation run,
// oldest first. limit <= 0 means no limit.
func (s *Store) GetUnprocessedItems(limit int) ([]core.RawItem, error) {
	query := `
	SELECT id, source, title, body, collected_at, processed, trend_score
	FROM collected_items
	WHERE processed = 0
	ORDER BY collected_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []core.RawItem
	for rows.Next() {
		var item core.RawItem
		var processed int
		if err := rows.Scan(&item.ID, &item.Source, &item.Title, &item.Body,
			&item.CollectedAt, &processed, &item.TrendScore); err != nil {
			return nil, fmt.Errorf("failed to scan raw item: %w", err)
		}
		item.Processed = processed != 0
		items = append(items, item)
	}
	return items, rows.Err()
}

// MarkItemsProcessed flips the processed flag on each item. Each update is a
// single record-level operation; a crash mid-loop leaves earlier items marked,
// which re-clustering tolerates.
func (s *Store) MarkItemsProcessed(ids []string) error {
	for _, id := range ids {
		if _, err := s.db.Exec(
			`UPDATE collected_items SET processed = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark item %s processed: %w", id, err)
		}
	}
	return nil
}

// CountUnprocessed returns how many collected items are awaiting processing.
func (s *Store) CountUnprocessed() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM collected_items WHERE processed = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed items: %w", err)
	}
	return count, nil
}

// ---------------------------------------------------------------------------
// Articles
// ---------------------------------------------------------------------------

// SaveArticle stores or replaces an article.
func (s *Store) SaveArticle(article *core.Article) error {
	scoreJSON, err := json.Marshal(article.Score)
	if err != nil {
		return fmt.Errorf("failed to marshal score report: %w", err)
	}

	var publishedAt interface{}
	if article.PublishedAt != nil {
		publishedAt = *article.PublishedAt
	}

	_, err = s.db.Exec(`
	INSERT OR REPLACE INTO articles
	(id, title, slug, content, score_report, status, created_at, published_at,
	 views, dwell_seconds, bounce_rate, shares)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		article.ID, article.Title, article.Slug, article.Content,
		string(scoreJSON), string(article.Status), article.CreatedAt, publishedAt,
		article.Performance.Views, article.Performance.DwellSeconds,
		article.Performance.BounceRate, article.Performance.Shares,
	)
	if err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// UpdateArticleStatus transitions an article to a new status. publishedAt may
// be nil for non-published states.
func (s *Store) UpdateArticleStatus(id string, status core.ArticleStatus, publishedAt *time.Time) error {
	var pub interface{}
	if publishedAt != nil {
		pub = *publishedAt
	}
	_, err := s.db.Exec(
		`UPDATE articles SET status = ?, published_at = ? WHERE id = ?`,
		string(status), pub, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update article status: %w", err)
	}
	return nil
}

// GetArticle retrieves a single article by ID.
func (s *Store) GetArticle(id string) (*core.Article, error) {
	row := s.db.QueryRow(`
	SELECT id, title, slug, content, score_report, status, created_at, published_at,
	       views, dwell_seconds, bounce_rate, shares
	FROM articles WHERE id = ?`, id)
	return scanArticle(row)
}

// GetPublishedSince returns published articles with a published_at after the
// given cutoff.
func (s *Store) GetPublishedSince(cutoff time.Time) ([]core.Article, error) {
	return s.queryArticles(`
	SELECT id, title, slug, content, score_report, status, created_at, published_at,
	       views, dwell_seconds, bounce_rate, shares
	FROM articles
	WHERE status = ? AND published_at > ?
	ORDER BY published_at DESC`, string(core.StatusPublished), cutoff)
}

// GetPublishedTitles returns the titles of all published articles, most
// recent first.
func (s *Store) GetPublishedTitles() ([]string, error) {
	rows, err := s.db.Query(`
	SELECT title FROM articles WHERE status = ? ORDER BY published_at DESC`,
		string(core.StatusPublished))
	if err != nil {
		return nil, fmt.Errorf("failed to query published titles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("failed to scan title: %w", err)
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

// CountArticlesByStatusSince returns per-status article counts for articles
// created after the cutoff. Used by the operational status endpoint.
func (s *Store) CountArticlesByStatusSince(cutoff time.Time) (map[core.ArticleStatus]int, error) {
	rows, err := s.db.Query(`
	SELECT status, COUNT(*) FROM articles WHERE created_at > ? GROUP BY status`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[core.ArticleStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[core.ArticleStatus(status)] = count
	}
	return counts, rows.Err()
}

// UpdateArticlePerformance records engagement metrics for an article.
func (s *Store) UpdateArticlePerformance(id string, perf core.Performance) error {
	_, err := s.db.Exec(`
	UPDATE articles SET views = ?, dwell_seconds = ?, bounce_rate = ?, shares = ?
	WHERE id = ?`,
		perf.Views, perf.DwellSeconds, perf.BounceRate, perf.Shares, id)
	if err != nil {
		return fmt.Errorf("failed to update article performance: %w", err)
	}
	return nil
}

func (s *Store) queryArticles(query string, args ...interface{}) ([]core.Article, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []core.Article
	for rows.Next() {
		article, err := scanArticleRows(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *article)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row *sql.Row) (*core.Article, error) {
	article, err := scanArticleFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return article, err
}

func scanArticleRows(rows *sql.Rows) (*core.Article, error) {
	return scanArticleFrom(rows)
}

func scanArticleFrom(scanner rowScanner) (*core.Article, error) {
	var article core.Article
	var scoreJSON, status string
	var publishedAt sql.NullTime

	err := scanner.Scan(
		&article.ID, &article.Title, &article.Slug, &article.Content,
		&scoreJSON, &status, &article.CreatedAt, &publishedAt,
		&article.Performance.Views, &article.Performance.DwellSeconds,
		&article.Performance.BounceRate, &article.Performance.Shares,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan article: %w", err)
	}

	article.Status = core.ArticleStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		article.PublishedAt = &t
	}
	if err := json.Unmarshal([]byte(scoreJSON), &article.Score); err != nil {
		return nil, fmt.Errorf("failed to decode score report for article %s: %w", article.ID, err)
	}

	return &article, nil
}

// ---------------------------------------------------------------------------
// Prompt templates
// ---------------------------------------------------------------------------

// GetActiveTemplate returns the active template for the given type.
func (s *Store) GetActiveTemplate(templateType core.TemplateType) (*core.PromptTemplate, error) {
	row := s.db.QueryRow(`
	SELECT id, type, template, performance_score, usage_count, is_active, created_at
	FROM prompt_templates
	WHERE type = ? AND is_active = 1`, string(templateType))

	var tmpl core.PromptTemplate
	var tmplType string
	var isActive int
	err := row.Scan(&tmpl.ID, &tmplType, &tmpl.Template,
		&tmpl.PerformanceScore, &tmpl.UsageCount, &isActive, &tmpl.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan prompt template: %w", err)
	}

	tmpl.Type = core.TemplateType(tmplType)
	tmpl.IsActive = isActive != 0
	return &tmpl, nil
}

// ActivateTemplate stores a new template as the active one for its type,
// deactivating any previous active template. Performance counters start at
// zero on the new row.
func (s *Store) ActivateTemplate(tmpl core.PromptTemplate) error {
	if _, err := s.db.Exec(
		`UPDATE prompt_templates SET is_active = 0 WHERE type = ?`,
		string(tmpl.Type)); err != nil {
		return fmt.Errorf("failed to deactivate templates: %w", err)
	}

	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO prompt_templates
	(id, type, template, performance_score, usage_count, is_active, created_at)
	VALUES (?, ?, ?, 0, 0, 1, ?)`,
		tmpl.ID, string(tmpl.Type), tmpl.Template, tmpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to activate template: %w", err)
	}
	return nil
}

// SaveInactiveTemplate stores a template without activating it (learning runs
// flag low-confidence rewrites for manual confirmation this way).
func (s *Store) SaveInactiveTemplate(tmpl core.PromptTemplate) error {
	_, err := s.db.Exec(`
	INSERT OR REPLACE INTO prompt_templates
	(id, type, template, performance_score, usage_count, is_active, created_at)
	VALUES (?, ?, ?, 0, 0, 0, ?)`,
		tmpl.ID, string(tmpl.Type), tmpl.Template, tmpl.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// IncrementTemplateUsage bumps the usage counter on a template.
func (s *Store) IncrementTemplateUsage(id string) error {
	_, err := s.db.Exec(
		`UPDATE prompt_templates SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment template usage: %w", err)
	}
	return nil
}

// EnsureActiveTemplates seeds a default active template for any type missing
// one. Called once at bootstrap.
func (s *Store) EnsureActiveTemplates(defaults map[core.TemplateType]core.PromptTemplate) error {
	for templateType, tmpl := range defaults {
		existing, err := s.GetActiveTemplate(templateType)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.ActivateTemplate(tmpl); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// System logs and pipeline stats
// ---------------------------------------------------------------------------

// AppendLog writes one structured log row.
func (s *Store) AppendLog(level, component, message, detail string) error {
	_, err := s.db.Exec(`
	INSERT INTO system_logs (level, component, message, detail, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		level, component, message, detail, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// RunStats is one recorded pipeline run.
type RunStats struct {
	Kind      string        `json:"kind"`
	ItemsIn   int           `json:"items_in"`
	ItemsOut  int           `json:"items_out"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// RecordRunStats stores statistics for one pipeline run.
func (s *Store) RecordRunStats(stats RunStats) error {
	_, err := s.db.Exec(`
	INSERT INTO pipeline_stats (kind, items_in, items_out, duration_ms, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		stats.Kind, stats.ItemsIn, stats.ItemsOut,
		stats.Duration.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record run stats: %w", err)
	}
	return nil
}

// GetRunStatsSince returns run statistics recorded after the cutoff, most
// recent first.
func (s *Store) GetRunStatsSince(cutoff time.Time) ([]RunStats, error) {
	rows, err := s.db.Query(`
	SELECT kind, items_in, items_out, duration_ms, created_at
	FROM pipeline_stats WHERE created_at > ? ORDER BY created_at DESC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var all []RunStats
	for rows.Next() {
		var stats RunStats
		var durationMS int64
		if err := rows.Scan(&stats.Kind, &stats.ItemsIn, &stats.ItemsOut,
			&durationMS, &stats.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}
		stats.Duration = time.Duration(durationMS) * time.Millisecond
		all = append(all, stats)
	}
	return all, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
