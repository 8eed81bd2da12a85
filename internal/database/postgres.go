package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/mxfeinberg/agtalk-scraper/internal/scraper"
)

// pgxConn is the slice of the pgxpool API the provider uses. pgxmock's pool
// satisfies it, which is how the provider is tested without a server.
type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS posts (
	id BIGSERIAL PRIMARY KEY,
	url TEXT UNIQUE NOT NULL,
	title TEXT NOT NULL,
	author TEXT,
	post_date TEXT,
	content TEXT NOT NULL,
	thread_id TEXT,
	post_number INTEGER,
	forum_id INTEGER,
	scraped_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_posts_thread_id ON posts(thread_id);
CREATE INDEX IF NOT EXISTS idx_posts_forum_id ON posts(forum_id);
CREATE INDEX IF NOT EXISTS idx_posts_scraped_at ON posts(scraped_at);
`

const upsertSQL = `
INSERT INTO posts (url, title, author, post_date, content, thread_id, post_number, forum_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url) DO UPDATE SET
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	post_date = EXCLUDED.post_date,
	content = EXCLUDED.content,
	thread_id = EXCLUDED.thread_id,
	post_number = EXCLUDED.post_number,
	forum_id = EXCLUDED.forum_id,
	scraped_at = now()`

const selectColumns = `url, title, COALESCE(author, ''), COALESCE(post_date, ''), content,
	COALESCE(thread_id, ''), COALESCE(post_number, 0), COALESCE(forum_id, 0), scraped_at`

// PostgresProvider implements Provider on a pgx connection pool.
type PostgresProvider struct {
	conn   pgxConn
	logger *zap.Logger
}

// NewPostgresProvider connects to Postgres with dsn and verifies the
// connection with a ping.
func NewPostgresProvider(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresProvider, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresProvider{conn: pool, logger: logger}, nil
}

// NewPostgresProviderWithConn constructs a provider from an existing
// connection, primarily for testing with pgxmock.
func NewPostgresProviderWithConn(conn pgxConn, logger *zap.Logger) (*PostgresProvider, error) {
	if conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return &PostgresProvider{conn: conn, logger: logger}, nil
}

// InitSchema creates the posts table and its indexes if absent.
func (p *PostgresProvider) InitSchema(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, schemaSQL); err != nil {
		return classify("init schema", err)
	}
	p.logger.Info("Database schema initialized")
	return nil
}

// UpsertPost stores a post keyed by its URL. Re-storing an existing URL
// rewrites the row and refreshes scraped_at.
func (p *PostgresProvider) UpsertPost(ctx context.Context, post scraper.Post) error {
	if err := post.Validate(); err != nil {
		return fmt.Errorf("invalid post: %w", err)
	}
	_, err := p.conn.Exec(ctx, upsertSQL,
		post.URL,
		post.Title,
		post.Author,
		post.PostDate,
		post.Content,
		post.ThreadID,
		post.PostNumber,
		post.ForumID,
	)
	if err != nil {
		return classify("upsert post", err)
	}
	return nil
}

// PostExists reports whether a post with the given URL is stored.
func (p *PostgresProvider) PostExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := p.conn.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM posts WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return false, classify("check post existence", err)
	}
	return exists, nil
}

// PostCount returns the number of stored posts.
func (p *PostgresProvider) PostCount(ctx context.Context) (int64, error) {
	var count int64
	err := p.conn.QueryRow(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	if err != nil {
		return 0, classify("count posts", err)
	}
	return count, nil
}

// PostsByThread returns a thread's posts ordered by post number.
func (p *PostgresProvider) PostsByThread(ctx context.Context, threadID string) ([]StoredPost, error) {
	query := "SELECT " + selectColumns + " FROM posts WHERE thread_id = $1 ORDER BY post_number"
	rows, err := p.conn.Query(ctx, query, threadID)
	if err != nil {
		return nil, classify("query posts by thread", err)
	}
	return scanPosts(rows)
}

// SearchPosts returns posts whose title or content contains term,
// most recently scraped first.
func (p *PostgresProvider) SearchPosts(ctx context.Context, term string) ([]StoredPost, error) {
	query := "SELECT " + selectColumns +
		" FROM posts WHERE title ILIKE $1 OR content ILIKE $1 ORDER BY scraped_at DESC"
	rows, err := p.conn.Query(ctx, query, "%"+term+"%")
	if err != nil {
		return nil, classify("search posts", err)
	}
	return scanPosts(rows)
}

// Stats summarizes the posts table.
func (p *PostgresProvider) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	var first, last *time.Time
	err := p.conn.QueryRow(ctx, `
SELECT COUNT(*),
	COUNT(DISTINCT author) FILTER (WHERE author IS NOT NULL AND author != ''),
	COUNT(DISTINCT thread_id) FILTER (WHERE thread_id IS NOT NULL AND thread_id != ''),
	MIN(scraped_at),
	MAX(scraped_at)
FROM posts`).Scan(&s.TotalPosts, &s.UniqueAuthors, &s.UniqueThreads, &first, &last)
	if err != nil {
		return Stats{}, classify("query stats", err)
	}
	if first != nil {
		s.FirstScraped = *first
	}
	if last != nil {
		s.LastScraped = *last
	}
	return s, nil
}

// Reset drops the posts table and recreates the schema.
func (p *PostgresProvider) Reset(ctx context.Context) error {
	if _, err := p.conn.Exec(ctx, "DROP TABLE IF EXISTS posts"); err != nil {
		return classify("drop posts table", err)
	}
	if err := p.InitSchema(ctx); err != nil {
		return err
	}
	p.logger.Info("Database reset")
	return nil
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() {
	p.conn.Close()
}

func scanPosts(rows pgx.Rows) ([]StoredPost, error) {
	defer rows.Close()
	var posts []StoredPost
	for rows.Next() {
		var sp StoredPost
		if err := rows.Scan(&sp.URL, &sp.Title, &sp.Author, &sp.PostDate, &sp.Content,
			&sp.ThreadID, &sp.PostNumber, &sp.ForumID, &sp.ScrapedAt); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		posts = append(posts, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate post rows", err)
	}
	return posts, nil
}

// classify separates record-scoped server rejections from connectivity loss.
// A *pgconn.PgError means the server answered and refused the statement, so
// the caller may continue with other records. Anything else is assumed to be
// a lost connection and is marked run-fatal via scraper.ErrSinkUnavailable.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, scraper.ErrSinkUnavailable, err)
}
