package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/KPKUBAN/kp-kuban-bot/internal/models"
)

// Timestamps are stored as RFC3339 UTC strings so that range comparisons
// in SQL work lexically.
const timeLayout = time.RFC3339

// Store is the durable, append-only log of published posts.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// sqlite allows a single writer; routing everything through one
	// connection serializes concurrent appends instead of surfacing
	// SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		published_at TEXT NOT NULL,
		url TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_url ON posts(url);
	CREATE INDEX IF NOT EXISTS idx_posts_published_at ON posts(published_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Append records a published post. Rows are never updated or deleted.
func (s *Store) Append(ctx context.Context, chatID int64, publishedAt time.Time, url string) (models.PublishedPost, error) {
	publishedAt = publishedAt.UTC().Truncate(time.Second)

	query, args, err := sq.Insert("posts").
		Columns("chat_id", "published_at", "url").
		Values(chatID, publishedAt.Format(timeLayout), url).
		ToSql()
	if err != nil {
		return models.PublishedPost{}, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.PublishedPost{}, fmt.Errorf("insert post: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.PublishedPost{}, fmt.Errorf("last insert id: %w", err)
	}

	return models.PublishedPost{
		ID:          id,
		ChatID:      chatID,
		PublishedAt: publishedAt,
		URL:         url,
	}, nil
}

// ExistsURL reports whether any recorded post has exactly this URL.
func (s *Store) ExistsURL(ctx context.Context, url string) (bool, error) {
	query, args, err := sq.Select("1").
		From("posts").
		Where(sq.Eq{"url": url}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// QueryWindow returns all posts published after since, most recent first.
// A limit of 0 means no limit.
func (s *Store) QueryWindow(ctx context.Context, since time.Time, limit int) ([]models.PublishedPost, error) {
	builder := sq.Select("id", "chat_id", "published_at", "url").
		From("posts").
		Where(sq.Gt{"published_at": since.UTC().Format(timeLayout)}).
		OrderBy("published_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build window query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var posts []models.PublishedPost
	for rows.Next() {
		var (
			p       models.PublishedPost
			rawTime string
		)
		if err := rows.Scan(&p.ID, &p.ChatID, &rawTime, &p.URL); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		if p.PublishedAt, err = time.Parse(timeLayout, rawTime); err != nil {
			return nil, fmt.Errorf("parse published_at %q: %w", rawTime, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return posts, nil
}

// CountWindow counts posts published after since.
func (s *Store) CountWindow(ctx context.Context, since time.Time) (int, error) {
	query, args, err := sq.Select("COUNT(*)").
		From("posts").
		Where(sq.Gt{"published_at": since.UTC().Format(timeLayout)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return count, nil
}
