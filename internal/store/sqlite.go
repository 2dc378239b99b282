package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/twitter-mcp/internal/domain"
	"github.com/ashureev/twitter-mcp/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
	maxListPosts  = 500
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to keep SQLITE_BUSY rare
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		transport TEXT NOT NULL,
		remote_ip TEXT,
		created_at INTEGER NOT NULL,
		closed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_open ON sessions(created_at) WHERE closed_at IS NULL;

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL,
		session_id TEXT,
		username TEXT NOT NULL,
		content TEXT NOT NULL,
		images TEXT NOT NULL,
		url TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) write(ctx context.Context, query string, args ...any) (sql.Result, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var res sql.Result
	err := shared.RetryOnSQLiteConflict(ctx, writeAttempts, writeBackoff, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// RecordSessionOpened inserts a session audit row.
func (s *SQLiteStore) RecordSessionOpened(ctx context.Context, rec *domain.SessionRecord) error {
	query := `
	INSERT INTO sessions (session_id, transport, remote_ip, created_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(session_id) DO NOTHING`

	var remoteIP any
	if rec.RemoteIP != "" {
		remoteIP = rec.RemoteIP
	}
	if _, err := s.write(ctx, query, rec.ID, rec.Transport, remoteIP, rec.CreatedAt.UnixMilli()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// RecordSessionClosed stamps closed_at on a session row.
func (s *SQLiteStore) RecordSessionClosed(ctx context.Context, id string, closedAt time.Time) error {
	query := `UPDATE sessions SET closed_at = ? WHERE session_id = ? AND closed_at IS NULL`
	if _, err := s.write(ctx, query, closedAt.UnixMilli(), id); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

// GetSession returns a session row, or nil when none exists.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.SessionRecord, error) {
	query := `SELECT session_id, transport, remote_ip, created_at, closed_at FROM sessions WHERE session_id = ?`

	var rec domain.SessionRecord
	var remoteIP sql.NullString
	var createdAt int64
	var closedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.Transport, &remoteIP, &createdAt, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	rec.RemoteIP = remoteIP.String
	rec.CreatedAt = time.UnixMilli(createdAt)
	if closedAt.Valid {
		t := time.UnixMilli(closedAt.Int64)
		rec.ClosedAt = &t
	}
	return &rec, nil
}

// CloseOpenSessions stamps every open row with at.
func (s *SQLiteStore) CloseOpenSessions(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.write(ctx, `UPDATE sessions SET closed_at = ? WHERE closed_at IS NULL`, at.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("close open sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// RecordPost appends to the post log.
func (s *SQLiteStore) RecordPost(ctx context.Context, post *domain.PostRecord) error {
	images := post.Images
	if images == nil {
		images = []string{}
	}
	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}

	query := `
	INSERT INTO posts (post_id, session_id, username, content, images, url, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var sessionID any
	if post.SessionID != "" {
		sessionID = post.SessionID
	}
	res, err := s.write(ctx, query,
		post.PostID, sessionID, post.Username, post.Content, string(imagesJSON), post.URL, post.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	post.ID = id
	return nil
}

// ListPosts returns the newest posts first.
func (s *SQLiteStore) ListPosts(ctx context.Context, limit int) ([]*domain.PostRecord, error) {
	if limit <= 0 || limit > maxListPosts {
		limit = maxListPosts
	}

	query := `
	SELECT id, post_id, session_id, username, content, images, url, created_at
	FROM posts ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var out []*domain.PostRecord
	for rows.Next() {
		var p domain.PostRecord
		var sessionID sql.NullString
		var imagesJSON string
		var createdAt int64
		if err := rows.Scan(&p.ID, &p.PostID, &sessionID, &p.Username, &p.Content, &imagesJSON, &p.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post row: %w", err)
		}
		if err := json.Unmarshal([]byte(imagesJSON), &p.Images); err != nil {
			return nil, fmt.Errorf("decode post images: %w", err)
		}
		p.SessionID = sessionID.String
		p.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}
