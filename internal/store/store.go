// Package store persists watermarks, channel queues, generated reports and
// the sent-post log in a single sqlite database. Every write is one
// transaction, so a crash never leaves partially written state.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/feedherald/internal/channel"
	"github.com/ppiankov/feedherald/internal/watermark"
)

var errNotInitialized = errors.New("store is not initialized")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; sqlite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadWatermark returns the persisted watermark for source. found is false
// when the source has never been checked.
func (s *Store) LoadWatermark(ctx context.Context, source string, kind watermark.Kind) (watermark.Watermark, bool, error) {
	if s == nil || s.db == nil {
		return watermark.Watermark{}, false, errNotInitialized
	}

	var storedKind, record string
	err := s.db.QueryRowContext(ctx,
		"SELECT kind, record FROM watermarks WHERE source = ?", source,
	).Scan(&storedKind, &record)
	if errors.Is(err, sql.ErrNoRows) {
		return watermark.Watermark{}, false, nil
	}
	if err != nil {
		return watermark.Watermark{}, false, fmt.Errorf("load watermark %s: %w", source, err)
	}
	if watermark.Kind(storedKind) != kind {
		return watermark.Watermark{}, false, fmt.Errorf("watermark %s: stored kind %s, want %s", source, storedKind, kind)
	}

	wm, err := watermark.UnmarshalRecord(source, kind, []byte(record))
	if err != nil {
		return watermark.Watermark{}, false, err
	}
	return wm, true, nil
}

// SaveWatermark replaces the watermark for w.Source.
func (s *Store) SaveWatermark(ctx context.Context, w watermark.Watermark) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	if strings.TrimSpace(w.Source) == "" {
		return errors.New("watermark source is required")
	}

	data, err := watermark.MarshalRecord(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO watermarks (source, kind, record, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			kind = excluded.kind,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, w.Source, string(w.Kind), string(data), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save watermark %s: %w", w.Source, err)
	}
	return nil
}

// LoadQueue returns the channel's posts in pop order.
func (s *Store) LoadQueue(ctx context.Context, name string) ([]channel.Post, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT post_id, body, tags, created_at
		FROM queue_posts
		WHERE channel = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("load queue %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var posts []channel.Post
	for rows.Next() {
		var (
			p                  channel.Post
			tagsRaw, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.Body, &tagsRaw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan queued post: %w", err)
		}
		if p.Tags, err = decodeTags(tagsRaw); err != nil {
			return nil, fmt.Errorf("queued post %s: %w", p.ID, err)
		}
		if p.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("queued post %s: created_at: %w", p.ID, err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue %s: %w", name, err)
	}
	return posts, nil
}

// SaveQueue replaces the channel's queue in one transaction.
func (s *Store) SaveQueue(ctx context.Context, name string, posts []channel.Post) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM queue_posts WHERE channel = ?", name); err != nil {
			return fmt.Errorf("clear queue %s: %w", name, err)
		}
		if len(posts) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO queue_posts (channel, position, post_id, body, tags, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare queue insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i, p := range posts {
			tags, err := encodeTags(p.Tags)
			if err != nil {
				return err
			}
			created := p.CreatedAt
			if created.IsZero() {
				created = s.now()
			}
			if _, err := stmt.ExecContext(ctx, name, i, p.ID, p.Body, tags, formatTime(created)); err != nil {
				return fmt.Errorf("insert queued post %s: %w", p.ID, err)
			}
		}
		return nil
	})
}

// QueueDepths returns the number of queued posts per channel.
func (s *Store) QueueDepths(ctx context.Context) (map[string]int, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, "SELECT channel, COUNT(*) FROM queue_posts GROUP BY channel")
	if err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scan queue depth: %w", err)
		}
		out[name] = n
	}
	return out, rows.Err()
}

// SentPost is one entry of the sent log.
type SentPost struct {
	ID       int64
	Channel  string
	PostID   string
	StatusID string
	URL      string
	Body     string
	SentAt   time.Time
}

// RecordSent appends a receipt to the sent log.
func (s *Store) RecordSent(ctx context.Context, name string, p channel.Post, r channel.Receipt) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	sentAt := r.SentAt
	if sentAt.IsZero() {
		sentAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sent_posts (channel, post_id, status_id, url, body, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, name, p.ID, r.ID, r.URL, p.Body, formatTime(sentAt))
	if err != nil {
		return fmt.Errorf("record sent post %s: %w", p.ID, err)
	}
	return nil
}

// SentPosts returns the most recent sends for a channel, newest first.
func (s *Store) SentPosts(ctx context.Context, name string, limit int) ([]SentPost, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, post_id, status_id, url, body, sent_at
		FROM sent_posts
		WHERE channel = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("list sent posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SentPost
	for rows.Next() {
		var sp SentPost
		var sentAt string
		if err := rows.Scan(&sp.ID, &sp.Channel, &sp.PostID, &sp.StatusID, &sp.URL, &sp.Body, &sentAt); err != nil {
			return nil, fmt.Errorf("scan sent post: %w", err)
		}
		if sp.SentAt, err = parseTime(sentAt); err != nil {
			return nil, fmt.Errorf("sent post %d: %w", sp.ID, err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func decodeTags(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return tags, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
