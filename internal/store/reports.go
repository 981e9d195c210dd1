package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/feedherald/internal/report"
)

// Report review states.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusDismissed = "dismissed"
)

// ReportRecord is a persisted report with its review state.
type ReportRecord struct {
	ID        int64
	Source    string
	Key       string
	Title     string
	Summary   string
	Markdown  string
	Text      string
	When      time.Time
	Tags      []string
	Status    string
	CreatedAt time.Time
}

// Report rebuilds the report. The stored plain text is kept verbatim.
func (rr ReportRecord) Report() (*report.Report, error) {
	r, err := report.New(rr.Source, rr.Key, rr.Title)
	if err != nil {
		return nil, fmt.Errorf("report %d: %w", rr.ID, err)
	}
	r.SetSummary(rr.Summary)
	if strings.TrimSpace(rr.Markdown) != "" {
		if err := r.SetMarkdown(rr.Markdown); err != nil {
			return nil, fmt.Errorf("report %d: %w", rr.ID, err)
		}
	}
	r.SetText(rr.Text)
	if !rr.When.IsZero() {
		if err := r.SetWhen(rr.When); err != nil {
			return nil, fmt.Errorf("report %d: %w", rr.ID, err)
		}
	}
	r.AddTags(rr.Tags...)
	return r, nil
}

// SaveReport stores r as pending. A report for the same source, item and
// instant is stored once; inserted is false for such a redelivery.
func (s *Store) SaveReport(ctx context.Context, r *report.Report) (rec ReportRecord, inserted bool, err error) {
	if s == nil || s.db == nil {
		return ReportRecord{}, false, errNotInitialized
	}
	if r == nil {
		return ReportRecord{}, false, errors.New("report is required")
	}
	if strings.TrimSpace(r.Source()) == "" || strings.TrimSpace(r.Key()) == "" {
		return ReportRecord{}, false, errors.New("report source and key are required")
	}

	tags, err := encodeTags(r.Tags())
	if err != nil {
		return ReportRecord{}, false, err
	}
	when := formatTime(r.When())

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (source, item_key, title, summary, markdown, plain_text, happened_at, tags, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, item_key, happened_at) DO NOTHING
	`, r.Source(), r.Key(), r.Title(), r.Summary(), r.Markdown(), r.Text(), when, tags, StatusPending, formatTime(s.now()))
	if err != nil {
		return ReportRecord{}, false, fmt.Errorf("insert report: %w", err)
	}
	n, _ := res.RowsAffected()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, item_key, title, summary, markdown, plain_text, happened_at, tags, status, created_at
		FROM reports
		WHERE source = ? AND item_key = ? AND happened_at = ?
	`, r.Source(), r.Key(), when)
	rec, err = scanReport(row)
	if err != nil {
		return ReportRecord{}, false, err
	}
	return rec, n > 0, nil
}

// Reports lists reports in the given status, newest first. An empty
// status lists all.
func (s *Store) Reports(ctx context.Context, status string) ([]ReportRecord, error) {
	if s == nil || s.db == nil {
		return nil, errNotInitialized
	}

	query := `
		SELECT id, source, item_key, title, summary, markdown, plain_text, happened_at, tags, status, created_at
		FROM reports`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY happened_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ReportRecord
	for rows.Next() {
		rec, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

// SetReportStatus moves the given reports to status.
func (s *Store) SetReportStatus(ctx context.Context, status string, ids ...int64) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}
	switch status {
	case StatusPending, StatusPublished, StatusDismissed:
	default:
		return fmt.Errorf("unknown report status %q", status)
	}
	if len(ids) == 0 {
		return nil
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, "UPDATE reports SET status = ? WHERE id = ?", status, id)
			if err != nil {
				return fmt.Errorf("update report %d: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("report %d not found", id)
			}
		}
		return nil
	})
}

// PruneReports deletes reviewed reports whose event is older than
// retainDays. Pending reports are kept.
func (s *Store) PruneReports(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotInitialized
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(s.now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reports WHERE status != ? AND happened_at < ?", StatusPending, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(scanner rowScanner) (ReportRecord, error) {
	var (
		rec                       ReportRecord
		when, tagsRaw, createdRaw string
	)
	err := scanner.Scan(&rec.ID, &rec.Source, &rec.Key, &rec.Title, &rec.Summary,
		&rec.Markdown, &rec.Text, &when, &tagsRaw, &rec.Status, &createdRaw)
	if err != nil {
		return ReportRecord{}, fmt.Errorf("scan report: %w", err)
	}
	if rec.When, err = parseTime(when); err != nil {
		return ReportRecord{}, fmt.Errorf("report %d: happened_at: %w", rec.ID, err)
	}
	if rec.CreatedAt, err = parseTime(createdRaw); err != nil {
		return ReportRecord{}, fmt.Errorf("report %d: created_at: %w", rec.ID, err)
	}
	if rec.Tags, err = decodeTags(tagsRaw); err != nil {
		return ReportRecord{}, fmt.Errorf("report %d: %w", rec.ID, err)
	}
	return rec, nil
}
