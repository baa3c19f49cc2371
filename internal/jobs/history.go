package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveHistory records the result document for a completed job. Repeated saves
// for the same job overwrite the previous record (last write wins).
func (s *Store) SaveHistory(ctx context.Context, job *Job) (*HistoryRecord, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO history (job_id, title, source, style, document, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             title = excluded.title,
             source = excluded.source,
             style = excluded.style,
             document = excluded.document,
             updated_at = excluded.updated_at`,
		job.ID,
		nullableString(job.Title),
		nullableString(job.Source),
		nullableString(job.Style),
		nullableString(job.Document),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("save history: %w", err)
	}
	return s.HistoryByJobID(ctx, job.ID)
}

// HistoryByJobID fetches the history record for a job.
func (s *Store) HistoryByJobID(ctx context.Context, jobID int64) (*HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE job_id = ?`, jobID)
	record, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return record, nil
}

// GetHistory fetches a history record by its own identifier.
func (s *Store) GetHistory(ctx context.Context, id int64) (*HistoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	record, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}
	return record, nil
}

// ListHistory returns history records, newest first.
func (s *Store) ListHistory(ctx context.Context) ([]*HistoryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+historyColumns+` FROM history ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryRecord
	for rows.Next() {
		record, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// DeleteHistory removes a history record by identifier.
func (s *Store) DeleteHistory(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete history: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

const historyColumns = "id, job_id, title, source, style, document, created_at, updated_at"

func scanHistory(scanner interface{ Scan(dest ...any) error }) (*HistoryRecord, error) {
	var (
		id         int64
		jobID      int64
		title      sql.NullString
		source     sql.NullString
		style      sql.NullString
		document   sql.NullString
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(&id, &jobID, &title, &source, &style, &document, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	record := &HistoryRecord{
		ID:       id,
		JobID:    jobID,
		Title:    title.String,
		Source:   source.String,
		Style:    style.String,
		Document: document.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		record.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}
