package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clipnote/internal/config"
)

// ErrNotFound is returned when a job or history record id is unknown.
var ErrNotFound = errors.New("job not found")

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the job database and applies the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "jobs.db"))
}

// OpenPath opens a store at an explicit database path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applySchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// NewJob inserts a new job in the downloading stage with zero progress.
func (s *Store) NewJob(ctx context.Context, source, style, engine, strategy string) (*Job, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            source, style, engine, strategy, stage,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		source,
		style,
		engine,
		strategy,
		StageDownloading,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier. Returns ErrNotFound for unknown ids.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Update persists changes to an existing job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()

	warningsJSON := ""
	if len(job.Warnings) > 0 {
		encoded, err := json.Marshal(job.Warnings)
		if err != nil {
			return fmt.Errorf("marshal warnings: %w", err)
		}
		warningsJSON = string(encoded)
	}

	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET source = ?, title = ?, style = ?, engine = ?, strategy = ?, stage = ?,
             progress_percent = ?, progress_message = ?, error_kind = ?, error_message = ?,
             warnings_json = ?, output_dir = ?, audio_path = ?, video_path = ?, duration = ?,
             subtitle_tracks_json = ?, transcript_json = ?, keyframes_json = ?, document = ?, updated_at = ?
         WHERE id = ?`,
		job.Source,
		nullableString(job.Title),
		job.Style,
		job.Engine,
		job.Strategy,
		job.Stage,
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		nullableString(job.ErrorKind),
		nullableString(job.ErrorMessage),
		nullableString(warningsJSON),
		nullableString(job.OutputDir),
		nullableString(job.AudioPath),
		nullableString(job.VideoPath),
		job.Duration,
		nullableString(job.SubtitleTracksJSON),
		nullableString(job.TranscriptJSON),
		nullableString(job.KeyframesJSON),
		nullableString(job.Document),
		job.UpdatedAt.Format(time.RFC3339Nano),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// List returns jobs filtered by stage set (or all jobs when no stage is provided),
// newest first.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at DESC`

	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE stage IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkInterrupted fails jobs found in non-terminal stages, used at daemon start.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET stage = ?, error_kind = 'internal', error_message = ?,
             progress_message = ?, updated_at = ?
         WHERE stage NOT IN (?, ?)`,
		StageError,
		InterruptedMessage,
		InterruptedMessage,
		time.Now().UTC().Format(time.RFC3339Nano),
		StageCompleted,
		StageError,
	)
	if err != nil {
		return 0, fmt.Errorf("mark interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to the downloading stage. Artifacts in
// the job's output directory are kept so completed side effects are skipped.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	set := `SET stage = ?, progress_percent = 0, progress_message = 'Retry requested',
            error_kind = NULL, error_message = NULL, warnings_json = NULL, updated_at = ?`

	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE jobs `+set+` WHERE stage = ?`,
			StageDownloading, timestamp, StageError,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := []any{StageDownloading, timestamp}
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs `+set+` WHERE id IN (`+placeholders+`) AND stage = '`+string(StageError)+`'`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by stage.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, COUNT(1) FROM jobs GROUP BY stage`)
	if err != nil {
		return Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByStage: make(map[Stage]int)}
	for rows.Next() {
		var stage Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return Stats{}, err
		}
		stats.ByStage[stage] = count
		stats.Total += count
		switch stage {
		case StageCompleted:
			stats.Completed += count
		case StageError:
			stats.Failed += count
		default:
			stats.Processing += count
		}
	}
	return stats, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes only completed jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE stage = ?`, StageCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

const jobColumns = "id, source, title, style, engine, strategy, stage, progress_percent, progress_message, error_kind, error_message, warnings_json, output_dir, audio_path, video_path, duration, subtitle_tracks_json, transcript_json, keyframes_json, document, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		source          string
		title           sql.NullString
		style           string
		engine          string
		strategy        string
		stageStr        string
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		errorKind       sql.NullString
		errorMessage    sql.NullString
		warningsJSON    sql.NullString
		outputDir       sql.NullString
		audioPath       sql.NullString
		videoPath       sql.NullString
		duration        sql.NullFloat64
		subtitleTracks  sql.NullString
		transcriptJSON  sql.NullString
		keyframesJSON   sql.NullString
		document        sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&source,
		&title,
		&style,
		&engine,
		&strategy,
		&stageStr,
		&progressPercent,
		&progressMessage,
		&errorKind,
		&errorMessage,
		&warningsJSON,
		&outputDir,
		&audioPath,
		&videoPath,
		&duration,
		&subtitleTracks,
		&transcriptJSON,
		&keyframesJSON,
		&document,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:                 id,
		Source:             source,
		Title:              title.String,
		Style:              style,
		Engine:             engine,
		Strategy:           strategy,
		Stage:              Stage(stageStr),
		ProgressPercent:    progressPercent.Float64,
		ProgressMessage:    progressMessage.String,
		ErrorKind:          errorKind.String,
		ErrorMessage:       errorMessage.String,
		OutputDir:          outputDir.String,
		AudioPath:          audioPath.String,
		VideoPath:          videoPath.String,
		Duration:           duration.Float64,
		SubtitleTracksJSON: subtitleTracks.String,
		TranscriptJSON:     transcriptJSON.String,
		KeyframesJSON:      keyframesJSON.String,
		Document:           document.String,
	}
	if warningsJSON.Valid && warningsJSON.String != "" {
		// A corrupt warnings blob should not make the row unreadable.
		_ = json.Unmarshal([]byte(warningsJSON.String), &job.Warnings)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
