package jobs

import (
	"context"
	"fmt"
)

const schemaStatements = `
CREATE TABLE IF NOT EXISTS jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    title TEXT,
    style TEXT NOT NULL,
    engine TEXT NOT NULL,
    strategy TEXT NOT NULL,
    stage TEXT NOT NULL,
    progress_percent REAL NOT NULL DEFAULT 0,
    progress_message TEXT,
    error_kind TEXT,
    error_message TEXT,
    warnings_json TEXT,
    output_dir TEXT,
    audio_path TEXT,
    video_path TEXT,
    duration REAL NOT NULL DEFAULT 0,
    subtitle_tracks_json TEXT,
    transcript_json TEXT,
    keyframes_json TEXT,
    document TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_stage ON jobs(stage);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);

CREATE TABLE IF NOT EXISTS history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id INTEGER NOT NULL UNIQUE,
    title TEXT,
    source TEXT,
    style TEXT,
    document TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

func (s *Store) applySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaStatements); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
