package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("store: not found")

// terminal statuses never transition again.
const terminalStatuses = `('completed', 'skipped', 'failed')`

const jobColumns = `id, status, file_name, file_hash, error, total_files,
	processed_files, entities_found, findings_created, created_at, updated_at`

// CreateJob registers a queued job. Creating an existing id is a no-op.
func (s *Store) CreateJob(ctx context.Context, id, fileName string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, file_name) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, JobQueued, fileName)
	if err != nil {
		return fmt.Errorf("creating job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first. limit <= 0 returns all.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job unless it is already terminal.
// Updating a missing or terminal job is a no-op.
func (s *Store) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status NOT IN `+terminalStatuses,
		status, errMsg, id)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return nil
}

// UpdateJobCounts writes the counters last-writer-wins, including counts
// owed to a completion that raced the terminal transition.
func (s *Store) UpdateJobCounts(ctx context.Context, id string, processed, entities, findings int, total *int) error {
	var err error
	if total != nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET processed_files = ?, entities_found = ?, findings_created = ?,
				total_files = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			processed, entities, findings, *total, id)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE jobs SET processed_files = ?, entities_found = ?, findings_created = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			processed, entities, findings, id)
	}
	if err != nil {
		return fmt.Errorf("updating job counts: %w", err)
	}
	return nil
}

// SetJobFileHash records the root file digest used by the duplicate-scan
// fast path.
func (s *Store) SetJobFileHash(ctx context.Context, id, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET file_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		hash, id)
	if err != nil {
		return fmt.Errorf("setting job file hash: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Status, &j.FileName, &j.FileHash, &j.Error,
		&j.TotalFiles, &j.ProcessedFiles, &j.EntitiesFound, &j.FindingsCreated,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
