package store

import (
	"context"
	"fmt"
)

// AddFindings appends a batch of findings in one transaction, preserving
// slice order.
func (s *Store) AddFindings(ctx context.Context, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting findings batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (id, job_id, file_path, entity_type, entity_text,
			score, start_offset, end_offset, context, primary_regex,
			supporting_keywords)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing findings insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		_, err := stmt.ExecContext(ctx, f.ID, f.JobID, f.FilePath, f.EntityType,
			nullable(f.EntityText), f.Score, f.Start, f.End, f.Context,
			f.PrimaryRegex, marshalStrings(f.SupportingKeywords))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting finding %s: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing findings batch: %w", err)
	}
	return nil
}

// FindingsByJob returns a job's findings in insertion order.
func (s *Store) FindingsByJob(ctx context.Context, jobID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, file_path, entity_type, COALESCE(entity_text, ''),
			score, start_offset, end_offset, context, primary_regex,
			supporting_keywords, created_at
		FROM findings WHERE job_id = ? ORDER BY rowid`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing findings: %w", err)
	}
	defer rows.Close()

	var out []Finding
	for rows.Next() {
		var f Finding
		var keywords string
		err := rows.Scan(&f.ID, &f.JobID, &f.FilePath, &f.EntityType,
			&f.EntityText, &f.Score, &f.Start, &f.End, &f.Context,
			&f.PrimaryRegex, &keywords, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning finding: %w", err)
		}
		f.SupportingKeywords = unmarshalStrings(keywords)
		out = append(out, f)
	}
	return out, rows.Err()
}

// nullable maps "" to NULL so empty optional columns stay NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
