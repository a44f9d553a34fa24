package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// processed-file cache
// ---------------------------------------------------------------------------

// IsHashProcessed reports whether content with this digest was already
// scanned, across all jobs.
func (s *Store) IsHashProcessed(ctx context.Context, digest string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM processed_files WHERE sha256 = ?`, digest).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking processed hash: %w", err)
	}
	return true, nil
}

// MarkProcessed upserts the digest record. The path is informational; the
// newest path wins.
func (s *Store) MarkProcessed(ctx context.Context, path, digest string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_files (sha256, path) VALUES (?, ?)
		ON CONFLICT (sha256) DO UPDATE SET path = excluded.path,
			processed_at = CURRENT_TIMESTAMP`,
		digest, path)
	if err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// scan items
// ---------------------------------------------------------------------------

// AddScanItem appends one audit record for a job.
func (s *Store) AddScanItem(ctx context.Context, item *ScanItem) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_items (job_id, virtual_path, source_path, mime_type,
			extraction_method, ocr_used, text_chars, text_preview,
			entities_found, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.JobID, item.VirtualPath, item.SourcePath, item.MIMEType,
		item.ExtractionMethod, item.OCRUsed, item.TextChars, item.TextPreview,
		item.EntitiesFound, marshalStrings(item.Warnings))
	if err != nil {
		return fmt.Errorf("adding scan item: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		item.ID = id
	}
	return nil
}

// ScanItemsByJob returns a job's audit records in traversal order.
func (s *Store) ScanItemsByJob(ctx context.Context, jobID string) ([]ScanItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, virtual_path, source_path, mime_type,
			extraction_method, ocr_used, text_chars, text_preview,
			entities_found, warnings, created_at
		FROM scan_items WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("listing scan items: %w", err)
	}
	defer rows.Close()

	var items []ScanItem
	for rows.Next() {
		var it ScanItem
		var warnings string
		err := rows.Scan(&it.ID, &it.JobID, &it.VirtualPath, &it.SourcePath,
			&it.MIMEType, &it.ExtractionMethod, &it.OCRUsed, &it.TextChars,
			&it.TextPreview, &it.EntitiesFound, &warnings, &it.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning scan item: %w", err)
		}
		it.Warnings = unmarshalStrings(warnings)
		items = append(items, it)
	}
	return items, rows.Err()
}
