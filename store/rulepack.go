package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// NewRulepackInput names a rulepack; Version defaults to "1.0".
type NewRulepackInput struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

func (s *Store) CreateRulepack(ctx context.Context, in NewRulepackInput) (*Rulepack, error) {
	version := in.Version
	if version == "" {
		version = "1.0"
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rulepacks (id, name, version, description, publisher, locale)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, in.Name, version, in.Description, in.Publisher, in.Locale)
	if err != nil {
		return nil, fmt.Errorf("creating rulepack: %w", err)
	}
	return s.GetRulepack(ctx, id)
}

// GetRulepack loads a rulepack with its selected version ids in insertion
// order.
func (s *Store) GetRulepack(ctx context.Context, id string) (*Rulepack, error) {
	var rp Rulepack
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, version, description, publisher, locale, created_at
		FROM rulepacks WHERE id = ?`, id).
		Scan(&rp.ID, &rp.Name, &rp.Version, &rp.Description, &rp.Publisher,
			&rp.Locale, &rp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rulepack %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading rulepack: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sit_version_id FROM rulepack_selections
		WHERE rulepack_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("loading selections: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var vid string
		if err := rows.Scan(&vid); err != nil {
			return nil, fmt.Errorf("scanning selection: %w", err)
		}
		rp.Selections = append(rp.Selections, vid)
	}
	return &rp, rows.Err()
}

func (s *Store) ListRulepacks(ctx context.Context) ([]Rulepack, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, version, description, publisher, locale, created_at
		FROM rulepacks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing rulepacks: %w", err)
	}
	defer rows.Close()

	var packs []Rulepack
	for rows.Next() {
		var rp Rulepack
		err := rows.Scan(&rp.ID, &rp.Name, &rp.Version, &rp.Description,
			&rp.Publisher, &rp.Locale, &rp.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning rulepack: %w", err)
		}
		packs = append(packs, rp)
	}
	return packs, rows.Err()
}

// SetSelections replaces the rulepack's selected versions with versionIDs,
// in one transaction. Duplicate ids collapse to one selection.
func (s *Store) SetSelections(ctx context.Context, rulepackID string, versionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting selection update: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM rulepacks WHERE id = ?`, rulepackID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("rulepack %s: %w", rulepackID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking rulepack: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rulepack_selections WHERE rulepack_id = ?`, rulepackID); err != nil {
		return fmt.Errorf("clearing selections: %w", err)
	}
	for _, vid := range versionIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rulepack_selections (rulepack_id, sit_version_id) VALUES (?, ?)
			ON CONFLICT (rulepack_id, sit_version_id) DO NOTHING`,
			rulepackID, vid)
		if err != nil {
			return fmt.Errorf("inserting selection %s: %w", vid, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing selection update: %w", err)
	}
	return nil
}

// DeleteRulepack removes a rulepack and its selections.
func (s *Store) DeleteRulepack(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rulepacks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rulepack: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rulepack %s: %w", id, ErrNotFound)
	}
	return nil
}
