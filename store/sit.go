package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewVersionInput is everything needed to append a version to a SIT.
type NewVersionInput struct {
	EntityType string          `json:"entity_type,omitempty"`
	Confidence string          `json:"confidence,omitempty"`
	Source     string          `json:"source,omitempty"`
	Primary    PrimaryElement  `json:"primary"`
	Logic      SupportingLogic `json:"logic"`
	Groups     []GroupInput    `json:"groups,omitempty"`
}

// GroupInput declares one supporting group; position follows slice order.
type GroupInput struct {
	Name  string      `json:"name"`
	Items []ItemInput `json:"items,omitempty"`
}

// ItemInput declares one supporting item.
type ItemInput struct {
	ItemType      string `json:"item_type"`
	Value         string `json:"value,omitempty"`
	KeywordListID string `json:"keyword_list_id,omitempty"`
}

// CreateSIT registers a new SIT with no versions.
func (s *Store) CreateSIT(ctx context.Context, name, description string) (*SIT, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sits (id, name, description) VALUES (?, ?, ?)`,
		id, name, description)
	if err != nil {
		return nil, fmt.Errorf("creating sit: %w", err)
	}
	return s.GetSIT(ctx, id)
}

func (s *Store) GetSIT(ctx context.Context, id string) (*SIT, error) {
	var sit SIT
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM sits WHERE id = ?`, id).
		Scan(&sit.ID, &sit.Name, &sit.Description, &sit.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading sit: %w", err)
	}
	return &sit, nil
}

func (s *Store) ListSITs(ctx context.Context) ([]SIT, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM sits ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing sits: %w", err)
	}
	defer rows.Close()

	var sits []SIT
	for rows.Next() {
		var sit SIT
		if err := rows.Scan(&sit.ID, &sit.Name, &sit.Description, &sit.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sit: %w", err)
		}
		sits = append(sits, sit)
	}
	return sits, rows.Err()
}

// DeleteSIT removes a SIT and, through cascades, its whole version tree.
func (s *Store) DeleteSIT(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting sit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sit %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateSITVersion appends a version with the next dense version number.
// The number is claimed inside the transaction, so concurrent creates get
// distinct numbers.
func (s *Store) CreateSITVersion(ctx context.Context, sitID string, in NewVersionInput) (*SITVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting version create: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM sits WHERE id = ?`, sitID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sit %s: %w", sitID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking sit: %w", err)
	}

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM sit_versions WHERE sit_id = ?`,
		sitID).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("numbering version: %w", err)
	}

	versionID := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sit_versions (id, sit_id, version_number, entity_type, confidence, source)
		VALUES (?, ?, ?, ?, ?, ?)`,
		versionID, sitID, next, in.EntityType, in.Confidence, in.Source)
	if err != nil {
		return nil, fmt.Errorf("inserting version: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO primary_elements (version_id, element_type, value) VALUES (?, ?, ?)`,
		versionID, in.Primary.ElementType, in.Primary.Value)
	if err != nil {
		return nil, fmt.Errorf("inserting primary element: %w", err)
	}

	mode := in.Logic.Mode
	if mode == "" {
		mode = LogicAny
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO supporting_logic (version_id, mode, min_n, max_n) VALUES (?, ?, ?, ?)`,
		versionID, mode, in.Logic.MinN, in.Logic.MaxN)
	if err != nil {
		return nil, fmt.Errorf("inserting supporting logic: %w", err)
	}

	for gi, g := range in.Groups {
		groupID := uuid.NewString()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO supporting_groups (id, version_id, name, position) VALUES (?, ?, ?, ?)`,
			groupID, versionID, g.Name, gi)
		if err != nil {
			return nil, fmt.Errorf("inserting group %q: %w", g.Name, err)
		}
		for ii, item := range g.Items {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO supporting_items (id, group_id, item_type, value, keyword_list_id, position)
				VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.NewString(), groupID, item.ItemType, item.Value,
				nullable(item.KeywordListID), ii)
			if err != nil {
				return nil, fmt.Errorf("inserting item in group %q: %w", g.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing version create: %w", err)
	}

	versions, err := s.GetVersionsByIDs(ctx, []string{versionID})
	if err != nil {
		return nil, err
	}
	return &versions[0], nil
}

// ListSITVersions returns a SIT's versions oldest first, without their
// supporting trees.
func (s *Store) ListSITVersions(ctx context.Context, sitID string) ([]SITVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.sit_id, s.name, s.description, v.version_number,
			v.entity_type, v.confidence, v.source, v.created_at
		FROM sit_versions v JOIN sits s ON s.id = v.sit_id
		WHERE v.sit_id = ? ORDER BY v.version_number`, sitID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	var versions []SITVersion
	for rows.Next() {
		var v SITVersion
		err := rows.Scan(&v.ID, &v.SITID, &v.SITName, &v.SITDescription, &v.VersionNumber,
			&v.EntityType, &v.Confidence, &v.Source, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// GetVersionsByIDs loads versions with their primary elements, logic, and
// supporting trees. Every requested id must exist.
func (s *Store) GetVersionsByIDs(ctx context.Context, ids []string) ([]SITVersion, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := toArgs(ids)

	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.sit_id, s.name, s.description, v.version_number,
			v.entity_type, v.confidence, v.source, v.created_at
		FROM sit_versions v JOIN sits s ON s.id = v.sit_id
		WHERE v.id IN `+ph, args...)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*SITVersion, len(ids))
	for rows.Next() {
		var v SITVersion
		err := rows.Scan(&v.ID, &v.SITID, &v.SITName, &v.SITDescription, &v.VersionNumber,
			&v.EntityType, &v.Confidence, &v.Source, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		byID[v.ID] = &v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("sit version %s: %w", id, ErrNotFound)
		}
	}

	if err := s.loadPrimaries(ctx, ph, args, byID); err != nil {
		return nil, err
	}
	if err := s.loadLogic(ctx, ph, args, byID); err != nil {
		return nil, err
	}
	groupIDs, err := s.loadGroups(ctx, ph, args, byID)
	if err != nil {
		return nil, err
	}
	itemsByGroup, err := s.loadItems(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	for _, v := range byID {
		for i := range v.Groups {
			v.Groups[i].Items = itemsByGroup[v.Groups[i].ID]
		}
	}

	out := make([]SITVersion, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	return out, nil
}

func (s *Store) loadPrimaries(ctx context.Context, ph string, args []any, byID map[string]*SITVersion) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, element_type, value FROM primary_elements WHERE version_id IN `+ph, args...)
	if err != nil {
		return fmt.Errorf("loading primary elements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var versionID string
		var p PrimaryElement
		if err := rows.Scan(&versionID, &p.ElementType, &p.Value); err != nil {
			return fmt.Errorf("scanning primary element: %w", err)
		}
		if v := byID[versionID]; v != nil {
			v.Primary = p
		}
	}
	return rows.Err()
}

func (s *Store) loadLogic(ctx context.Context, ph string, args []any, byID map[string]*SITVersion) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, mode, min_n, max_n FROM supporting_logic WHERE version_id IN `+ph, args...)
	if err != nil {
		return fmt.Errorf("loading supporting logic: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var versionID string
		var l SupportingLogic
		var minN, maxN sql.NullInt64
		if err := rows.Scan(&versionID, &l.Mode, &minN, &maxN); err != nil {
			return fmt.Errorf("scanning supporting logic: %w", err)
		}
		if minN.Valid {
			n := int(minN.Int64)
			l.MinN = &n
		}
		if maxN.Valid {
			n := int(maxN.Int64)
			l.MaxN = &n
		}
		if v := byID[versionID]; v != nil {
			v.Logic = l
		}
	}
	return rows.Err()
}

// loadGroups attaches groups to their versions and returns the group ids
// for item loading. Items are attached afterwards, by id; appending to
// v.Groups reallocates its backing array, so no pointer into it may outlive
// this loop.
func (s *Store) loadGroups(ctx context.Context, ph string, args []any, byID map[string]*SITVersion) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, version_id, name, position FROM supporting_groups
		WHERE version_id IN `+ph+` ORDER BY version_id, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading groups: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var g SupportingGroup
		var versionID string
		if err := rows.Scan(&g.ID, &versionID, &g.Name, &g.Position); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		v := byID[versionID]
		if v == nil {
			continue
		}
		v.Groups = append(v.Groups, g)
		ids = append(ids, g.ID)
	}
	return ids, rows.Err()
}

func (s *Store) loadItems(ctx context.Context, groupIDs []string) (map[string][]SupportingItem, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, item_type, value, COALESCE(keyword_list_id, ''), position
		FROM supporting_items WHERE group_id IN `+placeholders(len(groupIDs))+`
		ORDER BY group_id, position`, toArgs(groupIDs)...)
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]SupportingItem)
	for rows.Next() {
		var it SupportingItem
		var groupID string
		err := rows.Scan(&it.ID, &groupID, &it.ItemType, &it.Value,
			&it.KeywordListID, &it.Position)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items[groupID] = append(items[groupID], it)
	}
	return items, rows.Err()
}

// ---------------------------------------------------------------------------
// keyword lists
// ---------------------------------------------------------------------------

// CreateKeywordList stores a list with its items in insertion order.
func (s *Store) CreateKeywordList(ctx context.Context, name, description string, items []string) (*KeywordList, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting keyword list create: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO keyword_lists (id, name, description) VALUES (?, ?, ?)`,
		id, name, description)
	if err != nil {
		return nil, fmt.Errorf("creating keyword list: %w", err)
	}
	for i, value := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO keyword_list_items (list_id, value, position) VALUES (?, ?, ?)`,
			id, value, i)
		if err != nil {
			return nil, fmt.Errorf("inserting keyword item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing keyword list create: %w", err)
	}
	return s.GetKeywordList(ctx, id)
}

func (s *Store) GetKeywordList(ctx context.Context, id string) (*KeywordList, error) {
	var kl KeywordList
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM keyword_lists WHERE id = ?`, id).
		Scan(&kl.ID, &kl.Name, &kl.Description, &kl.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("keyword list %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading keyword list: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT value FROM keyword_list_items WHERE list_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("loading keyword items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning keyword item: %w", err)
		}
		kl.Items = append(kl.Items, v)
	}
	return &kl, rows.Err()
}

func (s *Store) ListKeywordLists(ctx context.Context) ([]KeywordList, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM keyword_lists ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing keyword lists: %w", err)
	}
	defer rows.Close()

	var lists []KeywordList
	for rows.Next() {
		var kl KeywordList
		if err := rows.Scan(&kl.ID, &kl.Name, &kl.Description, &kl.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning keyword list: %w", err)
		}
		lists = append(lists, kl)
	}
	return lists, rows.Err()
}

// KeywordListsByIDs loads full lists for export resolution. Missing ids are
// simply absent from the result.
func (s *Store) KeywordListsByIDs(ctx context.Context, ids []string) (map[string]*KeywordList, error) {
	out := make(map[string]*KeywordList, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		kl, err := s.GetKeywordList(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = kl
	}
	return out, nil
}

func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
