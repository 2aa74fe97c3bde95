package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/models"
)

// AssetRow represents a row in the assets table.
type AssetRow struct {
	Path         string
	Name         string
	Kind         models.Kind
	Description  string
	Checksum     string
	Tags         []string
	Length       float32
	SectionCount int
	UpdatedAt    time.Time
}

// SectionRow represents one indexed montage section.
type SectionRow struct {
	AssetPath string
	Index     int
	Name      string
	StartTime float32
	Next      string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Name    string
	Kind    models.Kind
	Snippet string
}

// ListQuery filters and pages ListAssets.
type ListQuery struct {
	Limit  int
	Offset int
	Kind   models.Kind
	Tag    string
	// Sort is "name" (default), "path" or "updated".
	Sort string
}

// UpsertAsset inserts or replaces an asset, its sections, references and
// FTS entry within a transaction.
func (db *DB) UpsertAsset(a AssetRow, body string, sections []models.Section, refs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if a.Tags == nil {
		a.Tags = []string{}
	}
	tagsJSON, _ := json.Marshal(a.Tags)

	_, err = tx.Exec(`
		INSERT INTO assets (path, name, kind, description, checksum, tags, length, section_count, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			name          = excluded.name,
			kind          = excluded.kind,
			description   = excluded.description,
			checksum      = excluded.checksum,
			tags          = excluded.tags,
			length        = excluded.length,
			section_count = excluded.section_count,
			body          = excluded.body,
			updated_at    = excluded.updated_at
	`, a.Path, a.Name, string(a.Kind), a.Description, a.Checksum, string(tagsJSON),
		a.Length, len(sections), body, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert asset: %w", err)
	}

	if err := ftsUpsert(tx, a.Path, a.Name, body, a.Tags); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM sections WHERE asset_path = ?`, a.Path); err != nil {
		return fmt.Errorf("index: clear sections: %w", err)
	}
	if len(sections) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO sections (asset_path, idx, name, start_time, next_name) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare section insert: %w", err)
		}
		defer stmt.Close()
		for i, s := range sections {
			if _, err := stmt.Exec(a.Path, i, s.Name, s.StartTime, s.NextSectionName); err != nil {
				return fmt.Errorf("index: insert section %q: %w", s.Name, err)
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM asset_refs WHERE source = ?`, a.Path); err != nil {
		return fmt.Errorf("index: clear refs: %w", err)
	}
	if len(refs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO asset_refs (source, target) VALUES (?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare ref insert: %w", err)
		}
		defer stmt.Close()
		for _, target := range refs {
			if _, err := stmt.Exec(a.Path, target); err != nil {
				return fmt.Errorf("index: insert ref: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteAsset removes an asset; sections and references cascade.
func (db *DB) DeleteAsset(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, path); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM assets WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete asset: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for an asset, or "" if it is not
// indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM assets WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

const assetColumns = `path, name, kind, description, checksum, tags, length, section_count, updated_at`

func scanAsset(sc interface{ Scan(...any) error }) (AssetRow, error) {
	var (
		r    AssetRow
		kind string
		tags string
	)
	if err := sc.Scan(&r.Path, &r.Name, &kind, &r.Description, &r.Checksum, &tags, &r.Length, &r.SectionCount, &r.UpdatedAt); err != nil {
		return r, err
	}
	r.Kind = models.Kind(kind)
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return r, nil
}

// GetAsset returns one indexed asset.
func (db *DB) GetAsset(path string) (*AssetRow, error) {
	r, err := scanAsset(db.conn.QueryRow(`SELECT `+assetColumns+` FROM assets WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get asset: %w", err)
	}
	return &r, nil
}

// ListAssets returns one page of assets and the total match count.
func (db *DB) ListAssets(q ListQuery) ([]AssetRow, int, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	var (
		where []string
		args  []any
	)
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(q.Kind))
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(assets.tags) WHERE json_each.value = ?)")
		args = append(args, q.Tag)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM assets`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count assets: %w", err)
	}

	order := "name, path"
	switch q.Sort {
	case "path":
		order = "path"
	case "updated":
		order = "updated_at DESC, path"
	}
	rows, err := db.conn.Query(`SELECT `+assetColumns+` FROM assets`+clause+` ORDER BY `+order+` LIMIT ? OFFSET ?`,
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list assets: %w", err)
	}
	defer rows.Close()

	var out []AssetRow
	for rows.Next() {
		r, err := scanAsset(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// Sections returns the indexed sections of an asset in table order.
func (db *DB) Sections(path string) ([]SectionRow, error) {
	return db.querySections(`SELECT asset_path, idx, name, start_time, next_name FROM sections WHERE asset_path = ? ORDER BY idx`, path)
}

// FindSections returns every section with the given name across the library.
func (db *DB) FindSections(name string) ([]SectionRow, error) {
	return db.querySections(`SELECT asset_path, idx, name, start_time, next_name FROM sections WHERE name = ? ORDER BY asset_path`, name)
}

func (db *DB) querySections(query string, arg string) ([]SectionRow, error) {
	rows, err := db.conn.Query(query, arg)
	if err != nil {
		return nil, fmt.Errorf("index: sections: %w", err)
	}
	defer rows.Close()

	var out []SectionRow
	for rows.Next() {
		var s SectionRow
		if err := rows.Scan(&s.AssetPath, &s.Index, &s.Name, &s.StartTime, &s.Next); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReferencedBy returns the paths of assets that reference target by name.
func (db *DB) ReferencedBy(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM asset_refs WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("index: referenced by: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllChecksums maps every indexed path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM assets`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}
