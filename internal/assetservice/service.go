// Package assetservice coordinates the asset library on disk with its
// SQLite index: CRUD with optimistic concurrency, section editing and
// section graph inspection.
package assetservice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/checksum"
	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/parser"
	"github.com/starford/segue/internal/storage"
)

// AssetDetail is the full representation of an asset document.
type AssetDetail struct {
	Path         string        `json:"path"`
	Name         string        `json:"name"`
	Kind         models.Kind   `json:"kind"`
	Description  string        `json:"description,omitempty"`
	Tags         []string      `json:"tags"`
	Length       float32       `json:"length"`
	Frames       int           `json:"frames"`
	Checksum     string        `json:"checksum"`
	Content      string        `json:"content"`
	Sections     []SectionView `json:"sections"`
	ReferencedBy []string      `json:"referenced_by"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// AssetListItem is a lightweight item in a list response.
type AssetListItem struct {
	Path         string      `json:"path"`
	Name         string      `json:"name"`
	Kind         models.Kind `json:"kind"`
	Tags         []string    `json:"tags"`
	Length       float32     `json:"length"`
	SectionCount int         `json:"section_count"`
	Checksum     string      `json:"checksum"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Service coordinates storage and index operations.
type Service struct {
	store storage.Provider
	db    index.AssetIndex
}

// NewService creates a new asset service.
func NewService(store storage.Provider, db index.AssetIndex) *Service {
	return &Service{store: store, db: db}
}

// GetAsset reads, parses and describes an asset document.
func (s *Service) GetAsset(_ context.Context, path string) (*AssetDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(path, data, res)
}

// LoadAsset decodes the document at path and returns it with the checksum
// of the bytes it was decoded from.
func (s *Service) LoadAsset(_ context.Context, path string) (models.Asset, string, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, "", err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, "", err
	}
	return res.Asset, checksum.Sum(data), nil
}

// CreateAsset validates content, writes a new document and indexes it.
func (s *Service) CreateAsset(_ context.Context, path string, content []byte) (*AssetDetail, error) {
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s.write(path, content)
}

// UpdateAsset replaces a document. A non-empty ifMatch must equal the
// checksum of the current content.
func (s *Service) UpdateAsset(_ context.Context, path string, content []byte, ifMatch string) (*AssetDetail, error) {
	if err := s.checkMatch(path, ifMatch); err != nil {
		return nil, err
	}
	return s.write(path, content)
}

// SaveAsset encodes an in-memory asset over the document at path and
// clears its dirty flag.
func (s *Service) SaveAsset(_ context.Context, path string, asset models.Asset, ifMatch string) (*AssetDetail, error) {
	if err := s.checkMatch(path, ifMatch); err != nil {
		return nil, err
	}
	content, err := parser.Encode(asset)
	if err != nil {
		return nil, err
	}
	detail, err := s.write(path, content)
	if err != nil {
		return nil, err
	}
	asset.Common().Dirty = false
	return detail, nil
}

// DeleteAsset removes a document from storage and index.
func (s *Service) DeleteAsset(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	return s.db.DeleteAsset(path)
}

// ListAssets returns one page of indexed assets.
func (s *Service) ListAssets(_ context.Context, q index.ListQuery) ([]AssetListItem, int, error) {
	rows, total, err := s.db.ListAssets(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]AssetListItem, len(rows))
	for i, r := range rows {
		items[i] = AssetListItem{
			Path:         r.Path,
			Name:         r.Name,
			Kind:         r.Kind,
			Tags:         nonNilSlice(r.Tags),
			Length:       r.Length,
			SectionCount: r.SectionCount,
			Checksum:     r.Checksum,
			UpdatedAt:    r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// FindSections lists every montage section with the given name.
func (s *Service) FindSections(_ context.Context, name string) ([]index.SectionRow, error) {
	return s.db.FindSections(name)
}

// Ready reports whether the index is reachable.
func (s *Service) Ready(_ context.Context) error {
	return s.db.Ping()
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *Service) checkMatch(path, ifMatch string) error {
	existing, err := s.read(path)
	if err != nil {
		return err
	}
	if !checksum.Matches(ifMatch, existing) {
		return apperr.ErrConflict
	}
	return nil
}

func (s *Service) write(path string, content []byte) (*AssetDetail, error) {
	res, err := parser.Parse(content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := index.IndexDocument(s.db, path, content); err != nil {
		return nil, fmt.Errorf("assetservice: index %s: %w", path, err)
	}
	return s.buildDetail(path, content, res)
}

func (s *Service) buildDetail(path string, data []byte, res *parser.Result) (*AssetDetail, error) {
	refs, err := s.db.ReferencedBy(res.Name)
	if err != nil {
		return nil, err
	}
	base := res.Asset.Common()
	detail := &AssetDetail{
		Path:         path,
		Name:         res.Name,
		Kind:         res.Kind,
		Description:  res.Description,
		Tags:         nonNilSlice(res.Tags),
		Length:       base.Length,
		Frames:       base.NumFrames(),
		Checksum:     checksum.Sum(data),
		Content:      string(data),
		Sections:     []SectionView{},
		ReferencedBy: nonNilSlice(refs),
		UpdatedAt:    time.Now(),
	}
	if m, ok := models.AsMontage(res.Asset); ok {
		detail.Sections = sectionViews(m)
	}
	return detail, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
