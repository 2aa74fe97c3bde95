package index

import "github.com/starford/segue/internal/models"

// AssetIndex defines the interface for asset indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type AssetIndex interface {
	UpsertAsset(a AssetRow, body string, sections []models.Section, refs []string) error
	DeleteAsset(path string) error
	GetChecksum(path string) (string, error)
	GetAsset(path string) (*AssetRow, error)
	ListAssets(q ListQuery) ([]AssetRow, int, error)
	Sections(path string) ([]SectionRow, error)
	FindSections(name string) ([]SectionRow, error)
	ReferencedBy(target string) ([]string, error)
	Search(query string, limit int) ([]SearchResult, error)
	AllChecksums() (map[string]string, error)
	Ping() error
	Close() error
}

// Verify *DB satisfies AssetIndex at compile time.
var _ AssetIndex = (*DB)(nil)
