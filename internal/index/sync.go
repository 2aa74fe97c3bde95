package index

import (
	"log/slog"
	"time"

	"github.com/starford/segue/internal/checksum"
	"github.com/starford/segue/internal/parser"
	"github.com/starford/segue/internal/storage"
)

// Sync walks the library and brings the index up to date:
//   - new/changed documents are parsed and upserted
//   - documents removed from disk are deleted from the index
//
// Documents that fail to parse are logged and left out of the index.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := IndexDocument(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteAsset(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexDocument parses data and upserts it under path.
func IndexDocument(db AssetIndex, path string, data []byte) (*parser.Result, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	row := AssetRow{
		Path:        path,
		Name:        res.Name,
		Kind:        res.Kind,
		Description: res.Description,
		Checksum:    checksum.Sum(data),
		Tags:        res.Tags,
		Length:      res.Asset.Common().Length,
		UpdatedAt:   time.Now(),
	}
	if err := db.UpsertAsset(row, res.Body, res.Sections, res.References); err != nil {
		return nil, err
	}
	return res, nil
}
