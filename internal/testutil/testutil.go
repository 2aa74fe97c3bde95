// Package testutil provides shared test helpers for setting up asset
// libraries and index databases.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/storage"
)

// ComboDoc is a three-section montage: Start -> Mid -> End over 3 seconds.
const ComboDoc = `kind: montage
name: combo
description: Three hit melee combo
tags: [melee]
length: 3
skeleton:
  - name: Root
    parent: -1
    ref_pose: {translation: [0, 0, 0], rotation: [0, 0, 0, 1], scale: [1, 1, 1]}
  - name: Spine01
    parent: 0
    ref_pose: {translation: [0, 10, 0], rotation: [0, 0, 0, 1], scale: [1, 1, 1]}
sections:
  - {name: Start, start_time: 0, next: Mid}
  - {name: Mid, start_time: 1, next: End}
  - {name: End, start_time: 2}
`

// WalkDoc is a one second sequence.
const WalkDoc = `kind: sequence
name: walk
tags: [locomotion]
length: 1
`

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "segue-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, storage.Provider) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}

// WriteAsset stores doc at path, failing the test on error.
func WriteAsset(t *testing.T, store storage.Provider, path, doc string) {
	t.Helper()
	if err := store.Write(path, []byte(doc)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
