package assetservice

import (
	"context"
	"errors"
	"testing"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/index"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/testutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	_, store := testutil.TestLibrary(t)
	return NewService(store, testutil.TestDB(t))
}

func TestCreateGetUpdateDelete(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateAsset(ctx, "hero/combo.anim.yaml", []byte(testutil.ComboDoc))
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if created.Kind != models.KindMontage || len(created.Sections) != 3 || created.Frames != 90 {
		t.Fatalf("detail = %+v", created)
	}
	if created.Sections[2].EndTime != 3 || created.Sections[1].Length != 1 {
		t.Errorf("section views = %+v", created.Sections)
	}

	if _, err := s.CreateAsset(ctx, "hero/combo.anim.yaml", []byte(testutil.ComboDoc)); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("duplicate create: err = %v", err)
	}

	if _, err := s.UpdateAsset(ctx, "hero/combo.anim.yaml", []byte(testutil.ComboDoc), "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale update: err = %v", err)
	}
	if _, err := s.UpdateAsset(ctx, "hero/combo.anim.yaml", []byte(testutil.WalkDoc), created.Checksum); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	got, err := s.GetAsset(ctx, "hero/combo.anim.yaml")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.Kind != models.KindSequence {
		t.Errorf("kind after update = %q", got.Kind)
	}

	if err := s.DeleteAsset(ctx, "hero/combo.anim.yaml"); err != nil {
		t.Fatalf("DeleteAsset: %v", err)
	}
	if _, err := s.GetAsset(ctx, "hero/combo.anim.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("get after delete: err = %v", err)
	}
	if err := s.DeleteAsset(ctx, "hero/combo.anim.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
}

func TestCreateRejectsInvalidDocument(t *testing.T) {
	s := newTestService(t)
	_, err := s.CreateAsset(context.Background(), "bad.anim.yaml", []byte("kind: montage\nlength: 1\n"))
	if !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("err = %v, want ErrInvalid", err)
	}
	items, total, _ := s.ListAssets(context.Background(), index.ListQuery{})
	if total != 0 || len(items) != 0 {
		t.Errorf("invalid document was indexed: %+v", items)
	}
}

func TestListAndSearch(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, _ = s.CreateAsset(ctx, "combo.anim.yaml", []byte(testutil.ComboDoc))
	_, _ = s.CreateAsset(ctx, "walk.anim.yaml", []byte(testutil.WalkDoc))

	items, total, err := s.ListAssets(ctx, index.ListQuery{Kind: models.KindMontage})
	if err != nil {
		t.Fatalf("ListAssets: %v", err)
	}
	if total != 1 || items[0].Path != "combo.anim.yaml" || items[0].SectionCount != 3 {
		t.Errorf("items = %+v", items)
	}

	hits, err := s.Search(ctx, "Spine01", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "combo.anim.yaml" {
		t.Errorf("hits = %+v", hits)
	}

	secs, err := s.FindSections(ctx, "Mid")
	if err != nil || len(secs) != 1 {
		t.Errorf("FindSections = %+v, %v", secs, err)
	}
}

func TestSaveAssetClearsDirty(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	_, _ = s.CreateAsset(ctx, "combo.anim.yaml", []byte(testutil.ComboDoc))

	asset, cs, err := s.LoadAsset(ctx, "combo.anim.yaml")
	if err != nil {
		t.Fatalf("LoadAsset: %v", err)
	}
	asset.Common().AddCurveKey("Root", 0.5, asset.Common().Skeleton[0].RefPose)
	if !asset.Common().Dirty {
		t.Fatal("precondition: asset should be dirty")
	}
	detail, err := s.SaveAsset(ctx, "combo.anim.yaml", asset, cs)
	if err != nil {
		t.Fatalf("SaveAsset: %v", err)
	}
	if asset.Common().Dirty {
		t.Error("dirty flag not cleared")
	}
	if detail.Checksum == cs {
		t.Error("checksum unchanged after save")
	}
	reloaded, _, _ := s.LoadAsset(ctx, "combo.anim.yaml")
	if _, ok := reloaded.Common().Curves["Root"]; !ok {
		t.Error("curve key not persisted")
	}
}
