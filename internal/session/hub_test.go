package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chewxy/math32"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/preview"
	"github.com/starford/segue/internal/sse"
	"github.com/starford/segue/internal/testutil"
	"github.com/starford/segue/internal/xform"
)

const comboPath = "hero/combo.anim.yaml"

type recorder struct {
	mu     sync.Mutex
	events []sse.Event
	states int
	closed []string
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) PublishState(string, any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states++
}

func (r *recorder) PublishClosed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, id)
}

func (r *recorder) closedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.closed...)
}

// countingStore counts saves reaching the asset service.
type countingStore struct {
	AssetStore
	saves atomic.Int32
}

func (c *countingStore) SaveAsset(ctx context.Context, path string, asset models.Asset, ifMatch string) (*assetservice.AssetDetail, error) {
	c.saves.Add(1)
	return c.AssetStore.SaveAsset(ctx, path, asset, ifMatch)
}

func newTestService(t *testing.T) *assetservice.Service {
	t.Helper()
	_, store := testutil.TestLibrary(t)
	svc := assetservice.NewService(store, testutil.TestDB(t))
	if _, err := svc.CreateAsset(context.Background(), comboPath, []byte(testutil.ComboDoc)); err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	return svc
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *assetservice.Service, *recorder) {
	t.Helper()
	svc := newTestService(t)
	rec := &recorder{}
	return runHub(t, NewHub(cfg, svc, rec, nil)), svc, rec
}

func runHub(t *testing.T, h *Hub) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// requestKey starts SetKey in the background and waits until the hub
// holds the request.
func requestKey(t *testing.T, h *Hub, id string) <-chan preview.KeyResult {
	t.Helper()
	ctx := context.Background()
	out := make(chan preview.KeyResult, 1)
	go func() {
		res, err := h.SetKey(ctx, id, nil)
		if err != nil {
			t.Errorf("SetKey: %v", err)
		}
		out <- res
	}()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := h.Get(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if info.State.PendingKey {
			return out
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("key request never became pending")
	return nil
}

func awaitKey(t *testing.T, ch <-chan preview.KeyResult) preview.KeyResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("SetKey did not return")
		return preview.KeyResult{}
	}
}

func TestOpenGetListClose(t *testing.T) {
	h, _, rec := newTestHub(t, Config{})
	ctx := context.Background()

	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if info.ID == "" || info.State.Playing || info.State.Length != 3 {
		t.Fatalf("info = %+v", info)
	}
	if _, ok := info.Pose.Bones["Spine01"]; !ok {
		t.Errorf("pose bones = %v", info.Pose.Bones)
	}

	got, err := h.Get(ctx, info.ID)
	if err != nil || got.Path != comboPath {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	list, err := h.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}

	if err := h.Close(ctx, info.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.Close(ctx, info.ID); !errors.Is(err, apperr.ErrNoSession) {
		t.Fatalf("second Close: err = %v", err)
	}
	if ids := rec.closedIDs(); len(ids) != 1 || ids[0] != info.ID {
		t.Errorf("closed events = %v", ids)
	}
}

func TestOpenErrors(t *testing.T) {
	h, _, _ := newTestHub(t, Config{MaxSessions: 1})
	ctx := context.Background()

	if _, err := h.Open(ctx, "missing.anim.yaml", false); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing asset: err = %v", err)
	}
	if _, err := h.Open(ctx, comboPath, false); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Open(ctx, comboPath, false); !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("over limit: err = %v", err)
	}
}

func TestCommandsDrivePlayback(t *testing.T) {
	h, _, _ := newTestHub(t, Config{})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	info, err = h.Command(ctx, info.ID, Command{Name: CmdPlay})
	if err != nil || !info.State.Playing {
		t.Fatalf("play: %+v, %v", info.State, err)
	}
	if err := h.Advance(ctx, 0.5); err != nil {
		t.Fatal(err)
	}
	info, _ = h.Get(ctx, info.ID)
	if math32.Abs(info.State.Time-0.5) > xform.Tolerance {
		t.Fatalf("time after advance = %v", info.State.Time)
	}

	info, err = h.Command(ctx, info.ID, Command{Name: CmdJumpEnd})
	if err != nil {
		t.Fatal(err)
	}
	if info.State.SectionName != "End" {
		t.Errorf("jump_end section = %q", info.State.SectionName)
	}

	info, err = h.Command(ctx, info.ID, Command{Name: CmdLoop, Enabled: true, Section: "Mid"})
	if err != nil {
		t.Fatal(err)
	}
	if !info.State.Looping || len(info.State.LiveLinks) != 3 {
		t.Errorf("loop state = %+v", info.State)
	}

	if _, err := h.Command(ctx, info.ID, Command{Name: "dance"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("unknown command: err = %v", err)
	}
	if _, err := h.Command(ctx, info.ID, Command{Name: CmdPreviewNormal, Section: "Nope"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown section: err = %v", err)
	}
	if _, err := h.Command(ctx, info.ID, Command{Name: CmdRate, Rate: -1}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("negative rate: err = %v", err)
	}
	if _, err := h.Command(ctx, "nope", Command{Name: CmdPlay}); !errors.Is(err, apperr.ErrNoSession) {
		t.Errorf("unknown session: err = %v", err)
	}
}

func TestSetKeyPersistsCurves(t *testing.T) {
	h, svc, rec := newTestHub(t, Config{})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	lifted := xform.Identity()
	lifted.Translation = xform.Vec3{0, 5, 0}
	info, err = h.SetModifier(ctx, info.ID, "Root", ModifierUpdate{Value: lifted})
	if err != nil {
		t.Fatalf("SetModifier: %v", err)
	}
	if len(info.Modifiers) != 1 || info.Modifiers[0].Bone != "Root" {
		t.Fatalf("modifiers = %+v", info.Modifiers)
	}
	if !info.Pose.Bones["Root"].NearlyEqual(lifted, xform.Tolerance) {
		t.Errorf("posed root = %+v", info.Pose.Bones["Root"])
	}

	res, err := h.SetKey(ctx, info.ID, nil)
	if err != nil {
		t.Fatalf("SetKey: %v", err)
	}
	if !res.Applied || len(res.Bones) != 1 || res.Bones[0] != "Root" {
		t.Fatalf("key result = %+v", res)
	}

	asset, _, err := svc.LoadAsset(ctx, comboPath)
	if err != nil {
		t.Fatal(err)
	}
	curve, ok := asset.Common().Curves["Root"]
	if !ok || len(curve.Keys) != 1 {
		t.Fatalf("saved curves = %+v", asset.Common().Curves)
	}
	if !curve.Keys[0].Transform.Translation.NearlyEqual(xform.Vec3{0, 5, 0}, xform.Tolerance) {
		t.Errorf("curve key = %+v", curve.Keys[0])
	}

	info, _ = h.Get(ctx, info.ID)
	if len(info.Modifiers) != 0 || info.State.CurveModifiers != 1 {
		t.Errorf("after key: modifiers=%d curve=%d", len(info.Modifiers), info.State.CurveModifiers)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 1 || rec.events[0].Type != sse.TypeKeyApplied {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestModifierValidation(t *testing.T) {
	h, _, _ := newTestHub(t, Config{})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.SetModifier(ctx, info.ID, "Root", ModifierUpdate{Value: xform.Identity(), RotationMode: "spin"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Fatalf("bad mode: err = %v", err)
	}
	if _, err := h.SetModifier(ctx, info.ID, "Root", ModifierUpdate{Value: xform.Identity()}); err != nil {
		t.Fatal(err)
	}
	info, err = h.RemoveModifier(ctx, info.ID, "Root")
	if err != nil || len(info.Modifiers) != 0 {
		t.Fatalf("RemoveModifier = %+v, %v", info.Modifiers, err)
	}
}

func TestReloadPath(t *testing.T) {
	h, svc, rec := newTestHub(t, Config{})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	edited := strings.Replace(testutil.ComboDoc, "name: combo\n", "name: combo2\n", 1)
	detail, err := svc.GetAsset(ctx, comboPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateAsset(ctx, comboPath, []byte(edited), detail.Checksum); err != nil {
		t.Fatalf("UpdateAsset: %v", err)
	}
	if err := h.ReloadPath(ctx, comboPath, false); err != nil {
		t.Fatalf("ReloadPath: %v", err)
	}
	info, _ = h.Get(ctx, info.ID)
	if info.State.Asset != "combo2" {
		t.Errorf("reloaded asset name = %q", info.State.Asset)
	}

	if err := h.ReloadPath(ctx, comboPath, true); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Get(ctx, info.ID); !errors.Is(err, apperr.ErrNoSession) {
		t.Fatalf("session survived delete: err = %v", err)
	}
	if len(rec.closedIDs()) != 1 {
		t.Errorf("closed = %v", rec.closedIDs())
	}
}

func TestModifierEditSavesConsumedKey(t *testing.T) {
	h, svc, _ := newTestHub(t, Config{TickRate: 1})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	pending := requestKey(t, h, info.ID)
	lifted := xform.Identity()
	lifted.Translation = xform.Vec3{0, 5, 0}
	if _, err := h.SetModifier(ctx, info.ID, "Root", ModifierUpdate{Value: lifted}); err != nil {
		t.Fatalf("SetModifier: %v", err)
	}
	if res := awaitKey(t, pending); !res.Applied {
		t.Fatalf("key result = %+v", res)
	}

	asset, _, err := svc.LoadAsset(ctx, comboPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := asset.Common().Curves["Root"]; !ok {
		t.Fatalf("consumed key not saved: curves = %+v", asset.Common().Curves)
	}
}

func TestCloseCompletesPendingKey(t *testing.T) {
	h, _, rec := newTestHub(t, Config{TickRate: 1})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	pending := requestKey(t, h, info.ID)
	if err := h.Close(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	if res := awaitKey(t, pending); res.Applied {
		t.Fatalf("key applied on a closed session: %+v", res)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestDeletedAssetCompletesPendingKey(t *testing.T) {
	h, _, _ := newTestHub(t, Config{TickRate: 1})
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	pending := requestKey(t, h, info.ID)
	if err := h.ReloadPath(ctx, comboPath, true); err != nil {
		t.Fatal(err)
	}
	if res := awaitKey(t, pending); res.Applied {
		t.Fatalf("key applied on a deleted asset: %+v", res)
	}
}

func TestFailedSaveWaitsForNextKey(t *testing.T) {
	svc := newTestService(t)
	store := &countingStore{AssetStore: svc}
	h := runHub(t, NewHub(Config{}, store, &recorder{}, nil))
	ctx := context.Background()
	info, err := h.Open(ctx, comboPath, false)
	if err != nil {
		t.Fatal(err)
	}

	// An external edit the session has not reloaded makes saves conflict.
	detail, err := svc.GetAsset(ctx, comboPath)
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(testutil.ComboDoc, "name: combo\n", "name: combo2\n", 1)
	if _, err := svc.UpdateAsset(ctx, comboPath, []byte(edited), detail.Checksum); err != nil {
		t.Fatal(err)
	}

	if _, err := h.Command(ctx, info.ID, Command{Name: CmdPlay}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.SetKey(ctx, info.ID, []string{"Root"}); err != nil {
		t.Fatal(err)
	}
	if got := store.saves.Load(); got != 1 {
		t.Fatalf("saves after key = %d, want 1", got)
	}

	for i := 0; i < 3; i++ {
		if err := h.Advance(ctx, 0.1); err != nil {
			t.Fatal(err)
		}
	}
	if got := store.saves.Load(); got != 1 {
		t.Fatalf("saves retried on tick: %d", got)
	}

	if _, err := h.SetKey(ctx, info.ID, []string{"Root"}); err != nil {
		t.Fatal(err)
	}
	if got := store.saves.Load(); got != 2 {
		t.Errorf("saves after second key = %d, want 2", got)
	}
}
