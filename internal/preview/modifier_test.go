package preview

import (
	"slices"
	"testing"

	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/xform"
)

func skeletalSequence() *models.Sequence {
	return &models.Sequence{Base: models.Base{
		Name:   "idle",
		Length: 1,
		Skeleton: []models.Bone{
			{Name: "Root", Parent: models.IndexNone, RefPose: xform.Identity()},
			{Name: "Spine01", Parent: 0, RefPose: xform.Identity()},
		},
	}}
}

func translated(x, y, z float32) xform.Transform {
	t := xform.Identity()
	t.Translation = xform.Vec3{x, y, z}
	return t
}

func TestRemoveLeavesNoStaleModifier(t *testing.T) {
	c := New(skeletalSequence())
	mod := c.FindOrCreateModifier("Spine01", false)
	mod.Value = translated(3, 0, 0)
	mod.RotationMode = ModeIgnore

	c.RemoveModifier("Spine01", false)
	if n := len(c.Modifiers(false)); n != 0 {
		t.Fatalf("manual list has %d entries after remove", n)
	}

	fresh := c.FindOrCreateModifier("Spine01", false)
	if fresh == mod {
		t.Fatal("removed entry was reused")
	}
	if fresh.TranslationMode != ModeReplace || fresh.RotationMode != ModeReplace || fresh.ScaleMode != ModeReplace {
		t.Errorf("modes = %q %q %q, want replace", fresh.TranslationMode, fresh.RotationMode, fresh.ScaleMode)
	}
	if fresh.Space != SpaceBone {
		t.Errorf("space = %q", fresh.Space)
	}
	if !fresh.Value.IsIdentity(xform.Tolerance) {
		t.Errorf("value = %+v, want the base pose", fresh.Value)
	}
}

func TestFindOrCreateIsPerList(t *testing.T) {
	c := New(skeletalSequence())
	manual := c.FindOrCreateModifier("Root", false)
	curve := c.FindOrCreateModifier("Root", true)
	if manual == curve {
		t.Fatal("lists share entries")
	}
	if curve.TranslationMode != ModeAdditive {
		t.Errorf("curve mode = %q, want additive", curve.TranslationMode)
	}
	if again := c.FindOrCreateModifier("Root", false); again != manual {
		t.Error("second lookup created a new entry")
	}
	c.RemoveModifier("Missing", false)
	c.ResetModifiers(true)
	if len(c.Modifiers(true)) != 0 || len(c.Modifiers(false)) != 1 {
		t.Errorf("reset touched the wrong list")
	}
}

func TestManualModifiersWinOverCurves(t *testing.T) {
	seq := skeletalSequence()
	seq.Curves = map[string]*models.Track{
		"Spine01": {Keys: []models.Key{{Time: 0, Transform: translated(1, 0, 0)}}},
	}
	c := New(seq)
	if got := c.Modifiers(true); len(got) != 1 || got[0].Bone != "Spine01" {
		t.Fatalf("curve modifiers = %+v", got)
	}

	pose := c.EvaluatePose()
	if got := pose.Bones["Spine01"].Translation; !got.NearlyEqual(xform.Vec3{1, 0, 0}, xform.Tolerance) {
		t.Fatalf("curve-only translation = %v", got)
	}

	c.SetModifier("Spine01", translated(5, 0, 0))
	pose = c.EvaluatePose()
	if got := pose.Bones["Spine01"].Translation; !got.NearlyEqual(xform.Vec3{5, 0, 0}, xform.Tolerance) {
		t.Fatalf("manual translation = %v, want 5,0,0", got)
	}
}

func TestSetKeyConsumedOnce(t *testing.T) {
	seq := skeletalSequence()
	c := New(seq)
	c.SetModifier("Root", translated(0, 2, 0))

	var results []KeyResult
	ok := c.RequestKey(KeyRequest{
		Bones: []string{"Hand"},
		Done:  func(r KeyResult) { results = append(results, r) },
	})
	if !ok {
		t.Fatal("first request rejected")
	}
	if c.RequestKey(KeyRequest{}) {
		t.Fatal("second pending request accepted")
	}

	c.EvaluatePose()
	if len(results) != 1 || !results[0].Applied {
		t.Fatalf("results = %+v", results)
	}
	if !slices.Equal(results[0].Bones, []string{"Root", "Hand"}) {
		t.Errorf("keyed bones = %v", results[0].Bones)
	}
	if !seq.Dirty {
		t.Error("asset not marked dirty")
	}
	root, ok := seq.Curves["Root"].Sample(0)
	if !ok || !root.Translation.NearlyEqual(xform.Vec3{0, 2, 0}, xform.Tolerance) {
		t.Fatalf("root key = %+v", root)
	}
	hand, ok := seq.Curves["Hand"].Sample(0)
	if !ok || !hand.IsIdentity(xform.Tolerance) {
		t.Fatalf("hand key = %+v, want identity", hand)
	}
	if len(c.Modifiers(false)) != 0 {
		t.Error("manual list not cleared")
	}
	if c.HasPendingKey() {
		t.Error("request still pending")
	}

	pose := c.EvaluatePose()
	if len(results) != 1 {
		t.Fatalf("request consumed %d times", len(results))
	}
	if got := pose.Bones["Root"].Translation; !got.NearlyEqual(xform.Vec3{0, 2, 0}, xform.Tolerance) {
		t.Errorf("keyed pose lost the edit: %v", got)
	}
}

func TestKeyRequestConsumedWithoutAsset(t *testing.T) {
	c := New(nil)
	called := 0
	c.RequestKey(KeyRequest{Done: func(r KeyResult) {
		called++
		if r.Applied {
			t.Error("applied without an asset")
		}
	}})
	c.Tick(0.1)
	if called != 1 || c.HasPendingKey() {
		t.Fatalf("called=%d pending=%v", called, c.HasPendingKey())
	}
}

func TestSetAssetCompletesPendingKey(t *testing.T) {
	c := New(testMontage())
	var results []KeyResult
	c.RequestKey(KeyRequest{Done: func(r KeyResult) { results = append(results, r) }})

	c.SetAsset(testMontage())
	if len(results) != 1 || results[0].Applied {
		t.Fatalf("results = %+v, want one unapplied result", results)
	}
	if c.HasPendingKey() {
		t.Fatal("request still pending after SetAsset")
	}
	c.EvaluatePose()
	if len(results) != 1 {
		t.Errorf("request completed twice: %+v", results)
	}
}

func TestCancelKey(t *testing.T) {
	c := New(testMontage())
	c.CancelKey()

	called := 0
	c.RequestKey(KeyRequest{Done: func(r KeyResult) {
		called++
		if r.Applied {
			t.Error("cancelled request applied")
		}
	}})
	c.CancelKey()
	c.CancelKey()
	if called != 1 || c.HasPendingKey() {
		t.Fatalf("called=%d pending=%v", called, c.HasPendingKey())
	}
}
