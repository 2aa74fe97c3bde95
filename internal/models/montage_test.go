package models

import "testing"

func threeSections() *Montage {
	return &Montage{
		Base: Base{Name: "attack", Length: 3},
		Sections: []Section{
			{Name: "Start", StartTime: 0, NextSectionName: "Mid"},
			{Name: "Mid", StartTime: 1, NextSectionName: "End"},
			{Name: "End", StartTime: 2},
		},
	}
}

func TestSectionIndexFromPosition(t *testing.T) {
	m := threeSections()
	cases := map[float32]int{0: 0, 0.5: 0, 1: 1, 2.99: 2, 3: 2, 3.5: IndexNone, -1: IndexNone}
	for pos, want := range cases {
		if got := m.SectionIndexFromPosition(pos); got != want {
			t.Errorf("SectionIndexFromPosition(%v) = %d, want %d", pos, got, want)
		}
	}
}

func TestSectionIndexAtEndSkipsEmptyTail(t *testing.T) {
	m := threeSections()
	m.Sections = append(m.Sections, Section{Name: "Tail", StartTime: 3})
	if got := m.SectionIndexFromPosition(3); got != 2 {
		t.Errorf("SectionIndexFromPosition(end) = %d, want 2", got)
	}
	if got := m.SectionTimeLeft(3); got != 0 {
		t.Errorf("SectionTimeLeft(end) = %v, want 0", got)
	}
}

func TestSectionLengthLastSectionEndsAtLength(t *testing.T) {
	m := threeSections()
	if got := m.SectionLength(2); got != 1 {
		t.Errorf("last section length = %v, want 1", got)
	}
	if got := m.SectionTimeLeft(2.25); got != 0.75 {
		t.Errorf("time left = %v, want 0.75", got)
	}
}

func TestAuthoredLinks(t *testing.T) {
	m := threeSections()
	m.Sections[2].NextSectionName = "Missing"
	got := m.AuthoredLinks()
	want := []int{1, 2, IndexNone}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("links = %v, want %v", got, want)
		}
	}
}

func TestAddSection_AutoNameAndLinkPrevious(t *testing.T) {
	m := threeSections()
	idx, err := m.AddSection("", 2.5)
	if err != nil {
		t.Fatalf("AddSection: %v", err)
	}
	if m.Sections[idx].Name != "Section4" {
		t.Errorf("name = %q, want Section4", m.Sections[idx].Name)
	}
	if m.Sections[2].NextSectionName != "Section4" {
		t.Errorf("previous next = %q, want Section4", m.Sections[2].NextSectionName)
	}
	if !m.Dirty {
		t.Error("montage should be dirty after edit")
	}
}

func TestAddSection_DuplicateRejected(t *testing.T) {
	m := threeSections()
	if _, err := m.AddSection("Mid", 0.2); err == nil {
		t.Fatal("duplicate section name should fail")
	}
}

func TestSortSectionsByTime(t *testing.T) {
	m := &Montage{Sections: []Section{
		{Name: "End", StartTime: 2},
		{Name: "Start", StartTime: 0},
		{Name: "Mid", StartTime: 1},
	}}
	m.SortSectionsByTime()
	for i, want := range []string{"Start", "Mid", "End"} {
		if m.Sections[i].Name != want {
			t.Fatalf("order = %v", m.Sections)
		}
	}
}

func TestAsMontage(t *testing.T) {
	var a Asset = threeSections()
	if _, ok := AsMontage(a); !ok {
		t.Error("montage should pass capability check")
	}
	a = &Sequence{Base: Base{Length: 1}}
	if _, ok := AsMontage(a); ok {
		t.Error("sequence should fail capability check")
	}
}

func TestNumFrames(t *testing.T) {
	m := threeSections()
	if got := m.NumFrames(); got != 90 {
		t.Errorf("NumFrames = %d, want 90", got)
	}
	empty := &Sequence{}
	if got := empty.NumFrames(); got != 1 {
		t.Errorf("NumFrames(empty) = %d, want 1", got)
	}
}
