// Package playback simulates a live montage instance: a play position, a
// signed play rate and the live next/prev section tables that decide where
// playback continues when a section ends.
package playback

import (
	"github.com/chewxy/math32"

	"github.com/starford/segue/internal/models"
)

// KindaSmallNumber offsets jump-to-end positions so they stay inside the
// section being jumped to.
const KindaSmallNumber = 1e-4

// Instance is one playing montage. A finished instance is inactive; the
// jump primitives only work while the instance is active.
type Instance struct {
	montage  *models.Montage
	position float32
	playRate float32
	playing  bool
	active   bool

	next []int
	prev []int
}

// New starts playing m from time 0 using the authored links.
func New(m *models.Montage, playRate float32) *Instance {
	in := &Instance{
		montage:  m,
		playRate: playRate,
		playing:  true,
		active:   true,
	}
	in.SetLinks(m.AuthoredLinks())
	return in
}

func (in *Instance) Montage() *models.Montage { return in.montage }
func (in *Instance) Position() float32        { return in.position }
func (in *Instance) PlayRate() float32        { return in.playRate }
func (in *Instance) IsPlaying() bool          { return in.active && in.playing }
func (in *Instance) IsActive() bool           { return in.active }

// SetPlaying pauses or resumes an active instance.
func (in *Instance) SetPlaying(playing bool) {
	in.playing = playing
}

func (in *Instance) SetPlayRate(rate float32) {
	in.playRate = rate
}

// SetPosition moves the play head, clamped to the montage length.
func (in *Instance) SetPosition(t float32) {
	in.position = clampTime(t, in.montage.Length)
}

// Stop finishes the instance.
func (in *Instance) Stop() {
	in.playing = false
	in.active = false
}

// NextSections returns the live next-section table. Callers must not
// modify it.
func (in *Instance) NextSections() []int { return in.next }

// PrevSections returns the live reverse table derived from NextSections.
func (in *Instance) PrevSections() []int { return in.prev }

// SetLinks installs a complete live table and rebuilds the reverse links.
// Entries outside the section range become terminal.
func (in *Instance) SetLinks(links []int) {
	n := len(in.montage.Sections)
	in.next = make([]int, n)
	in.prev = make([]int, n)
	for i := range in.prev {
		in.prev[i] = models.IndexNone
	}
	for i := range in.next {
		in.next[i] = models.IndexNone
		if i < len(links) {
			in.SetNextSection(i, links[i])
		}
	}
}

// SetNextSection rewrites one live link, keeping the reverse table in step.
func (in *Instance) SetNextSection(section, next int) bool {
	if section < 0 || section >= len(in.next) {
		return false
	}
	if old := in.next[section]; old >= 0 && old < len(in.prev) && in.prev[old] == section {
		in.prev[old] = models.IndexNone
	}
	if next < 0 || next >= len(in.next) {
		next = models.IndexNone
	} else {
		in.prev[next] = section
	}
	in.next[section] = next
	return true
}

// SetNextSectionName is SetNextSection keyed by section names. An empty or
// unknown next name makes the section terminal.
func (in *Instance) SetNextSectionName(section, next string) bool {
	return in.SetNextSection(in.montage.SectionIndex(section), in.montage.SectionIndex(next))
}

// CurrentSection is the section containing the play position.
func (in *Instance) CurrentSection() int {
	return in.montage.SectionIndexFromPosition(in.position)
}

// JumpToSection moves to the start of the named section, or just before its
// end when endOfSection is set. It fails on an inactive instance or an
// unknown section.
func (in *Instance) JumpToSection(name string, endOfSection bool) bool {
	if !in.active {
		return false
	}
	idx := in.montage.SectionIndex(name)
	if idx == models.IndexNone {
		return false
	}
	start := in.montage.Sections[idx].StartTime
	if endOfSection {
		start += in.montage.SectionLength(idx) - KindaSmallNumber
	}
	in.position = clampTime(start, in.montage.Length)
	return true
}

// Advance moves the play head by dt seconds at the current play rate, one
// section at a time. At a section boundary playback continues at the live
// next section (prev section when reversing); a terminal link finishes the
// instance.
func (in *Instance) Advance(dt float32) {
	if !in.IsPlaying() {
		return
	}
	in.refresh()

	forward := in.playRate > 0
	move := in.playRate * dt
	original := move

	for in.playing && math32.Abs(move) > 0 && original*move > 0 {
		cur := in.CurrentSection()
		if cur == models.IndexNone {
			in.Stop()
			return
		}
		start, end := in.montage.SectionStartEnd(cur)
		length := end - start
		pos := in.position - start

		target := pos + move
		reached := (forward && target >= length) || (!forward && target <= 0)
		newPos := clamp(target, 0, length)
		move -= newPos - pos
		in.position = start + newPos

		if !reached {
			return
		}
		nextIdx := in.next[cur]
		if !forward {
			nextIdx = in.prev[cur]
		}
		if nextIdx == models.IndexNone {
			in.Stop()
			return
		}
		nextStart, nextEnd := in.montage.SectionStartEnd(nextIdx)
		if forward {
			in.position = nextStart
		} else {
			in.position = nextEnd - KindaSmallNumber*0.5
		}
	}
}

// refresh rebuilds the live tables from authored links after the section
// table changed size underneath the instance.
func (in *Instance) refresh() {
	if len(in.next) != len(in.montage.Sections) {
		in.SetLinks(in.montage.AuthoredLinks())
	}
}

func clampTime(t, length float32) float32 {
	return clamp(t, 0, length)
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
