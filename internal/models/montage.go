package models

import (
	"fmt"
	"sort"
)

// Section is a named sub-range of a montage.
type Section struct {
	Name            string  `json:"name" yaml:"name"`
	StartTime       float32 `json:"start_time" yaml:"start_time"`
	NextSectionName string  `json:"next,omitempty" yaml:"next,omitempty"`
}

// Montage is an asset organised into named sections with authored
// playback order. Sections may be temporarily unsorted while being edited;
// call SortSectionsByTime before relying on index adjacency.
type Montage struct {
	Base     `yaml:",inline"`
	Sections []Section `json:"sections" yaml:"sections"`
}

func (*Montage) Kind() Kind { return KindMontage }
func (*Montage) isAsset()   {}

// SectionIndex returns the index of the named section, or IndexNone.
func (m *Montage) SectionIndex(name string) int {
	if name == "" {
		return IndexNone
	}
	for i := range m.Sections {
		if m.Sections[i].Name == name {
			return i
		}
	}
	return IndexNone
}

// SectionName returns the name at index, or "" for an invalid index.
func (m *Montage) SectionName(index int) string {
	if !m.IsValidSectionIndex(index) {
		return ""
	}
	return m.Sections[index].Name
}

func (m *Montage) IsValidSectionIndex(index int) bool {
	return index >= 0 && index < len(m.Sections)
}

// SectionStartEnd returns the start time of the section and the start of
// the following one, or the montage length for the last section.
func (m *Montage) SectionStartEnd(index int) (start, end float32) {
	end = m.Length
	if m.IsValidSectionIndex(index) {
		start = m.Sections[index].StartTime
	}
	if m.IsValidSectionIndex(index + 1) {
		end = m.Sections[index+1].StartTime
	}
	return start, end
}

// SectionLength is the duration between the section start and its end.
func (m *Montage) SectionLength(index int) float32 {
	start, end := m.SectionStartEnd(index)
	return end - start
}

// SectionIndexFromPosition returns the section whose [start, end) bracket
// contains t, or IndexNone. The montage end belongs to the last section
// with a non-zero length.
func (m *Montage) SectionIndexFromPosition(t float32) int {
	for i := range m.Sections {
		start, end := m.SectionStartEnd(i)
		if start <= t && t < end {
			return i
		}
	}
	if t == m.Length {
		for i := len(m.Sections) - 1; i >= 0; i-- {
			if m.SectionLength(i) > 0 {
				return i
			}
		}
	}
	return IndexNone
}

// SectionTimeLeft returns the time remaining in the section containing t,
// or -1 when t lies outside every section.
func (m *Montage) SectionTimeLeft(t float32) float32 {
	i := m.SectionIndexFromPosition(t)
	if i == IndexNone {
		return -1
	}
	_, end := m.SectionStartEnd(i)
	return end - t
}

// AuthoredLinks resolves every section's NextSectionName to an index.
// Unknown or empty names resolve to IndexNone.
func (m *Montage) AuthoredLinks() []int {
	out := make([]int, len(m.Sections))
	for i := range m.Sections {
		out[i] = m.SectionIndex(m.Sections[i].NextSectionName)
	}
	return out
}

// AddSection appends a section starting at start. An empty name is replaced
// by "Section<N>". The previous section adopts the new one as its next
// section when it has none. Returns the new index.
func (m *Montage) AddSection(name string, start float32) (int, error) {
	if name == "" {
		name = fmt.Sprintf("Section%d", len(m.Sections)+1)
	}
	if m.SectionIndex(name) != IndexNone {
		return IndexNone, fmt.Errorf("section %q already exists", name)
	}
	m.Sections = append(m.Sections, Section{Name: name, StartTime: start})
	idx := len(m.Sections) - 1
	if prev := idx - 1; m.IsValidSectionIndex(prev) && m.Sections[prev].NextSectionName == "" {
		m.Sections[prev].NextSectionName = name
	}
	m.Dirty = true
	return idx, nil
}

// DeleteSection removes the section at index. Links pointing at it are
// left dangling and resolve to IndexNone.
func (m *Montage) DeleteSection(index int) bool {
	if !m.IsValidSectionIndex(index) {
		return false
	}
	m.Sections = append(m.Sections[:index], m.Sections[index+1:]...)
	m.Dirty = true
	return true
}

// SetNextSection rewrites the authored link of the named section.
func (m *Montage) SetNextSection(name, next string) bool {
	i := m.SectionIndex(name)
	if i == IndexNone || (next != "" && m.SectionIndex(next) == IndexNone) {
		return false
	}
	m.Sections[i].NextSectionName = next
	m.Dirty = true
	return true
}

// SortSectionsByTime orders sections by start time, keeping the relative
// order of equal start times.
func (m *Montage) SortSectionsByTime() {
	sort.SliceStable(m.Sections, func(i, j int) bool {
		return m.Sections[i].StartTime < m.Sections[j].StartTime
	})
}
