package assetservice

import (
	"context"
	"fmt"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/sectiongraph"
)

// Section edit operations.
const (
	OpAdd    = "add"
	OpDelete = "delete"
	OpSort   = "sort"
	OpLink   = "link"
)

// SectionView is a section with its derived time range.
type SectionView struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	StartTime float32 `json:"start_time"`
	EndTime   float32 `json:"end_time"`
	Length    float32 `json:"length"`
	Next      string  `json:"next,omitempty"`
}

// SectionEdit is one change to a montage's section table.
type SectionEdit struct {
	Op    string  `json:"op"`
	Name  string  `json:"name,omitempty"`
	Start float32 `json:"start_time,omitempty"`
	Next  string  `json:"next,omitempty"`
}

// EditSections applies edit to the montage at path, re-sorts the table by
// start time and saves it.
func (s *Service) EditSections(ctx context.Context, path string, edit SectionEdit, ifMatch string) (*AssetDetail, error) {
	asset, current, err := s.LoadAsset(ctx, path)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != "*" && ifMatch != current {
		return nil, apperr.ErrConflict
	}
	m, ok := models.AsMontage(asset)
	if !ok {
		return nil, fmt.Errorf("assetservice: %s is a %s: %w", path, asset.Kind(), apperr.ErrUnsupported)
	}
	if err := ApplySectionEdit(m, edit); err != nil {
		return nil, err
	}
	return s.SaveAsset(ctx, path, m, current)
}

// ApplySectionEdit mutates m in memory.
func ApplySectionEdit(m *models.Montage, edit SectionEdit) error {
	switch edit.Op {
	case OpAdd:
		if edit.Start < 0 || edit.Start > m.Length {
			return fmt.Errorf("assetservice: start %v outside [0, %v]: %w", edit.Start, m.Length, apperr.ErrInvalid)
		}
		if _, err := m.AddSection(edit.Name, edit.Start); err != nil {
			return fmt.Errorf("assetservice: %w: %w", apperr.ErrAlreadyExists, err)
		}
	case OpDelete:
		i := m.SectionIndex(edit.Name)
		if i == models.IndexNone {
			return fmt.Errorf("assetservice: section %q: %w", edit.Name, apperr.ErrNotFound)
		}
		m.DeleteSection(i)
		for j := range m.Sections {
			if m.Sections[j].NextSectionName == edit.Name {
				m.Sections[j].NextSectionName = ""
			}
		}
	case OpLink:
		if m.SectionIndex(edit.Name) == models.IndexNone {
			return fmt.Errorf("assetservice: section %q: %w", edit.Name, apperr.ErrNotFound)
		}
		if !m.SetNextSection(edit.Name, edit.Next) {
			return fmt.Errorf("assetservice: next section %q: %w", edit.Next, apperr.ErrNotFound)
		}
	case OpSort:
	default:
		return fmt.Errorf("assetservice: unknown section op %q: %w", edit.Op, apperr.ErrInvalid)
	}
	m.SortSectionsByTime()
	m.Dirty = true
	return nil
}

func sectionViews(m *models.Montage) []SectionView {
	out := make([]SectionView, len(m.Sections))
	for i, sec := range m.Sections {
		start, end := m.SectionStartEnd(i)
		out[i] = SectionView{
			Index:     i,
			Name:      sec.Name,
			StartTime: start,
			EndTime:   end,
			Length:    end - start,
			Next:      sec.NextSectionName,
		}
	}
	return out
}

// LiveTable is the live link table one loop policy produces, by name.
type LiveTable struct {
	Policy  string   `json:"policy"`
	Looping bool     `json:"looping"`
	Next    []string `json:"next"`
}

// Inspection describes a montage's section graph.
type Inspection struct {
	Sections []SectionView `json:"sections"`
	Chains   [][]string    `json:"chains"`
	Tables   []LiveTable   `json:"tables"`
}

// InspectAsset loads the montage at path and inspects it.
func (s *Service) InspectAsset(ctx context.Context, path string) (Inspection, error) {
	asset, _, err := s.LoadAsset(ctx, path)
	if err != nil {
		return Inspection{}, err
	}
	m, ok := models.AsMontage(asset)
	if !ok {
		return Inspection{}, fmt.Errorf("assetservice: %s is a %s: %w", path, asset.Kind(), apperr.ErrUnsupported)
	}
	return Inspect(m), nil
}

// Inspect lists the authored chains of m and the live tables each loop
// policy would install, with the normal policy anchored at section 0.
func Inspect(m *models.Montage) Inspection {
	authored := m.AuthoredLinks()
	in := Inspection{Sections: sectionViews(m), Chains: [][]string{}, Tables: []LiveTable{}}
	for _, c := range sectiongraph.Chains(authored) {
		names := make([]string, len(c.Members))
		for i, idx := range c.Members {
			names[i] = m.SectionName(idx)
		}
		in.Chains = append(in.Chains, names)
	}
	if len(m.Sections) == 0 {
		return in
	}
	for _, loop := range []bool{false, true} {
		in.Tables = append(in.Tables,
			liveTable(m, "normal", loop, sectiongraph.LoopNormal(authored, 0, loop).Links),
			liveTable(m, "all_sections", loop, sectiongraph.LoopAllSections(len(m.Sections), loop)),
			liveTable(m, "all_setup", loop, sectiongraph.LoopAllSetup(authored, loop)),
		)
	}
	return in
}

func liveTable(m *models.Montage, policy string, loop bool, links []int) LiveTable {
	next := make([]string, len(links))
	for i, l := range links {
		next[i] = m.SectionName(l)
	}
	return LiveTable{Policy: policy, Looping: loop, Next: next}
}
