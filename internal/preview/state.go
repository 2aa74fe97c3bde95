package preview

import "github.com/starford/segue/internal/models"

// State is a read-only snapshot of the controller for clients.
type State struct {
	Asset          string      `json:"asset,omitempty"`
	Kind           models.Kind `json:"kind,omitempty"`
	Time           float32     `json:"time"`
	Length         float32     `json:"length"`
	Section        int         `json:"section"`
	SectionName    string      `json:"section_name,omitempty"`
	PreviewType    PreviewType `json:"preview_type"`
	LinkPolicy     LinkPolicy  `json:"link_policy"`
	StartSection   int         `json:"start_section"`
	Playing        bool        `json:"playing"`
	Reverse        bool        `json:"reverse"`
	Looping        bool        `json:"looping"`
	PlayRate       float32     `json:"play_rate"`
	LiveLinks      []int       `json:"live_links,omitempty"`
	Modifiers      int         `json:"modifiers"`
	CurveModifiers int         `json:"curve_modifiers"`
	PendingKey     bool        `json:"pending_key"`
}

// State captures the current preview state.
func (c *Controller) State() State {
	s := State{
		Time:           c.CurrentTime(),
		Section:        c.CurrentSection(),
		PreviewType:    c.previewType,
		LinkPolicy:     c.policy,
		StartSection:   c.startSection,
		Playing:        c.IsPlaying(),
		Reverse:        c.reverse,
		Looping:        c.looping,
		PlayRate:       c.playRate,
		LiveLinks:      c.LiveLinks(),
		Modifiers:      len(c.manual),
		CurveModifiers: len(c.curve),
		PendingKey:     c.pendingKey != nil,
	}
	if c.asset != nil {
		base := c.asset.Common()
		s.Asset = base.Name
		s.Kind = c.asset.Kind()
		s.Length = base.Length
	}
	if m, ok := c.montage(); ok {
		s.SectionName = m.SectionName(s.Section)
	}
	return s
}
