package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/preview"
	"github.com/starford/segue/internal/sse"
	"github.com/starford/segue/internal/xform"
)

// Command names accepted by Hub.Command.
const (
	CmdPlay               = "play"
	CmdPause              = "pause"
	CmdReverse            = "reverse"
	CmdRate               = "rate"
	CmdStepForward        = "step_forward"
	CmdStepBackward       = "step_backward"
	CmdJumpStart          = "jump_start"
	CmdJumpEnd            = "jump_end"
	CmdJumpPreviewStart   = "jump_preview_start"
	CmdJumpPosition       = "jump_position"
	CmdLoop               = "loop"
	CmdPreviewNormal      = "preview_normal"
	CmdPreviewAllSections = "preview_all_sections"
	CmdLoopAllSetup       = "loop_all_setup"
	CmdRestart            = "restart"
)

// Commands lists every command name in documentation order.
var Commands = []string{
	CmdPlay, CmdPause, CmdReverse, CmdRate,
	CmdStepForward, CmdStepBackward,
	CmdJumpStart, CmdJumpEnd, CmdJumpPreviewStart, CmdJumpPosition,
	CmdLoop, CmdPreviewNormal, CmdPreviewAllSections, CmdLoopAllSetup, CmdRestart,
}

// Command is one playback request. Fields are read per command: Enabled by
// reverse, loop and loop_all_setup; Time by jump_position; Rate by rate;
// Section by loop and preview_normal.
type Command struct {
	Name    string  `json:"command"`
	Enabled bool    `json:"enabled,omitempty"`
	Time    float32 `json:"time,omitempty"`
	Rate    float32 `json:"rate,omitempty"`
	Section string  `json:"section,omitempty"`
}

// Command applies cmd to a session and returns the resulting state.
func (h *Hub) Command(ctx context.Context, id string, cmd Command) (Info, error) {
	var info Info
	err := h.withSession(ctx, id, func(s *session) error {
		if err := apply(s.ctrl, cmd); err != nil {
			return err
		}
		h.logger.Debug("session: command",
			slog.String("id", id),
			slog.String("command", cmd.Name))
		info = h.publish(s)
		return nil
	})
	return info, err
}

func apply(c *preview.Controller, cmd Command) error {
	section, err := resolveSection(c, cmd.Section)
	if err != nil {
		return err
	}
	switch cmd.Name {
	case CmdPlay:
		c.SetPlaying(true)
	case CmdPause:
		c.SetPlaying(false)
	case CmdReverse:
		c.SetReverse(cmd.Enabled)
	case CmdRate:
		if cmd.Rate <= 0 {
			return fmt.Errorf("session: rate must be positive: %w", apperr.ErrInvalid)
		}
		c.SetPlayRate(cmd.Rate)
	case CmdStepForward:
		c.StepForward()
	case CmdStepBackward:
		c.StepBackward()
	case CmdJumpStart:
		c.JumpToStart()
	case CmdJumpEnd:
		c.JumpToEnd()
	case CmdJumpPreviewStart:
		c.JumpToPreviewStart()
	case CmdJumpPosition:
		c.JumpToPosition(cmd.Time)
	case CmdLoop:
		if section != models.IndexNone {
			c.SetLoopNormal(cmd.Enabled, section)
		} else {
			c.SetLooping(cmd.Enabled)
		}
	case CmdPreviewNormal:
		c.PreviewNormal(section)
	case CmdPreviewAllSections:
		c.PreviewAllSections()
	case CmdLoopAllSetup:
		c.SetLoopAllSetupSections(cmd.Enabled)
	case CmdRestart:
		c.Restart()
	default:
		return fmt.Errorf("session: unknown command %q: %w", cmd.Name, apperr.ErrInvalid)
	}
	return nil
}

// resolveSection maps a section name to its index; "" means unspecified.
func resolveSection(c *preview.Controller, name string) (int, error) {
	if name == "" {
		return models.IndexNone, nil
	}
	m, ok := models.AsMontage(c.Asset())
	if !ok {
		return models.IndexNone, fmt.Errorf("session: sections: %w", apperr.ErrUnsupported)
	}
	idx := m.SectionIndex(name)
	if idx == models.IndexNone {
		return idx, fmt.Errorf("session: section %q: %w", name, apperr.ErrNotFound)
	}
	return idx, nil
}

// ModifierUpdate sets a manual bone override. Empty modes keep the
// entry's current mode.
type ModifierUpdate struct {
	Value           xform.Transform `json:"value"`
	TranslationMode preview.Mode    `json:"translation_mode,omitempty"`
	RotationMode    preview.Mode    `json:"rotation_mode,omitempty"`
	ScaleMode       preview.Mode    `json:"scale_mode,omitempty"`
}

// SetModifier creates or updates the manual modifier for bone.
func (h *Hub) SetModifier(ctx context.Context, id, bone string, u ModifierUpdate) (Info, error) {
	for _, m := range []preview.Mode{u.TranslationMode, u.RotationMode, u.ScaleMode} {
		switch m {
		case "", preview.ModeIgnore, preview.ModeReplace, preview.ModeAdditive:
		default:
			return Info{}, fmt.Errorf("session: mode %q: %w", m, apperr.ErrInvalid)
		}
	}
	var info Info
	err := h.withSession(ctx, id, func(s *session) error {
		if s.ctrl.Asset() == nil {
			return fmt.Errorf("session: no asset: %w", apperr.ErrInvalid)
		}
		mod := s.ctrl.SetModifier(bone, u.Value)
		if u.TranslationMode != "" {
			mod.TranslationMode = u.TranslationMode
		}
		if u.RotationMode != "" {
			mod.RotationMode = u.RotationMode
		}
		if u.ScaleMode != "" {
			mod.ScaleMode = u.ScaleMode
		}
		h.evaluate(ctx, s, s.ctrl.EvaluatePose)
		info = h.publish(s)
		return nil
	})
	return info, err
}

// RemoveModifier drops the manual modifier for bone, if any.
func (h *Hub) RemoveModifier(ctx context.Context, id, bone string) (Info, error) {
	var info Info
	err := h.withSession(ctx, id, func(s *session) error {
		s.ctrl.RemoveModifier(bone, false)
		h.evaluate(ctx, s, s.ctrl.EvaluatePose)
		info = h.publish(s)
		return nil
	})
	return info, err
}

// ResetModifiers clears every manual modifier.
func (h *Hub) ResetModifiers(ctx context.Context, id string) (Info, error) {
	var info Info
	err := h.withSession(ctx, id, func(s *session) error {
		s.ctrl.ResetModifiers(false)
		h.evaluate(ctx, s, s.ctrl.EvaluatePose)
		info = h.publish(s)
		return nil
	})
	return info, err
}

// SetKey bakes the session's modifiers into the asset on the next tick and
// waits for the result. extra names bones to key even when unmodified.
// Without an automatic ticker the request is evaluated immediately. A
// request dropped by a reload or by closing the session reports
// Applied=false.
func (h *Hub) SetKey(ctx context.Context, id string, extra []string) (preview.KeyResult, error) {
	resCh := make(chan preview.KeyResult, 1)
	req := preview.KeyRequest{
		Bones: extra,
		Done:  func(r preview.KeyResult) { resCh <- r },
	}
	err := h.withSession(ctx, id, func(s *session) error {
		if !s.ctrl.RequestKey(req) {
			return fmt.Errorf("session: key already pending: %w", apperr.ErrBusy)
		}
		if h.cfg.TickRate <= 0 {
			h.evaluate(ctx, s, s.ctrl.EvaluatePose)
			h.publish(s)
		}
		return nil
	})
	if err != nil {
		return preview.KeyResult{}, err
	}

	select {
	case res := <-resCh:
		if res.Applied {
			h.events.Publish(sse.Event{Type: sse.TypeKeyApplied, Session: id, Data: res})
		}
		return res, nil
	case <-ctx.Done():
		return preview.KeyResult{}, ctx.Err()
	case <-h.stopped:
		return preview.KeyResult{}, ErrStopped
	}
}
