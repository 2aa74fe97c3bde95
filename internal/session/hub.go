// Package session hosts preview sessions. A Hub owns every
// preview.Controller on one goroutine: commands from HTTP and MCP handlers
// are marshalled onto it, and a ticker advances all sessions at a fixed
// rate.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/segue/internal/apperr"
	"github.com/starford/segue/internal/assetservice"
	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/preview"
	"github.com/starford/segue/internal/sse"
)

// maxTickDelta caps the time a single tick may advance after a stall.
const maxTickDelta = 0.25

// ErrStopped is returned by calls made after the hub's Run has returned.
var ErrStopped = errors.New("session: hub stopped")

// AssetStore loads and persists the assets sessions preview.
type AssetStore interface {
	LoadAsset(ctx context.Context, path string) (models.Asset, string, error)
	SaveAsset(ctx context.Context, path string, asset models.Asset, ifMatch string) (*assetservice.AssetDetail, error)
}

// Publisher receives session events; *sse.Broker implements it.
type Publisher interface {
	Publish(event sse.Event)
	PublishState(session string, state any)
	PublishClosed(session string)
}

// Info describes one session.
type Info struct {
	ID        string                 `json:"id"`
	Path      string                 `json:"path"`
	CreatedAt time.Time              `json:"created_at"`
	State     preview.State          `json:"state"`
	Modifiers []preview.BoneModifier `json:"modifiers"`
	Pose      preview.Pose           `json:"pose"`
}

type session struct {
	id       string
	path     string
	checksum string
	created  time.Time
	ctrl     *preview.Controller
	pose     preview.Pose
	playing  bool
	// saveErr holds the last failed save; retries wait for the next key.
	saveErr error
}

// Config tunes a Hub.
type Config struct {
	// TickRate is the automatic tick frequency in Hz. Zero disables the
	// ticker; sessions then only move through Advance.
	TickRate    int
	MaxSessions int
}

// Hub owns all preview sessions.
type Hub struct {
	logger *slog.Logger
	assets AssetStore
	events Publisher
	cfg    Config

	reqCh   chan func()
	stopped chan struct{}

	// owned by the Run goroutine
	sessions map[string]*session
}

// NewHub creates a hub; call Run to start it.
func NewHub(cfg Config, assets AssetStore, events Publisher, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 16
	}
	return &Hub{
		logger:   logger,
		assets:   assets,
		events:   events,
		cfg:      cfg,
		reqCh:    make(chan func()),
		stopped:  make(chan struct{}),
		sessions: make(map[string]*session),
	}
}

// Run processes requests and ticks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	var tickCh <-chan time.Time
	if h.cfg.TickRate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(h.cfg.TickRate))
		defer ticker.Stop()
		tickCh = ticker.C
	}
	h.logger.Info("session: hub started", slog.Int("tick_rate", h.cfg.TickRate))

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			for id, s := range h.sessions {
				s.ctrl.CancelKey()
				h.events.PublishClosed(id)
			}
			h.logger.Info("session: hub stopped", slog.Int("sessions", len(h.sessions)))
			return nil

		case fn := <-h.reqCh:
			fn()

		case now := <-tickCh:
			dt := float32(now.Sub(last).Seconds())
			last = now
			if dt > maxTickDelta {
				dt = maxTickDelta
			}
			h.tickAll(ctx, dt)
		}
	}
}

// do runs fn on the hub goroutine and waits for it.
func (h *Hub) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}
	select {
	case h.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrStopped
	}
}

// Open loads path and starts a paused session on it.
func (h *Hub) Open(ctx context.Context, path string, looping bool) (Info, error) {
	asset, cs, err := h.assets.LoadAsset(ctx, path)
	if err != nil {
		return Info{}, err
	}

	var (
		info  Info
		opErr error
	)
	err = h.do(ctx, func() {
		if len(h.sessions) >= h.cfg.MaxSessions {
			opErr = fmt.Errorf("session: %d sessions open: %w", len(h.sessions), apperr.ErrBusy)
			return
		}
		s := &session{
			id:       uuid.NewString(),
			path:     path,
			checksum: cs,
			created:  time.Now(),
			ctrl: preview.New(asset,
				preview.WithLogger(h.logger.With(slog.String("asset", path))),
				preview.WithLooping(looping)),
		}
		s.ctrl.SetLooping(looping)
		s.pose = s.ctrl.EvaluatePose()
		h.sessions[s.id] = s
		h.logger.Debug("session: opened", slog.String("id", s.id), slog.String("path", path))
		info = h.publish(s)
	})
	if err == nil {
		err = opErr
	}
	return info, err
}

// Close ends a session.
func (h *Hub) Close(ctx context.Context, id string) error {
	return h.withSession(ctx, id, func(s *session) error {
		s.ctrl.CancelKey()
		delete(h.sessions, id)
		h.events.PublishClosed(id)
		h.logger.Debug("session: closed", slog.String("id", id))
		return nil
	})
}

// Get returns one session.
func (h *Hub) Get(ctx context.Context, id string) (Info, error) {
	var info Info
	err := h.withSession(ctx, id, func(s *session) error {
		info = s.info()
		return nil
	})
	return info, err
}

// List returns every session ordered by creation time.
func (h *Hub) List(ctx context.Context) ([]Info, error) {
	var out []Info
	err := h.do(ctx, func() {
		out = make([]Info, 0, len(h.sessions))
		for _, s := range h.sessions {
			out = append(out, s.info())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// Advance moves every session forward by dt seconds, as one tick would.
func (h *Hub) Advance(ctx context.Context, dt float32) error {
	return h.do(ctx, func() { h.tickAll(ctx, dt) })
}

// ReloadPath refreshes sessions on path after the library changed. A
// deleted document closes its sessions; sessions with unsaved edits keep
// their in-memory asset.
func (h *Hub) ReloadPath(ctx context.Context, path string, deleted bool) error {
	var stale []string
	err := h.do(ctx, func() {
		for id, s := range h.sessions {
			if s.path != path {
				continue
			}
			if deleted {
				s.ctrl.CancelKey()
				delete(h.sessions, id)
				h.events.PublishClosed(id)
				h.logger.Debug("session: closed, asset deleted", slog.String("id", id))
				continue
			}
			if !s.ctrl.Asset().Common().Dirty {
				stale = append(stale, id)
			}
		}
	})
	if err != nil || deleted {
		return err
	}

	// Each session gets its own decoded copy since controllers mutate it.
	for _, id := range stale {
		asset, cs, err := h.assets.LoadAsset(ctx, path)
		if err != nil {
			return err
		}
		err = h.do(ctx, func() {
			s, ok := h.sessions[id]
			if !ok || s.checksum == cs || s.ctrl.Asset().Common().Dirty {
				return
			}
			s.checksum = cs
			s.ctrl.SetAsset(asset)
			s.pose = s.ctrl.EvaluatePose()
			h.logger.Debug("session: reloaded", slog.String("id", id), slog.String("path", path))
			h.publish(s)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) withSession(ctx context.Context, id string, fn func(*session) error) error {
	var opErr error
	err := h.do(ctx, func() {
		s, ok := h.sessions[id]
		if !ok {
			opErr = fmt.Errorf("session: %s: %w", id, apperr.ErrNoSession)
			return
		}
		opErr = fn(s)
	})
	if err != nil {
		return err
	}
	return opErr
}

func (h *Hub) tickAll(ctx context.Context, dt float32) {
	for _, s := range h.sessions {
		pending := s.ctrl.HasPendingKey()
		if !s.ctrl.IsPlaying() && !s.playing && !pending {
			continue
		}
		h.evaluate(ctx, s, func() preview.Pose { return s.ctrl.Tick(dt) })
		h.publish(s)
	}
}

// evaluate refreshes the session pose with eval and saves any key it
// consumed.
func (h *Hub) evaluate(ctx context.Context, s *session, eval func() preview.Pose) {
	if s.ctrl.HasPendingKey() {
		s.saveErr = nil
	}
	s.pose = eval()
	h.persist(ctx, s)
}

// persist saves the session's asset when a key made it dirty. After a
// failure it stays quiet until the next key.
func (h *Hub) persist(ctx context.Context, s *session) {
	asset := s.ctrl.Asset()
	if asset == nil || !asset.Common().Dirty || s.saveErr != nil {
		return
	}
	detail, err := h.assets.SaveAsset(ctx, s.path, asset, s.checksum)
	if err != nil {
		s.saveErr = err
		h.logger.Warn("session: save failed",
			slog.String("id", s.id),
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return
	}
	s.checksum = detail.Checksum
	h.logger.Debug("session: saved", slog.String("id", s.id), slog.String("path", s.path))
}

func (h *Hub) publish(s *session) Info {
	info := s.info()
	s.playing = info.State.Playing
	h.events.PublishState(s.id, info.State)
	return info
}

func (s *session) info() Info {
	return Info{
		ID:        s.id,
		Path:      s.path,
		CreatedAt: s.created,
		State:     s.ctrl.State(),
		Modifiers: s.ctrl.Modifiers(false),
		Pose:      s.pose,
	}
}
