// Package preview drives an animation asset the way an editor preview
// viewport does: play/pause/reverse, single-frame stepping, section jumps
// and looping policies over a montage's section graph, plus per-bone
// modifiers that can be baked into the asset as keys.
//
// A Controller is not safe for concurrent use. All calls, including Tick,
// are expected from one goroutine; the session package provides that.
// Operations never fail: without a loaded montage, or with an empty section
// table, they silently do nothing.
package preview

import (
	"log/slog"

	"github.com/chewxy/math32"

	"github.com/starford/segue/internal/models"
	"github.com/starford/segue/internal/playback"
	"github.com/starford/segue/internal/sectiongraph"
)

// frameBias nudges the play position toward the next frame when it sits
// exactly on a frame boundary.
const frameBias = 1e-5

// PreviewType selects what playing a montage means.
type PreviewType string

const (
	// PreviewNormal plays the chain starting at the preview start section.
	PreviewNormal PreviewType = "normal"
	// PreviewAllSections plays every section in index order.
	PreviewAllSections PreviewType = "all_sections"
)

// LinkPolicy names the rule that produced the live link table.
type LinkPolicy string

const (
	PolicyNormal      LinkPolicy = "normal"
	PolicyAllSections LinkPolicy = "all_sections"
	PolicyAllSetup    LinkPolicy = "all_setup"
)

// Controller is the preview state machine for one asset.
type Controller struct {
	logger *slog.Logger

	asset models.Asset
	inst  *playback.Instance
	live  []int

	previewType  PreviewType
	policy       LinkPolicy
	startSection int
	anchor       int

	looping  bool
	playing  bool
	reverse  bool
	playRate float32

	currentTime float32

	manual []*BoneModifier
	curve  []*BoneModifier

	pendingKey *KeyRequest
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for debug and degradation messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLooping sets the initial looping flag.
func WithLooping(loop bool) Option {
	return func(c *Controller) {
		c.looping = loop
	}
}

// New creates a controller previewing asset, which may be nil.
func New(asset models.Asset, opts ...Option) *Controller {
	c := &Controller{
		logger:   slog.Default(),
		playRate: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.SetAsset(asset)
	return c
}

// SetAsset replaces the previewed asset and rebuilds all ephemeral state.
// A pending key request completes unapplied.
func (c *Controller) SetAsset(asset models.Asset) {
	c.CancelKey()
	c.asset = asset
	c.inst = nil
	c.live = nil
	c.previewType = PreviewNormal
	c.policy = PolicyNormal
	c.startSection = 0
	c.anchor = models.IndexNone
	c.playing = false
	c.currentTime = 0
	c.manual = nil
	c.refreshCurveModifiers()
}

// Asset returns the previewed asset, or nil.
func (c *Controller) Asset() models.Asset { return c.asset }

// CurrentTime is the play position in seconds.
func (c *Controller) CurrentTime() float32 {
	if inst := c.activeInstance(); inst != nil {
		return inst.Position()
	}
	return c.currentTime
}

// CurrentSection is the index of the section under the play head, or
// IndexNone.
func (c *Controller) CurrentSection() int {
	m, ok := c.montage()
	if !ok {
		return models.IndexNone
	}
	return m.SectionIndexFromPosition(c.CurrentTime())
}

// IsPlaying reports whether time is advancing on Tick.
func (c *Controller) IsPlaying() bool {
	if _, ok := c.montage(); ok {
		return c.activeInstance() != nil && c.inst.IsPlaying()
	}
	return c.playing
}

func (c *Controller) IsReverse() bool          { return c.reverse }
func (c *Controller) IsLooping() bool          { return c.looping }
func (c *Controller) PreviewType() PreviewType { return c.previewType }
func (c *Controller) LinkPolicy() LinkPolicy   { return c.policy }
func (c *Controller) PreviewStartSection() int { return c.startSection }
func (c *Controller) IsPlayingMontage() bool   { return c.activeInstance() != nil }

// PlaybackInstance returns the active montage instance, or nil.
func (c *Controller) PlaybackInstance() *playback.Instance { return c.activeInstance() }

// LiveLinks returns a copy of the live next-section table.
func (c *Controller) LiveLinks() []int {
	return append([]int(nil), c.liveTable()...)
}

// Tick advances playback by dt seconds and evaluates the pose, consuming
// any pending key request.
func (c *Controller) Tick(dt float32) Pose {
	if _, ok := c.montage(); ok {
		if inst := c.activeInstance(); inst != nil {
			inst.Advance(dt)
			c.currentTime = inst.Position()
			if !inst.IsActive() {
				c.inst = nil
				c.playing = false
			}
		}
	} else if c.linear() && c.playing {
		c.advanceLinear(dt)
	}
	return c.EvaluatePose()
}

// SetPlaying pauses or resumes. Resuming with no active montage instance
// starts a new preview according to the preview type.
func (c *Controller) SetPlaying(playing bool) {
	c.playing = playing
	if inst := c.activeInstance(); inst != nil {
		inst.SetPlaying(playing)
		return
	}
	if !playing {
		return
	}
	if _, ok := c.montage(); ok {
		c.Restart()
		return
	}
	if c.linear() {
		length := c.asset.Common().Length
		if !c.reverse && c.currentTime >= length {
			c.currentTime = 0
		} else if c.reverse && c.currentTime <= 0 {
			c.currentTime = length
		}
	}
}

// SetReverse flips the play direction, including on the active instance.
func (c *Controller) SetReverse(reverse bool) {
	c.reverse = reverse
	if inst := c.activeInstance(); inst != nil {
		inst.SetPlayRate(c.signedRate())
	}
}

// SetPlayRate sets the play speed magnitude; non-positive rates are ignored.
func (c *Controller) SetPlayRate(rate float32) {
	if rate <= 0 {
		return
	}
	c.playRate = rate
	if inst := c.activeInstance(); inst != nil {
		inst.SetPlayRate(c.signedRate())
	}
}

// SetLooping applies the loop flag through the policy of the current
// preview type.
func (c *Controller) SetLooping(loop bool) {
	c.looping = loop
	if _, ok := c.montage(); !ok {
		return
	}
	switch c.previewType {
	case PreviewAllSections:
		c.SetLoopAllSections(loop)
	default:
		c.SetLoopNormal(loop, models.IndexNone)
	}
}

// SetLoopNormal rebuilds the live table from the authored chains. With an
// invalid preferred section the section under the play head is used.
func (c *Controller) SetLoopNormal(loop bool, preferred int) {
	m, ok := c.montage()
	if !ok {
		return
	}
	c.looping = loop
	c.policy = PolicyNormal
	if !m.IsValidSectionIndex(preferred) {
		preferred = m.SectionIndexFromPosition(c.CurrentTime())
	}
	c.anchor = preferred
	plan := sectiongraph.LoopNormal(m.AuthoredLinks(), preferred, loop)
	c.installLinks(plan.Links)
	c.logger.Debug("preview: loop normal",
		slog.Bool("looping", loop),
		slog.Int("anchor", plan.Anchor),
		slog.Int("head", plan.Head))
}

// SetLoopAllSections links sections in index order, ignoring authored links.
func (c *Controller) SetLoopAllSections(loop bool) {
	m, ok := c.montage()
	if !ok {
		return
	}
	c.looping = loop
	c.policy = PolicyAllSections
	c.installLinks(sectiongraph.LoopAllSections(len(m.Sections), loop))
	c.logger.Debug("preview: loop all sections", slog.Bool("looping", loop))
}

// SetLoopAllSetupSections joins every authored chain into one.
func (c *Controller) SetLoopAllSetupSections(loop bool) {
	m, ok := c.montage()
	if !ok {
		return
	}
	c.looping = loop
	c.policy = PolicyAllSetup
	c.installLinks(sectiongraph.LoopAllSetup(m.AuthoredLinks(), loop))
	c.logger.Debug("preview: loop all setup sections", slog.Bool("looping", loop))
}

// PreviewNormal plays the chain starting at from, or at the current
// preview start section when from is invalid.
func (c *Controller) PreviewNormal(from int) {
	m, ok := c.montage()
	if !ok {
		return
	}
	if !m.IsValidSectionIndex(from) {
		from = c.startSection
	}
	if !m.IsValidSectionIndex(from) {
		from = 0
	}
	c.previewType = PreviewNormal
	c.policy = PolicyNormal
	c.startSection = from
	c.anchor = from

	c.jumpToPreviewStart(m, c.playMontage(m))
}

// PreviewAllSections plays every section in index order.
func (c *Controller) PreviewAllSections() {
	m, ok := c.montage()
	if !ok || m.Length <= 0 {
		return
	}
	c.previewType = PreviewAllSections
	c.policy = PolicyAllSections
	c.playMontage(m)
	c.JumpToPreviewStart()
}

// Restart begins a fresh preview of the current type.
func (c *Controller) Restart() {
	if _, ok := c.montage(); !ok {
		return
	}
	switch c.previewType {
	case PreviewAllSections:
		c.PreviewAllSections()
	default:
		c.PreviewNormal(models.IndexNone)
	}
}

// JumpToStart moves to the start of the preview start section, or to its
// end when playing in reverse.
func (c *Controller) JumpToStart() {
	c.withInstance(func(m *models.Montage, inst *playback.Instance) {
		c.jump(inst, c.homeSection(m), c.signedRate() < 0)
	})
}

// JumpToEnd moves to the end of the last section of the live chain, or to
// that section's start when playing in reverse.
func (c *Controller) JumpToEnd() {
	c.withInstance(func(m *models.Montage, inst *playback.Instance) {
		last := c.FindLastSectionInLiveChain(c.homeSection(m))
		c.jump(inst, last, c.signedRate() >= 0)
	})
}

// JumpToPreviewStart moves to where playback in the current direction
// begins: the preview start section going forward, the end of the last
// section of its live chain in reverse.
func (c *Controller) JumpToPreviewStart() {
	c.withInstance(c.jumpToPreviewStart)
}

func (c *Controller) jumpToPreviewStart(m *models.Montage, inst *playback.Instance) {
	home := c.homeSection(m)
	if c.signedRate() >= 0 {
		c.jump(inst, home, false)
		return
	}
	c.jump(inst, c.FindLastSectionInLiveChain(home), true)
}

// JumpToPosition scrubs to t. In normal preview, landing in a different
// section makes it the new preview start and rebuilds the live links
// around it.
func (c *Controller) JumpToPosition(t float32) {
	if c.asset == nil {
		return
	}
	c.setPosition(t)
	m, ok := c.montage()
	if !ok {
		return
	}
	idx := m.SectionIndexFromPosition(c.CurrentTime())
	if idx == models.IndexNone || idx == c.startSection || c.previewType != PreviewNormal {
		return
	}
	c.startSection = idx
	c.anchor = idx
	c.reapplyPolicy()
}

// StepForward advances exactly one frame and pauses. At the end of an
// unlooped chain it snaps to the chain's end instead of stepping past it.
func (c *Controller) StepForward() {
	c.step(false)
}

// StepBackward moves back exactly one frame and pauses. At the start of an
// unlooped chain it snaps to the chain's first section start.
func (c *Controller) StepBackward() {
	c.step(true)
}

func (c *Controller) step(backward bool) {
	if c.asset == nil {
		return
	}
	if c.linear() {
		c.stepLinear(backward)
		return
	}
	m, ok := c.montage()
	if !ok {
		return
	}

	inst := c.activeInstance()
	inDirection := inst != nil && inst.IsPlaying() && (inst.PlayRate() < 0) == backward
	if !inDirection {
		stoppedAt := c.CurrentTime()
		c.SetReverse(backward)
		c.Restart()
		c.setPosition(stoppedAt)
		if !c.looping && c.snapToChainBoundary(m, backward) {
			c.SetPlaying(false)
			return
		}
	}
	now := c.CurrentTime()
	target := frameTarget(now, m.Length, m.NumFrames(), backward)
	if inst := c.activeInstance(); inst != nil {
		inst.SetPlaying(true)
		inst.Advance(math32.Abs(target-now) / c.playRate)
		c.currentTime = inst.Position()
	}
	c.SetPlaying(false)
}

// snapToChainBoundary jumps to the boundary of the active chain when the
// play head is within one step of it.
func (c *Controller) snapToChainBoundary(m *models.Montage, backward bool) bool {
	inst := c.activeInstance()
	if inst == nil {
		return false
	}
	home := c.homeSection(m)
	if backward {
		first := c.firstSectionInActiveChain(m, home)
		start, _ := m.SectionStartEnd(first)
		if math32.Abs(c.CurrentTime()-start) > sectiongraph.StepLength() {
			return false
		}
		c.jump(inst, first, false)
		return true
	}
	last := c.FindLastSectionInLiveChain(home)
	_, end := m.SectionStartEnd(last)
	if math32.Abs(c.CurrentTime()-end) > sectiongraph.StepLength() {
		return false
	}
	c.jump(inst, last, true)
	return true
}

// FindLastSectionInLiveChain follows the live table, not the authored
// links, from start.
func (c *Controller) FindLastSectionInLiveChain(start int) int {
	return sectiongraph.LastInLiveChain(c.liveTable(), start)
}

// FindFirstOccurrenceInAuthoredChain returns the head of the authored chain
// that reaches target soonest.
func (c *Controller) FindFirstOccurrenceInAuthoredChain(target int) int {
	m, ok := c.montage()
	if !ok {
		return models.IndexNone
	}
	return sectiongraph.FirstOccurrence(m.AuthoredLinks(), target)
}

// StepLength is the duration of one preview frame.
func (c *Controller) StepLength() float32 {
	return sectiongraph.StepLength()
}

func (c *Controller) firstSectionInActiveChain(m *models.Montage, home int) int {
	if c.policy != PolicyNormal {
		return 0
	}
	if head := sectiongraph.FirstOccurrence(m.AuthoredLinks(), home); head != models.IndexNone {
		return head
	}
	return home
}

// montage is the capability check shared by every section operation.
func (c *Controller) montage() (*models.Montage, bool) {
	m, ok := models.AsMontage(c.asset)
	if !ok || len(m.Sections) == 0 {
		return nil, false
	}
	return m, true
}

// linear reports whether the asset plays without sections.
func (c *Controller) linear() bool {
	if c.asset == nil {
		return false
	}
	_, isMontage := models.AsMontage(c.asset)
	return !isMontage
}

func (c *Controller) activeInstance() *playback.Instance {
	if c.inst == nil || !c.inst.IsActive() {
		return nil
	}
	return c.inst
}

// playMontage starts a fresh instance and installs the current policy.
func (c *Controller) playMontage(m *models.Montage) *playback.Instance {
	c.inst = playback.New(m, c.signedRate())
	c.playing = true
	c.reapplyPolicy()
	return c.inst
}

// withInstance runs fn against an active instance, starting one paused
// for the duration when none is playing.
func (c *Controller) withInstance(fn func(*models.Montage, *playback.Instance)) {
	m, ok := c.montage()
	if !ok {
		return
	}
	inst := c.activeInstance()
	wasPlaying := inst != nil
	if !wasPlaying {
		inst = c.playMontage(m)
	}
	fn(m, inst)
	if !wasPlaying {
		inst.SetPlaying(false)
		c.playing = false
	}
	c.currentTime = inst.Position()
}

func (c *Controller) jump(inst *playback.Instance, section int, endOfSection bool) {
	m := inst.Montage()
	name := m.SectionName(section)
	if !inst.JumpToSection(name, endOfSection) {
		c.logger.Warn("preview: section jump failed",
			slog.String("asset", m.Name),
			slog.Int("section", section),
			slog.Bool("end", endOfSection))
		return
	}
	c.currentTime = inst.Position()
}

// homeSection is the section preview navigation is relative to.
func (c *Controller) homeSection(m *models.Montage) int {
	if c.previewType == PreviewNormal && m.IsValidSectionIndex(c.startSection) {
		return c.startSection
	}
	return 0
}

func (c *Controller) reapplyPolicy() {
	switch c.policy {
	case PolicyAllSections:
		c.SetLoopAllSections(c.looping)
	case PolicyAllSetup:
		c.SetLoopAllSetupSections(c.looping)
	default:
		c.SetLoopNormal(c.looping, c.anchor)
	}
}

func (c *Controller) installLinks(links []int) {
	c.live = links
	if inst := c.activeInstance(); inst != nil {
		inst.SetLinks(links)
	}
}

// liveTable prefers the active instance's table since runtime rewrites may
// have changed it.
func (c *Controller) liveTable() []int {
	if inst := c.activeInstance(); inst != nil {
		return inst.NextSections()
	}
	return c.live
}

func (c *Controller) setPosition(t float32) {
	if c.asset == nil {
		return
	}
	t = clamp(t, 0, c.asset.Common().Length)
	c.currentTime = t
	if inst := c.activeInstance(); inst != nil {
		inst.SetPosition(t)
	}
}

func (c *Controller) signedRate() float32 {
	if c.reverse {
		return -c.playRate
	}
	return c.playRate
}

// advanceLinear plays assets without sections over [0, length].
func (c *Controller) advanceLinear(dt float32) {
	length := c.asset.Common().Length
	if length <= 0 {
		c.playing = false
		return
	}
	t := c.currentTime + c.signedRate()*dt
	switch {
	case c.looping:
		t = math32.Mod(t, length)
		if t < 0 {
			t += length
		}
	case t >= length || t <= 0:
		t = clamp(t, 0, length)
		c.playing = false
	}
	c.currentTime = t
}

func (c *Controller) stepLinear(backward bool) {
	base := c.asset.Common()
	c.reverse = backward
	c.playing = false
	c.currentTime = frameTarget(c.currentTime, base.Length, base.NumFrames(), backward)
}

// frameTarget returns the time of the next (or previous) whole frame.
func frameTarget(now, length float32, frames int, backward bool) float32 {
	if length <= 0 {
		return 0
	}
	n := float32(frames)
	var frame float32
	if backward {
		frame = math32.Ceil((now/length-frameBias)*n) - 1
	} else {
		frame = math32.Floor((now/length+frameBias)*n) + 1
	}
	return length * clamp(frame, 0, n) / n
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
