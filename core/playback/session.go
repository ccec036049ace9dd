package playback

import (
	"sync"
	"time"

	"Mx1Studio/logger"
	"Mx1Studio/model"
)

// DefaultTickInterval approximates a 30fps animation loop.
const DefaultTickInterval = 33 * time.Millisecond

// maxTickDelta caps the wall-clock advance applied in one tick so a
// suspended process does not jump the playhead on resume.
const maxTickDelta = 250 * time.Millisecond

// Document is the timeline the session reads each tick. The session only
// ever writes back the playhead; all other mutation belongs to the editor.
type Document interface {
	State() *model.Timeline
	Seek(t float64)
}

// FrameSink receives the authoritative state once per tick, after media
// elements have been synchronized, so a preview renderer stays visually
// consistent with audible playback.
type FrameSink interface {
	OnFrame(tl *model.Timeline, t float64)
}

// Session phase-locks every clip's media element to the document's virtual
// clock. It owns the element cache and the animation loop; Start/Stop bound
// its lifecycle and Stop re-syncs everything to the paused playhead.
type Session struct {
	doc     Document
	clock   Clock
	factory ElementFactory
	sink    FrameSink
	tick    time.Duration

	mu       sync.Mutex
	elements map[string]MediaElement
	playing  bool
	lastTick time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// SessionOption tweaks session construction.
type SessionOption func(*Session)

// WithTickInterval overrides the animation loop interval.
func WithTickInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.tick = d }
}

// WithFrameSink attaches a per-tick frame consumer driven from the same
// clock as the synchronizer.
func WithFrameSink(sink FrameSink) SessionOption {
	return func(s *Session) { s.sink = sink }
}

// NewSession creates a playback session over a document.
func NewSession(doc Document, clock Clock, factory ElementFactory, opts ...SessionOption) *Session {
	s := &Session{
		doc:      doc,
		clock:    clock,
		factory:  factory,
		tick:     DefaultTickInterval,
		elements: make(map[string]MediaElement),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the animation loop. Playback itself begins on Play.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.lastTick = s.clock.Now()
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(s.stopCh, s.doneCh)
}

// Stop cancels the animation loop and immediately re-syncs every element to
// the now-paused playhead. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopCh, s.doneCh
	s.stopCh, s.doneCh = nil, nil
	s.playing = false
	s.mu.Unlock()

	close(stop)
	<-done
	s.Sync()
}

// Play starts advancing the virtual clock.
func (s *Session) Play() {
	s.mu.Lock()
	s.playing = true
	s.lastTick = s.clock.Now()
	s.mu.Unlock()
}

// Pause freezes the virtual clock and re-syncs elements right away rather
// than waiting for the next playing tick.
func (s *Session) Pause() {
	s.mu.Lock()
	s.playing = false
	s.mu.Unlock()
	s.Sync()
}

// IsPlaying reports whether the virtual clock is advancing.
func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Release pauses and frees every cached media element.
func (s *Session) Release() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, el := range s.elements {
		el.Pause()
		el.Release()
		delete(s.elements, id)
	}
}

func (s *Session) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick runs one synchronization pass: gate and position every media element
// against the current playhead, feed the frame sink, then advance the
// virtual clock by the capped wall-clock delta. Sub-steps are ordered within
// a tick; there is no cross-tick atomicity, so a clip boundary crossed
// mid-tick is observed on the next one.
func (s *Session) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.doc.State()
	now := state.CurrentTime
	s.syncElements(state, now)

	if s.sink != nil {
		s.sink.OnFrame(state, now)
	}

	if !s.playing {
		s.lastTick = s.clock.Now()
		return
	}

	wall := s.clock.Now()
	delta := wall.Sub(s.lastTick)
	s.lastTick = wall
	if delta > maxTickDelta {
		delta = maxTickDelta
	}
	if delta < 0 {
		delta = 0
	}

	next := now + delta.Seconds()
	if state.Duration > 0 && next >= state.Duration {
		next = 0 // wrap at end-of-timeline
	}
	s.doc.Seek(next)
}

// Sync forces one element pass at the current playhead without advancing the
// clock. Used after external seeks while paused.
func (s *Session) Sync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.doc.State()
	s.syncElements(state, state.CurrentTime)
	if s.sink != nil {
		s.sink.OnFrame(state, state.CurrentTime)
	}
}

// syncElements implements the per-tick state machine. Callers hold s.mu.
func (s *Session) syncElements(state *model.Timeline, now float64) {
	type activeEntry struct {
		clip  model.Clip
		track *model.Track
	}
	var active []activeEntry
	activeIDs := make(map[string]bool)
	audioActive := false

	for _, tr := range state.Tracks {
		for _, c := range tr.Clips {
			if !c.Base().ActiveAt(now) {
				continue
			}
			if c.Kind() == model.ClipKindText {
				continue // text has no media element
			}
			active = append(active, activeEntry{clip: c, track: tr})
			activeIDs[c.Base().ID] = true
			if c.Kind() == model.ClipKindAudio {
				audioActive = true
			}
		}
	}

	// Pause and zero everything that fell out of its window. Ordering
	// against starting the newly active elements is last-writer-wins within
	// the tick.
	for id, el := range s.elements {
		if !activeIDs[id] {
			el.Pause()
			el.Seek(0)
		}
	}

	for _, entry := range active {
		base := entry.clip.Base()
		el, ok := s.elements[base.ID]
		if !ok {
			var err error
			el, err = s.factory.NewElement(entry.clip)
			if err != nil {
				logger.Warn("media element failed to materialize",
					logger.String("clipId", base.ID), logger.ErrorField(err))
				continue
			}
			s.elements[base.ID] = el
		}
		if !el.Ready() {
			// Not decodable yet: treat as inactive and let it catch up.
			continue
		}

		localTime := now - base.StartTime
		switch c := entry.clip.(type) {
		case *model.VideoClip:
			el.Seek(localTime)
			// Mute the video's own audio while any audio clip plays, so the
			// soundtrack is not doubled.
			el.SetMuted(audioActive || c.Volume == 0)
			if s.playing {
				if err := el.Play(); err != nil {
					logger.Warn("video element refused to play",
						logger.String("clipId", base.ID), logger.ErrorField(err))
				}
			} else {
				el.Pause()
			}
		case *model.AudioClip:
			el.SetVolume(EffectiveVolume(entry.track, c.Volume))
			if s.playing {
				// Position only while at rest, then resume; re-seeking a
				// playing element every tick causes restart glitches.
				if !el.IsPlaying() {
					el.Seek(localTime)
					if err := el.Play(); err != nil {
						logger.Warn("audio element refused to play",
							logger.String("clipId", base.ID), logger.ErrorField(err))
					}
				}
			} else {
				el.Pause()
				el.Seek(localTime)
			}
		}
	}
}
