package grove

import (
	"sync"
	"time"
)

// statsWindow is how often per-second rates are recomputed.
const statsWindow = 500 * time.Millisecond

// FrameSnapshot is a point-in-time copy of FrameStats.
type FrameSnapshot struct {
	Frames             uint64
	FPS                float64
	TrianglesPerSecond float64
	LastTriangles      int
	LastLights         int
	LastDuration       time.Duration
}

// FrameStats counts rendered frames and triangles and derives per-second
// rates over a half-second window.
type FrameStats struct {
	mu        sync.Mutex
	snap      FrameSnapshot
	winStart  time.Time
	winFrames int
	winTris   int
}

func (s *FrameStats) record(now time.Time, triangles, lights int, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Frames++
	s.snap.LastTriangles = triangles
	s.snap.LastLights = lights
	s.snap.LastDuration = d
	if s.winStart.IsZero() {
		s.winStart = now
	}
	s.winFrames++
	s.winTris += triangles
	if el := now.Sub(s.winStart); el >= statsWindow {
		sec := el.Seconds()
		s.snap.FPS = float64(s.winFrames) / sec
		s.snap.TrianglesPerSecond = float64(s.winTris) / sec
		s.winStart = now
		s.winFrames = 0
		s.winTris = 0
	}
}

// Snapshot returns the current counters.
func (s *FrameStats) Snapshot() FrameSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
