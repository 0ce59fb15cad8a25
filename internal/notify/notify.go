// Package notify is the single user-visible failure surface: a bounded list
// of fading toast notifications (spec §7 "User-visible failures"). Built
// directly on the teacher's internal/util.RingBuffer, which already gives
// this package its overwrite-oldest-when-full semantics for free.
package notify

import (
	"time"

	"github.com/petervdpas/substrata-client/internal/util"
)

// Level distinguishes how a notification should render.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

// Toast is one notification entry.
type Toast struct {
	Level   Level
	Text    string
	Created time.Time
	FadeAfter time.Duration
}

// Expired reports whether Toast should no longer be shown as of now.
func (t Toast) Expired(now time.Time) bool {
	return now.Sub(t.Created) > t.FadeAfter
}

// minConcurrent and maxConcurrent bound the number of toasts shown at once
// (spec §7: "min 3, max 6 concurrent toasts").
const (
	minConcurrent = 3
	maxConcurrent = 6
)

const defaultFade = 6 * time.Second

// Center owns the bounded toast ring buffer. It keeps no history beyond the
// most recent maxConcurrent toasts: older entries are overwritten.
type Center struct {
	toasts *util.RingBuffer[Toast]
}

// New creates a Center holding up to maxConcurrent toasts at once.
func New() *Center {
	return &Center{toasts: util.NewRingBuffer[Toast](maxConcurrent)}
}

// Post adds a new toast, fading after the given duration (0 uses the default).
func (c *Center) Post(level Level, text string, fadeAfter time.Duration) {
	if fadeAfter <= 0 {
		fadeAfter = defaultFade
	}
	c.toasts.Push(Toast{Level: level, Text: text, Created: time.Now(), FadeAfter: fadeAfter})
}

// Visible returns the currently-unexpired toasts, oldest first, padded with
// the most recently expired entries if fewer than minConcurrent are still
// live and more history exists -- a toast due to expire stays on screen a
// little longer rather than dropping below the floor (spec §7: "min 3, max
// 6 concurrent toasts").
func (c *Center) Visible(now time.Time) []Toast {
	all := c.toasts.Snapshot()

	firstLive := len(all)
	for i, t := range all {
		if !t.Expired(now) {
			firstLive = i
			break
		}
	}
	live := len(all) - firstLive

	start := firstLive
	if live < minConcurrent {
		start = len(all) - minConcurrent
		if start < 0 {
			start = 0
		}
	}
	return all[start:]
}
