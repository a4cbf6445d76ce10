package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/tokmesh-client/internal/core/domain"
)

// DefaultLifetimeBar is the bar used by NewSessionView.
var DefaultLifetimeBar = LifetimeBar{Width: 20}

// LifetimeBar renders how much of a session's lifetime remains, measured
// from its last refresh to its expiry.
type LifetimeBar struct {
	Width int
}

// Render returns e.g. "[#########-----------] 45%".
func (b LifetimeBar) Render(rec *domain.SessionRecord, now time.Time) string {
	return b.render(b.fraction(rec, now))
}

// fraction is the remaining share of the lifetime in [0, 1].
func (b LifetimeBar) fraction(rec *domain.SessionRecord, now time.Time) float64 {
	total := rec.ExpiresAt - rec.LastRefreshed
	if total <= 0 {
		return 0
	}
	remaining := float64(rec.TTL(now)/time.Millisecond) / float64(total)
	if remaining > 1 {
		return 1
	}
	return remaining
}

func (b LifetimeBar) render(fraction float64) string {
	width := b.Width
	if width <= 0 {
		width = DefaultLifetimeBar.Width
	}
	filled := int(fraction * float64(width))
	return fmt.Sprintf("[%s%s] %3.0f%%",
		strings.Repeat("#", filled),
		strings.Repeat("-", width-filled),
		fraction*100,
	)
}
