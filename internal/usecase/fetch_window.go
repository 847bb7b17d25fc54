package usecase

import (
	"fmt"
	"time"

	"github.com/lendmatch/backend/internal/domain"
)

// windowSpacing separates the two daily fetch windows
const windowSpacing = 12

// FetchWindow is the twice-daily network refresh policy. A window is one
// whole UTC hour; the second starts twelve hours after the first.
type FetchWindow struct {
	firstHour int
}

// NewFetchWindow creates the policy. firstHourUTC is taken modulo 12, so the
// default 0 yields windows at 00:00 and 12:00 UTC.
func NewFetchWindow(firstHourUTC int) *FetchWindow {
	h := firstHourUTC % windowSpacing
	if h < 0 {
		h += windowSpacing
	}
	return &FetchWindow{firstHour: h}
}

// Hours returns the two window hours in UTC
func (w *FetchWindow) Hours() [2]int {
	return [2]int{w.firstHour, w.firstHour + windowSpacing}
}

// IsAllowed reports whether now falls inside a fetch window
func (w *FetchWindow) IsAllowed(now time.Time) bool {
	h := now.UTC().Hour()
	return h == w.firstHour || h == w.firstHour+windowSpacing
}

// Start returns the beginning of the window containing now, or the zero
// time when now is outside every window.
func (w *FetchWindow) Start(now time.Time) time.Time {
	if !w.IsAllowed(now) {
		return time.Time{}
	}
	return now.UTC().Truncate(time.Hour)
}

// Info describes the window state at now. Inside a window the next one is
// twelve hours away; outside, it is the nearest boundary strictly after now.
func (w *FetchWindow) Info(now time.Time) domain.WindowInfo {
	if w.IsAllowed(now) {
		return domain.WindowInfo{
			IsAllowed:  true,
			NextWindow: now.Add(windowSpacing * time.Hour),
			Reason:     fmt.Sprintf("inside the %02d:00 UTC fetch window", now.UTC().Hour()),
		}
	}

	next := w.nextBoundary(now)
	return domain.WindowInfo{
		IsAllowed:  false,
		NextWindow: next,
		Reason:     fmt.Sprintf("outside fetch windows; next opens at %s", next.Format("15:04 MST")),
	}
}

func (w *FetchWindow) nextBoundary(now time.Time) time.Time {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)

	for _, h := range w.Hours() {
		if candidate := midnight.Add(time.Duration(h) * time.Hour); candidate.After(utc) {
			return candidate
		}
	}
	return midnight.AddDate(0, 0, 1).Add(time.Duration(w.firstHour) * time.Hour)
}
