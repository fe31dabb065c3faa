package model

import "time"

const (
	// FrontBuffer is the preparation time kept free before a reservation starts.
	FrontBuffer = 20 * time.Minute
	// BackBuffer is the cleanup time kept free after a reservation ends.
	BackBuffer = 5 * time.Minute
	// LockWindow is how far ahead of its start a reservation claims its tables:
	// the scheduler promotes them to RESERVED and manual reassignment is refused.
	LockWindow = 45 * time.Minute
	// CheckInLead is how early before start a guest may be checked in.
	CheckInLead = 15 * time.Minute
	// MaxDuration caps the length of a single reservation.
	MaxDuration = 12 * time.Hour
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether t lies in the closed range [Start, End].
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// BufferedWindow expands a nominal reservation interval by the front and
// back buffers. This is the range tested against existing reservations.
func BufferedWindow(start, end time.Time) Interval {
	return Interval{Start: start.Add(-FrontBuffer), End: end.Add(BackBuffer)}
}

// Clash reports whether two reservations on the same table are too close.
// Each one's buffered window must stay clear of the other's nominal
// interval, so the answer does not depend on which was booked first.
func Clash(a, b Interval) bool {
	return BufferedWindow(a.Start, a.End).Overlaps(b) || BufferedWindow(b.Start, b.End).Overlaps(a)
}

// ClashSearchWindow widens [start, end) by the larger buffer on both sides.
// Any reservation that can Clash with [start, end) intersects it.
func ClashSearchWindow(start, end time.Time) Interval {
	pad := FrontBuffer
	if BackBuffer > pad {
		pad = BackBuffer
	}
	return Interval{Start: start.Add(-pad), End: end.Add(pad)}
}

// StartsWithinLockWindow reports whether start is strictly after now and
// strictly less than LockWindow away. A reservation exactly 45 minutes out
// is not yet inside the window.
func StartsWithinLockWindow(start, now time.Time) bool {
	return start.After(now) && start.Before(now.Add(LockWindow))
}
