package security

import "time"

// KeyRotationWindow bounds when a retired app key may still open sealed
// configs. Reads outside the window fall through to the next key in the
// ring; a zero window never closes.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

// RetireAfter builds the window for a key retired at rotatedAt that
// stays readable for the grace period, long enough for stored configs
// to be resealed with the active key on their next write.
func RetireAfter(rotatedAt time.Time, grace time.Duration) KeyRotationWindow {
	closeAt := rotatedAt.UTC()
	if grace > 0 {
		closeAt = closeAt.Add(grace)
	}
	return KeyRotationWindow{NotAfter: closeAt}
}

// Allows reports whether the key may be used at the given instant.
func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}
