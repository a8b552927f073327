package poll

import "sync/atomic"

// Standby is evaluated before each scheduled tick; returning true skips the tick.
type Standby func() bool

// Never is the standby policy that always polls.
func Never() bool {
	return false
}

// Visibility reports whether the consuming context is currently hidden.
type Visibility interface {
	Hidden() bool
}

// WhenHidden suspends scheduled ticks while v reports hidden.
func WhenHidden(v Visibility) Standby {
	if v == nil {
		return Never
	}
	return v.Hidden
}

// VisibilityFlag is a Visibility toggled by its owner. The zero value is visible.
type VisibilityFlag struct {
	hidden atomic.Bool
}

func (f *VisibilityFlag) Hidden() bool {
	return f.hidden.Load()
}

func (f *VisibilityFlag) SetHidden(hidden bool) {
	f.hidden.Store(hidden)
}
