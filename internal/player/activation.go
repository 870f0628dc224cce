// Package player is the client side of the feed: it decides which mounted
// slot may play, prefetches pages near the end of the list and resolves
// playable URLs per slot.
package player

import "math"

// ActivationThreshold is the visible fraction a slot must rise above to
// become active.
const ActivationThreshold = 0.5

// SlotID identifies a mounted slot. It is the video's row id.
type SlotID int64

// Change describes a switch of the active slot.
type Change struct {
	Activated SlotID
	// Deactivated is valid only when HadPrevious is set.
	Deactivated SlotID
	HadPrevious bool
}

// Activation tracks visibility per slot and keeps at most one slot active.
// A slot becomes active when its visible fraction crosses above the
// threshold; the most recent crossing wins. An active slot stays active when
// it scrolls out until another slot crosses. It is not safe for concurrent
// use; Controller owns one on its loop.
type Activation struct {
	fractions map[SlotID]float64
	active    SlotID
	hasActive bool
}

func NewActivation() *Activation {
	return &Activation{fractions: make(map[SlotID]float64)}
}

// Observe records a visibility report. It returns the change and true when
// the report moved activity to slot.
func (a *Activation) Observe(slot SlotID, fraction float64) (Change, bool) {
	fraction = clampFraction(fraction)
	prev := a.fractions[slot]
	a.fractions[slot] = fraction

	crossed := prev <= ActivationThreshold && fraction > ActivationThreshold
	if !crossed || (a.hasActive && a.active == slot) {
		return Change{}, false
	}

	c := Change{Activated: slot, Deactivated: a.active, HadPrevious: a.hasActive}
	a.active, a.hasActive = slot, true
	return c, true
}

// Active returns the active slot, if any.
func (a *Activation) Active() (SlotID, bool) {
	return a.active, a.hasActive
}

func (a *Activation) IsActive(slot SlotID) bool {
	return a.hasActive && a.active == slot
}

// Remove forgets slot. It reports whether slot was the active one, in which
// case no slot is active afterwards.
func (a *Activation) Remove(slot SlotID) bool {
	delete(a.fractions, slot)
	if a.hasActive && a.active == slot {
		a.active, a.hasActive = 0, false
		return true
	}
	return false
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
