package world

import (
	"fmt"
	"sort"
)

// Arena tracks all characters currently on this node.
// Not safe for concurrent use: the owning engine holds one lock around every call.
type Arena struct {
	byID  map[string]*Character // character id → Character
	order []string              // ids in join order
}

func NewArena() *Arena {
	return &Arena{
		byID: make(map[string]*Character),
	}
}

// Add registers a character. Fails with ErrDuplicateID if the id is present.
func (a *Arena) Add(c *Character) error {
	if _, ok := a.byID[c.ID]; ok {
		return fmt.Errorf("add %s: %w", c.ID, ErrDuplicateID)
	}
	a.byID[c.ID] = c
	a.order = append(a.order, c.ID)
	return nil
}

// Remove deletes a character and clears targets pointing at it.
func (a *Arena) Remove(id string) (*Character, error) {
	id = NormalizeID(id)
	c, ok := a.byID[id]
	if !ok {
		return nil, fmt.Errorf("remove %s: %w", id, ErrNotFound)
	}
	delete(a.byID, id)
	for i, oid := range a.order {
		if oid == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	for _, other := range a.byID {
		if other.Target == id {
			other.Target = ""
		}
	}
	return c, nil
}

// Get returns a character by id.
func (a *Arena) Get(id string) (*Character, bool) {
	c, ok := a.byID[NormalizeID(id)]
	return c, ok
}

// IDs returns a copy of all ids in join order.
func (a *Arena) IDs() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// Len returns the number of characters, dead or alive.
func (a *Arena) Len() int {
	return len(a.byID)
}

// ActiveCount returns the number of alive characters.
func (a *Arena) ActiveCount() int {
	n := 0
	for _, c := range a.byID {
		if c.Alive {
			n++
		}
	}
	return n
}

// EligibleCount returns the number of alive characters not in flight.
func (a *Arena) EligibleCount() int {
	n := 0
	for _, c := range a.byID {
		if c.Eligible() {
			n++
		}
	}
	return n
}

// AllSubmittedAction reports whether every eligible character has a pending
// action. An arena with nobody eligible has no turn to play and is not ready.
func (a *Arena) AllSubmittedAction() bool {
	eligible := 0
	for _, c := range a.byID {
		if !c.Eligible() {
			continue
		}
		if c.Action == ActionNone {
			return false
		}
		eligible++
	}
	return eligible > 0
}

// ResolveTarget returns the character c targets, or nil if the target is
// unset, departed, dead or in flight.
func (a *Arena) ResolveTarget(c *Character) *Character {
	if c.Target == "" {
		return nil
	}
	t, ok := a.byID[c.Target]
	if !ok || !t.Eligible() {
		return nil
	}
	return t
}

// Characters returns all characters sorted by id ascending.
func (a *Arena) Characters() []*Character {
	out := make([]*Character, 0, len(a.byID))
	for _, c := range a.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Views returns a copy of every character's state, id ascending.
func (a *Arena) Views() []CharacterView {
	chars := a.Characters()
	out := make([]CharacterView, len(chars))
	for i, c := range chars {
		out[i] = c.View()
	}
	return out
}

// ValidTargets returns the ids a character may target this turn: eligible
// characters other than itself, in join order.
func (a *Arena) ValidTargets(selfID string) []string {
	out := make([]string, 0, len(a.order))
	for _, id := range a.order {
		if id == selfID {
			continue
		}
		if c := a.byID[id]; c.Eligible() {
			out = append(out, id)
		}
	}
	return out
}
