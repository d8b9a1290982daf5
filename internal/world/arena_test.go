package world

import (
	"errors"
	"reflect"
	"testing"
)

func mustChar(t *testing.T, id, team string, life int) *Character {
	t.Helper()
	c, err := NewCharacter(CharacterSpec{ID: id, TeamID: team, Life: life, Strength: 3}, DefaultRules())
	if err != nil {
		t.Fatalf("new character %s: %v", id, err)
	}
	return c
}

func TestArenaAddDuplicateKeepsOriginal(t *testing.T) {
	a := NewArena()
	orig := mustChar(t, "a", "x", 8)
	if err := a.Add(orig); err != nil {
		t.Fatalf("add: %v", err)
	}
	dup := mustChar(t, "a", "y", 2)
	if err := a.Add(dup); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	got, _ := a.Get("a")
	if got != orig || got.TeamID != "x" || got.Life != 8 {
		t.Fatalf("duplicate add mutated existing character: %+v", got)
	}
}

func TestArenaRemoveTwice(t *testing.T) {
	a := NewArena()
	a.Add(mustChar(t, "a", "x", 8))
	if _, err := a.Remove("a"); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if _, err := a.Remove("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArenaRemoveClearsTargets(t *testing.T) {
	a := NewArena()
	x := mustChar(t, "a", "x", 8)
	y := mustChar(t, "b", "y", 8)
	a.Add(x)
	a.Add(y)
	x.SetTarget("b")
	a.Remove("b")
	if x.Target != "" {
		t.Fatalf("target should be cleared, got %q", x.Target)
	}
	if a.ResolveTarget(x) != nil {
		t.Fatalf("removed target should resolve to nothing")
	}
}

func TestArenaIDsJoinOrder(t *testing.T) {
	a := NewArena()
	for _, id := range []string{"c", "a", "b"} {
		a.Add(mustChar(t, id, "x", 5))
	}
	a.Remove("a")
	if got := a.IDs(); !reflect.DeepEqual(got, []string{"c", "b"}) {
		t.Fatalf("ids = %v", got)
	}
	chars := a.Characters()
	if chars[0].ID != "b" || chars[1].ID != "c" {
		t.Fatalf("characters not sorted by id: %v, %v", chars[0].ID, chars[1].ID)
	}
}

func TestArenaReadiness(t *testing.T) {
	a := NewArena()
	if a.AllSubmittedAction() {
		t.Fatalf("empty arena must not be ready")
	}
	x := mustChar(t, "a", "x", 8)
	y := mustChar(t, "b", "y", 8)
	dead := mustChar(t, "c", "z", 0)
	a.Add(x)
	a.Add(y)
	a.Add(dead)

	x.SetAction(ActionHit)
	if a.AllSubmittedAction() {
		t.Fatalf("ready while b has no action")
	}
	y.SetAction(ActionBlock)
	if !a.AllSubmittedAction() {
		t.Fatalf("dead characters must not block readiness")
	}
	y.SetAction(ActionNone)
	y.InFlight = true
	if !a.AllSubmittedAction() {
		t.Fatalf("in-flight characters must not block readiness")
	}
	if a.ActiveCount() != 2 || a.EligibleCount() != 1 {
		t.Fatalf("active=%d eligible=%d", a.ActiveCount(), a.EligibleCount())
	}
}

func TestArenaValidTargetsExcludeDeadAndSelf(t *testing.T) {
	a := NewArena()
	a.Add(mustChar(t, "a", "x", 8))
	a.Add(mustChar(t, "b", "y", 8))
	a.Add(mustChar(t, "c", "y", 0))
	if got := a.ValidTargets("a"); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("valid targets = %v", got)
	}
	if _, ok := a.Get("c"); !ok {
		t.Fatalf("dead character must stay queryable")
	}
}
