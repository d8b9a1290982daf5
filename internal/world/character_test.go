package world

import (
	"errors"
	"testing"
)

func TestNewCharacterStatBounds(t *testing.T) {
	rules := DefaultRules()
	tests := []struct {
		name    string
		spec    CharacterSpec
		wantErr bool
	}{
		{"exact budget", CharacterSpec{ID: "a", TeamID: "x", Life: 5, Strength: 5, Armor: 5, Speed: 5}, false},
		{"speed at cap", CharacterSpec{ID: "a", TeamID: "x", Life: 10, Speed: 10}, false},
		{"all zero", CharacterSpec{ID: "a", TeamID: "x"}, false},
		{"over budget", CharacterSpec{ID: "a", TeamID: "x", Life: 6, Strength: 5, Armor: 5, Speed: 5}, true},
		{"speed over cap", CharacterSpec{ID: "a", TeamID: "x", Life: 5, Speed: 11}, true},
		{"negative stat", CharacterSpec{ID: "a", TeamID: "x", Life: 10, Armor: -1}, true},
		{"empty id", CharacterSpec{ID: "  ", TeamID: "x", Life: 5}, true},
		{"empty team", CharacterSpec{ID: "a", Life: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCharacter(tt.spec, rules)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Action != ActionNone {
				t.Fatalf("new character should have no pending action, got %v", c.Action)
			}
		})
	}
}

func TestNewCharacterExhaustiveValidTuples(t *testing.T) {
	rules := DefaultRules()
	for life := 0; life <= 20; life++ {
		for str := 0; life+str <= 20; str++ {
			for armor := 0; life+str+armor <= 20; armor++ {
				for speed := 0; life+str+armor+speed <= 20 && speed <= 10; speed++ {
					spec := CharacterSpec{ID: "c", TeamID: "t", Life: life, Strength: str, Armor: armor, Speed: speed}
					if _, err := NewCharacter(spec, rules); err != nil {
						t.Fatalf("valid tuple %+v rejected: %v", spec, err)
					}
				}
			}
		}
	}
}

func TestApplyDamageClampsAndKills(t *testing.T) {
	c := &Character{ID: "a", Life: 5, Alive: true}
	c.ApplyDamage(3)
	if c.Life != 2 || !c.Alive {
		t.Fatalf("expected life 2 alive, got %d alive=%v", c.Life, c.Alive)
	}
	c.ApplyDamage(10)
	if c.Life != 0 || c.Alive {
		t.Fatalf("expected life 0 dead, got %d alive=%v", c.Life, c.Alive)
	}
	c.ApplyDamage(4)
	if c.Life != 0 || c.Alive {
		t.Fatalf("damage on dead character must be a no-op, got %d", c.Life)
	}
}

func TestParseAction(t *testing.T) {
	for _, tok := range []string{"NONE", "hit", " Block ", "DODGE", "fly"} {
		if _, err := ParseAction(tok); err != nil {
			t.Fatalf("token %q rejected: %v", tok, err)
		}
	}
	if _, err := ParseAction("HEAL"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	a, _ := ParseAction("dodge")
	if a != ActionDodge || a.String() != "DODGE" {
		t.Fatalf("round trip mismatch: %v", a)
	}
}

func TestNormalizeIDComposesUnicode(t *testing.T) {
	if NormalizeID("cafe\u0301 ") != NormalizeID("caf\u00e9") {
		t.Fatalf("decomposed and precomposed ids should normalize equal")
	}
}
