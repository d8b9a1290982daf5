package world

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Action is the per-turn intent a character submits.
type Action int

const (
	ActionNone  Action = iota // 0: nothing submitted since last resolution
	ActionHit                 // 1: attack the current target
	ActionBlock               // 2: halve incoming hits
	ActionDodge               // 3: chance to evade incoming hits
	ActionFly                 // 4: leave this arena for another node
)

var actionNames = [...]string{"NONE", "HIT", "BLOCK", "DODGE", "FLY"}

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actionNames[a]
}

// ParseAction maps a wire token (case-insensitive) to an Action.
func ParseAction(token string) (Action, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	for i, name := range actionNames {
		if name == t {
			return Action(i), nil
		}
	}
	return ActionNone, fmt.Errorf("%w: %q", ErrInvalidAction, token)
}

// MarshalText implements encoding.TextMarshaler so snapshots carry tokens, not ints.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Rules bounds the stat allocation accepted at creation.
type Rules struct {
	StatBudget int // life+strength+armor+speed upper bound
	MaxSpeed   int
}

// DefaultRules returns the standard 20-point budget with speed capped at 10.
func DefaultRules() Rules {
	return Rules{StatBudget: 20, MaxSpeed: 10}
}

// CharacterSpec is the join request payload.
type CharacterSpec struct {
	ID       string `json:"cid"`
	TeamID   string `json:"teamid"`
	Life     int    `json:"life"`
	Strength int    `json:"strength"`
	Armor    int    `json:"armor"`
	Speed    int    `json:"speed"`
}

// Validate checks the stats against the rules. Identity fields are normalized in place.
func (s *CharacterSpec) Validate(r Rules) error {
	s.ID = NormalizeID(s.ID)
	s.TeamID = NormalizeID(s.TeamID)
	if s.ID == "" {
		return fmt.Errorf("%w: empty character id", ErrValidation)
	}
	if s.TeamID == "" {
		return fmt.Errorf("%w: empty team id", ErrValidation)
	}
	if s.Life < 0 || s.Strength < 0 || s.Armor < 0 || s.Speed < 0 {
		return fmt.Errorf("%w: stats must be non-negative", ErrValidation)
	}
	if sum := s.Life + s.Strength + s.Armor + s.Speed; sum > r.StatBudget {
		return fmt.Errorf("%w: stat sum %d exceeds %d", ErrValidation, sum, r.StatBudget)
	}
	if s.Speed > r.MaxSpeed {
		return fmt.Errorf("%w: speed %d exceeds %d", ErrValidation, s.Speed, r.MaxSpeed)
	}
	return nil
}

// NormalizeID trims and NFC-normalizes an identifier so that visually
// identical ids compare equal.
func NormalizeID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// Character is a mutable combat entity. It is not safe for concurrent use;
// the owning engine serializes access.
type Character struct {
	ID       string
	TeamID   string
	Life     int
	Strength int
	Armor    int
	Speed    int

	Action Action
	Target string // by-id reference, re-resolved every turn

	Alive    bool
	InFlight bool // relocation lease outstanding; not eligible for combat
}

// NewCharacter validates the stats and builds a character.
func NewCharacter(spec CharacterSpec, r Rules) (*Character, error) {
	if err := spec.Validate(r); err != nil {
		return nil, err
	}
	return &Character{
		ID:       spec.ID,
		TeamID:   spec.TeamID,
		Life:     spec.Life,
		Strength: spec.Strength,
		Armor:    spec.Armor,
		Speed:    spec.Speed,
		Alive:    spec.Life > 0,
	}, nil
}

// SetAction overwrites the pending intent.
func (c *Character) SetAction(a Action) {
	c.Action = a
}

// SetTarget stores the target id; existence is checked at resolution time.
func (c *Character) SetTarget(targetID string) {
	c.Target = NormalizeID(targetID)
}

// ApplyDamage lowers life, clamped at 0. No-op once dead.
func (c *Character) ApplyDamage(amount int) {
	if !c.Alive || amount <= 0 {
		return
	}
	c.Life -= amount
	if c.Life <= 0 {
		c.Life = 0
		c.Alive = false
	}
}

// Eligible reports whether the character takes part in turns on this node.
func (c *Character) Eligible() bool {
	return c.Alive && !c.InFlight
}

// Spec returns the stats needed to recreate the character on another node.
func (c *Character) Spec() CharacterSpec {
	return CharacterSpec{
		ID:       c.ID,
		TeamID:   c.TeamID,
		Life:     c.Life,
		Strength: c.Strength,
		Armor:    c.Armor,
		Speed:    c.Speed,
	}
}

// CharacterView is an immutable copy handed to collaborators.
type CharacterView struct {
	ID       string `json:"cid"`
	TeamID   string `json:"teamid"`
	Life     int    `json:"life"`
	Strength int    `json:"strength"`
	Armor    int    `json:"armor"`
	Speed    int    `json:"speed"`
	Action   Action `json:"action"`
	Target   string `json:"target,omitempty"`
	Alive    bool   `json:"alive"`
	InFlight bool   `json:"in_flight,omitempty"`
}

// View copies the character's current state.
func (c *Character) View() CharacterView {
	return CharacterView{
		ID:       c.ID,
		TeamID:   c.TeamID,
		Life:     c.Life,
		Strength: c.Strength,
		Armor:    c.Armor,
		Speed:    c.Speed,
		Action:   c.Action,
		Target:   c.Target,
		Alive:    c.Alive,
		InFlight: c.InFlight,
	}
}

// Spec returns the view's stats as a join payload.
func (v CharacterView) Spec() CharacterSpec {
	return CharacterSpec{
		ID:       v.ID,
		TeamID:   v.TeamID,
		Life:     v.Life,
		Strength: v.Strength,
		Armor:    v.Armor,
		Speed:    v.Speed,
	}
}
