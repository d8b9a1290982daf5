package combat

import "github.com/skyarena/server/internal/world"

// EventKind classifies what happened to one acting character during a turn.
type EventKind string

const (
	EventHit     EventKind = "hit"     // HIT landed with no mitigation
	EventBlocked EventKind = "blocked" // HIT landed on a blocking target (halved)
	EventEvaded  EventKind = "evaded"  // HIT dodged entirely
	EventNoop    EventKind = "noop"    // no resolvable target, or BLOCK/DODGE with nothing to do
	EventFly     EventKind = "fly"     // left combat to relocate
	EventDeath   EventKind = "death"   // life reached 0 this turn
)

// Event is one entry of a turn's combat log.
type Event struct {
	Turn   int          `json:"turn"`
	Kind   EventKind    `json:"kind"`
	Actor  string       `json:"actor"`
	Action world.Action `json:"action"`
	Target string       `json:"target,omitempty"`
	Damage int          `json:"damage"`
}

// Outcome is the result of resolving one turn.
type Outcome struct {
	Turn   int
	Events []Event
	Flyers []string // ids whose FLY resolved this turn, id ascending
	Deaths []string // ids killed this turn, id ascending
}
