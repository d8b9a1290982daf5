package event

import (
	"time"

	"github.com/skyarena/server/internal/combat"
)

// Engine event types, delivered after the arena lock is released.

type CharacterJoined struct {
	Turn        int    `json:"turn"`
	CharacterID string `json:"cid"`
	TeamID      string `json:"teamid"`
	Relocated   bool   `json:"relocated"` // arrived with a lease from another node
}

type CharacterLeft struct {
	Turn        int    `json:"turn"`
	CharacterID string `json:"cid"`
}

type TurnResolved struct {
	Turn       int            `json:"turn"`
	ResolvedAt time.Time      `json:"resolved_at"`
	Events     []combat.Event `json:"events"`
	Alive      int            `json:"alive"`
}

type LeaseIssued struct {
	Turn        int       `json:"turn"`
	CharacterID string    `json:"cid"`
	LeaseID     string    `json:"lease"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type LeaseExpired struct {
	CharacterID string `json:"cid"`
	LeaseID     string `json:"lease"`
}

type EngineStopped struct {
	Turn   int    `json:"turn"`
	Reason string `json:"reason"`
}
