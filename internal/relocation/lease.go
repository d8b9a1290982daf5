package relocation

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/blake2b"
)

// Lease names the node that owns a relocating character until it expires.
// The source node issues it when FLY resolves; the destination accepts the
// character only with a lease that verifies under the shared cluster secret.
type Lease struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"cid"`
	Source      string    `json:"source"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Signature   string    `json:"sig"`
}

// Expired reports whether the lease is no longer valid at now.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

func (l Lease) payload() []byte {
	return []byte(l.ID + "|" + l.CharacterID + "|" + l.Source + "|" +
		strconv.FormatInt(l.IssuedAt.UnixNano(), 10) + "|" +
		strconv.FormatInt(l.ExpiresAt.UnixNano(), 10))
}

// Signer issues and verifies leases for one node.
type Signer struct {
	node string
	key  []byte
	ttl  time.Duration

	mu      sync.Mutex // guards entropy (ulid.Monotonic is not goroutine-safe)
	entropy io.Reader
}

// NewSigner derives a MAC key from the cluster secret. Every node of a
// cluster must be configured with the same secret.
func NewSigner(node, secret string, ttl time.Duration) (*Signer, error) {
	if node == "" {
		return nil, fmt.Errorf("signer: empty node name")
	}
	if secret == "" {
		return nil, fmt.Errorf("signer: empty cluster secret")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("signer: lease ttl must be positive, got %s", ttl)
	}
	key := blake2b.Sum256([]byte(secret))
	return &Signer{
		node:    node,
		key:     key[:],
		ttl:     ttl,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// Node returns the name leases are issued under.
func (s *Signer) Node() string { return s.node }

// Issue creates a signed lease for a character leaving this node.
func (s *Signer) Issue(characterID string, now time.Time) (Lease, error) {
	s.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), s.entropy)
	s.mu.Unlock()
	if err != nil {
		return Lease{}, fmt.Errorf("lease id: %w", err)
	}
	l := Lease{
		ID:          id.String(),
		CharacterID: characterID,
		Source:      s.node,
		IssuedAt:    now.UTC(),
		ExpiresAt:   now.Add(s.ttl).UTC(),
	}
	l.Signature = hex.EncodeToString(s.mac(l))
	return l, nil
}

// Verify checks that a lease was issued by another node of the cluster and
// is still valid at now.
func (s *Signer) Verify(l Lease, now time.Time) error {
	sig, err := hex.DecodeString(l.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature", ErrInvalidLease)
	}
	if subtle.ConstantTimeCompare(sig, s.mac(l)) != 1 {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidLease)
	}
	if _, err := ulid.ParseStrict(l.ID); err != nil {
		return fmt.Errorf("%w: lease id: %v", ErrInvalidLease, err)
	}
	if l.Source == s.node {
		return fmt.Errorf("%w: lease issued by this node", ErrInvalidLease)
	}
	if l.Expired(now) {
		return fmt.Errorf("lease %s: %w", l.ID, ErrLeaseExpired)
	}
	return nil
}

func (s *Signer) mac(l Lease) []byte {
	h, err := blake2b.New256(s.key)
	if err != nil {
		// Key is a fixed 32 bytes, New256 only fails above 64.
		panic(err)
	}
	h.Write(l.payload())
	return h.Sum(nil)
}

// Ledger tracks outstanding leases by character id.
// Not safe for concurrent use; the engine lock guards it.
type Ledger struct {
	byChar map[string]Lease
}

func NewLedger() *Ledger {
	return &Ledger{byChar: make(map[string]Lease)}
}

func (l *Ledger) Put(lease Lease) {
	l.byChar[lease.CharacterID] = lease
}

func (l *Ledger) Get(characterID string) (Lease, bool) {
	lease, ok := l.byChar[characterID]
	return lease, ok
}

func (l *Ledger) Delete(characterID string) {
	delete(l.byChar, characterID)
}

func (l *Ledger) Len() int {
	return len(l.byChar)
}

// Expired returns leases past their expiry at now, by character id.
func (l *Ledger) Expired(now time.Time) []Lease {
	var out []Lease
	for _, lease := range l.byChar {
		if lease.Expired(now) {
			out = append(out, lease)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CharacterID < out[j].CharacterID })
	return out
}
