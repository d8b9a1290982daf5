package relocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/skyarena/server/internal/world"
	"go.uber.org/zap"
)

// Departure is what a source node hands out for a character in flight.
type Departure struct {
	Character world.CharacterView `json:"character"`
	Lease     Lease               `json:"lease"`
}

// Node is one independently addressable arena as seen by a relocating agent.
// Implementations must surface world.ErrDuplicateID from Arrive and
// world.ErrNotFound from Release and Settle so the idempotence rules below
// apply.
type Node interface {
	Name() string
	Departure(ctx context.Context, characterID string) (Departure, error)
	// Arrive admits the character as pending on the destination.
	Arrive(ctx context.Context, spec world.CharacterSpec, lease Lease) error
	// Release removes the character from the source while lease is outstanding.
	Release(ctx context.Context, characterID, leaseID string) error
	// Settle activates a pending arrival on the destination.
	Settle(ctx context.Context, characterID, leaseID string) error
}

// Result describes how a move ended.
type Result struct {
	LeaseID        string
	AlreadyPresent bool // destination already held the id; join was not repeated
	AlreadyGone    bool // source no longer held the id when release ran
	LeaveAttempts  int
}

// Relocator drives the fetch → join → release → settle sequence between two
// nodes.
//
// The sequence is not atomic, and the lease expiry decides how a broken move
// ends. The destination keeps an arrival frozen until it is settled and drops
// it when the settle window closes. The source refuses a release once the
// lease ran out and reclaims the character instead. Either way exactly one
// node ends up with an active copy. Release and settle are retried with
// backoff inside the lease.
type Relocator struct {
	log         *zap.Logger
	baseBackoff time.Duration
	maxRetries  uint64
}

// NewRelocator returns a relocator retrying release and settle up to
// maxRetries times with exponential backoff starting at base.
func NewRelocator(log *zap.Logger, base time.Duration, maxRetries uint64) *Relocator {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	return &Relocator{log: log, baseBackoff: base, maxRetries: maxRetries}
}

// Move relocates characterID from src to dst. The returned Result carries the
// lease id even on failure so a caller can finish the move with Settle.
func (r *Relocator) Move(ctx context.Context, characterID string, src, dst Node) (Result, error) {
	var res Result

	dep, err := src.Departure(ctx, characterID)
	if err != nil {
		return res, fmt.Errorf("departure from %s: %w", src.Name(), err)
	}
	res.LeaseID = dep.Lease.ID

	if err := dst.Arrive(ctx, dep.Character.Spec(), dep.Lease); err != nil {
		if !errors.Is(err, world.ErrDuplicateID) {
			return res, fmt.Errorf("arrive at %s: %w", dst.Name(), err)
		}
		// Already relocated by an earlier attempt.
		res.AlreadyPresent = true
	}

	err = retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		res.LeaveAttempts++
		err := src.Release(ctx, characterID, dep.Lease.ID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, world.ErrNotFound):
			res.AlreadyGone = true
			return nil
		case errors.Is(err, ErrLeaseExpired), errors.Is(err, ErrInvalidLease):
			return err
		default:
			r.log.Warn("relocation release failed",
				zap.String("cid", characterID),
				zap.String("source", src.Name()),
				zap.Int("attempt", res.LeaveAttempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		return res, fmt.Errorf("release from %s (arrival on %s stays frozen): %w", src.Name(), dst.Name(), err)
	}

	if err := r.Settle(ctx, characterID, dep.Lease.ID, dst); err != nil {
		return res, err
	}

	r.log.Info("character relocated",
		zap.String("cid", characterID),
		zap.String("from", src.Name()),
		zap.String("to", dst.Name()),
		zap.String("lease", dep.Lease.ID),
		zap.Bool("already_present", res.AlreadyPresent))
	return res, nil
}

// Settle activates the arrival of characterID on dst, retrying transient
// failures. It finishes a move whose release went through but whose settle
// did not.
func (r *Relocator) Settle(ctx context.Context, characterID, leaseID string, dst Node) error {
	attempts := 0
	err := retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		attempts++
		err := dst.Settle(ctx, characterID, leaseID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, world.ErrNotFound), errors.Is(err, ErrInvalidLease):
			return err
		default:
			r.log.Warn("relocation settle failed",
				zap.String("cid", characterID),
				zap.String("destination", dst.Name()),
				zap.Int("attempt", attempts),
				zap.Error(err))
			return retry.RetryableError(err)
		}
	})
	if err != nil {
		return fmt.Errorf("settle on %s: %w", dst.Name(), err)
	}
	return nil
}

func (r *Relocator) backoff() retry.Backoff {
	return retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseBackoff))
}
