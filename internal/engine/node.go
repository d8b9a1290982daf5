package engine

import (
	"context"

	"github.com/skyarena/server/internal/relocation"
	"github.com/skyarena/server/internal/world"
)

// LocalNode exposes an in-process engine as a relocation.Node, for
// single-binary clusters and tests. Remote nodes go through client.Node.
type LocalNode struct {
	E *Engine
}

func (n LocalNode) Name() string { return n.E.Node() }

func (n LocalNode) Departure(_ context.Context, id string) (relocation.Departure, error) {
	return n.E.Departure(id)
}

func (n LocalNode) Arrive(_ context.Context, spec world.CharacterSpec, lease relocation.Lease) error {
	_, err := n.E.Arrive(spec, lease)
	return err
}

func (n LocalNode) Release(_ context.Context, id, leaseID string) error {
	return n.E.Release(id, leaseID)
}

func (n LocalNode) Settle(_ context.Context, id, leaseID string) error {
	return n.E.Settle(id, leaseID)
}

var _ relocation.Node = LocalNode{}
