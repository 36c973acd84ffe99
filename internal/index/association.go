// Package index maintains the in-memory association index mapping dataset ids
// to the contexts that reference them.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/repository"
)

// Association answers "which contexts mention this dataset" without scanning
// every stored context. It is kept consistent by the context service on every
// create, update and delete, and can be rebuilt from storage after a restart.
type Association struct {
	mu sync.RWMutex
	// byDataset maps dataset id -> set of context ids.
	byDataset map[uuid.UUID]map[uuid.UUID]struct{}
	// byContext maps context id -> dataset ids it referenced at last upsert,
	// so stale entries can be cleared when a context changes its datasets.
	byContext map[uuid.UUID][]uuid.UUID
}

// NewAssociation creates an empty index.
func NewAssociation() *Association {
	return &Association{
		byDataset: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		byContext: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Get returns the ids of contexts referencing datasetID, sorted for
// deterministic output. A dataset referenced by no context yields an empty
// slice.
func (a *Association) Get(datasetID uuid.UUID) []uuid.UUID {
	a.mu.RLock()
	defer a.mu.RUnlock()

	set := a.byDataset[datasetID]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Upsert records that contextID references exactly datasetIDs, replacing any
// previous associations the context held.
func (a *Association) Upsert(contextID uuid.UUID, datasetIDs []uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.removeLocked(contextID)
	for _, dsID := range datasetIDs {
		set, ok := a.byDataset[dsID]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			a.byDataset[dsID] = set
		}
		set[contextID] = struct{}{}
	}
	a.byContext[contextID] = append([]uuid.UUID(nil), datasetIDs...)
}

// Remove drops every association held by contextID.
func (a *Association) Remove(contextID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeLocked(contextID)
}

func (a *Association) removeLocked(contextID uuid.UUID) {
	for _, dsID := range a.byContext[contextID] {
		set := a.byDataset[dsID]
		delete(set, contextID)
		if len(set) == 0 {
			delete(a.byDataset, dsID)
		}
	}
	delete(a.byContext, contextID)
}

// Rebuild repopulates the index from stored contexts, discarding the current
// state. It is called on startup.
func (a *Association) Rebuild(ctx context.Context, repo repository.ContextRepository, ownerIDs []uuid.UUID) error {
	fresh := NewAssociation()
	for _, ownerID := range ownerIDs {
		stored, err := repo.List(ctx, ownerID)
		if err != nil {
			return fmt.Errorf("rebuild association index: %w", err)
		}
		for _, c := range stored {
			fresh.Upsert(c.ID, c.DatasetIDs())
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.byDataset = fresh.byDataset
	a.byContext = fresh.byContext
	return nil
}
