package index

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
)

func TestAssociation_UpsertGetRemove(t *testing.T) {
	a := NewAssociation()
	ctxID := uuid.New()
	ds1, ds2 := uuid.New(), uuid.New()

	a.Upsert(ctxID, []uuid.UUID{ds1, ds2})
	if got := a.Get(ds1); len(got) != 1 || got[0] != ctxID {
		t.Fatalf("expected context for ds1, got %v", got)
	}

	// Re-upsert with a different dataset set clears the stale association.
	a.Upsert(ctxID, []uuid.UUID{ds2})
	if got := a.Get(ds1); len(got) != 0 {
		t.Fatalf("stale association survived upsert: %v", got)
	}
	if got := a.Get(ds2); len(got) != 1 {
		t.Fatalf("expected ds2 association to survive, got %v", got)
	}

	a.Remove(ctxID)
	if got := a.Get(ds2); len(got) != 0 {
		t.Fatalf("remove left associations behind: %v", got)
	}
}

func TestAssociation_GetUnknownDataset(t *testing.T) {
	a := NewAssociation()
	if got := a.Get(uuid.New()); got == nil || len(got) != 0 {
		t.Fatalf("unknown dataset yields empty non-nil slice, got %v", got)
	}
}

// TestAssociation_MatchesLinearScan checks the index against brute force over
// randomized context populations of varying size.
func TestAssociation_MatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for _, contextCount := range []int{1, 10, 250} {
		a := NewAssociation()

		datasetPool := make([]uuid.UUID, 40)
		for i := range datasetPool {
			datasetPool[i] = uuid.New()
		}

		truth := make(map[uuid.UUID][]uuid.UUID) // context -> datasets
		for i := 0; i < contextCount; i++ {
			ctxID := uuid.New()
			n := rng.Intn(5)
			seen := map[uuid.UUID]bool{}
			var refs []uuid.UUID
			for j := 0; j < n; j++ {
				ds := datasetPool[rng.Intn(len(datasetPool))]
				if !seen[ds] {
					seen[ds] = true
					refs = append(refs, ds)
				}
			}
			truth[ctxID] = refs
			a.Upsert(ctxID, refs)
		}

		for _, ds := range datasetPool {
			var want []string
			for ctxID, refs := range truth {
				for _, ref := range refs {
					if ref == ds {
						want = append(want, ctxID.String())
						break
					}
				}
			}
			got := a.Get(ds)
			if len(got) != len(want) {
				t.Fatalf("contexts=%d dataset=%s: index returned %d, scan found %d", contextCount, ds, len(got), len(want))
			}
			wantSet := map[string]bool{}
			for _, id := range want {
				wantSet[id] = true
			}
			for _, id := range got {
				if !wantSet[id.String()] {
					t.Fatalf("index returned %s which the scan did not find", id)
				}
			}
		}
	}
}

func TestAssociation_ConcurrentAccess(t *testing.T) {
	a := NewAssociation()
	datasetID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Upsert(uuid.New(), []uuid.UUID{datasetID})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Get(datasetID)
			}
		}()
	}
	wg.Wait()

	if got := a.Get(datasetID); len(got) != 800 {
		t.Fatalf("expected 800 contexts after concurrent upserts, got %d", len(got))
	}
}

type rebuildRepo struct {
	contexts []domain.Context
}

func (r *rebuildRepo) Create(_ context.Context, c domain.Context) (domain.Context, error) {
	return c, nil
}
func (r *rebuildRepo) GetByID(context.Context, uuid.UUID) (domain.Context, error) {
	return domain.Context{}, errors.New("not implemented")
}
func (r *rebuildRepo) GetByName(context.Context, uuid.UUID, string) (domain.Context, error) {
	return domain.Context{}, errors.New("not implemented")
}
func (r *rebuildRepo) GetBySourceHash(context.Context, uuid.UUID, string) (domain.Context, error) {
	return domain.Context{}, errors.New("not implemented")
}
func (r *rebuildRepo) List(_ context.Context, ownerID uuid.UUID) ([]domain.Context, error) {
	var out []domain.Context
	for _, c := range r.contexts {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (r *rebuildRepo) ListByDataset(context.Context, uuid.UUID) ([]domain.Context, error) {
	return nil, errors.New("not implemented")
}
func (r *rebuildRepo) Update(_ context.Context, c domain.Context) (domain.Context, error) {
	return c, nil
}
func (r *rebuildRepo) Delete(context.Context, uuid.UUID) error { return nil }

func TestAssociation_Rebuild(t *testing.T) {
	ownerID := uuid.New()
	datasetID := uuid.New()

	c := domain.NewContext(ownerID, "src")
	c.Datasets = []domain.DatasetRef{{Alias: "main", DatasetID: datasetID}}
	repo := &rebuildRepo{contexts: []domain.Context{c}}

	a := NewAssociation()
	a.Upsert(uuid.New(), []uuid.UUID{uuid.New()}) // stale state to discard

	if err := a.Rebuild(context.Background(), repo, []uuid.UUID{ownerID}); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	got := a.Get(datasetID)
	if len(got) != 1 || got[0] != c.ID {
		t.Fatalf("rebuild should index stored contexts, got %v", got)
	}
}
