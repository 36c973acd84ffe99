// Package relgraph builds the undirected relationship graph of a context and
// resolves deterministic join orders over it.
package relgraph

import (
	"sort"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
)

type edge struct {
	rel      domain.Relationship
	relIndex int
	to       string
	reversed bool
}

// Resolver answers join-order and reachability questions for one context's
// relationship set. Relationships are traversable in both directions; edge
// order follows declaration order, which is the documented tie-break when
// multiple relationships could connect the same pair.
type Resolver struct {
	relationships []domain.Relationship
	adjacency     map[string][]edge
}

// NewResolver builds the adjacency structure once per context.
func NewResolver(relationships []domain.Relationship) *Resolver {
	adjacency := make(map[string][]edge)
	for i, rel := range relationships {
		adjacency[rel.LeftAlias] = append(adjacency[rel.LeftAlias], edge{rel: rel, relIndex: i, to: rel.RightAlias})
		if rel.RightAlias != rel.LeftAlias {
			adjacency[rel.RightAlias] = append(adjacency[rel.RightAlias], edge{rel: rel, relIndex: i, to: rel.LeftAlias, reversed: true})
		}
	}
	for alias := range adjacency {
		edges := adjacency[alias]
		sort.SliceStable(edges, func(a, b int) bool { return edges[a].relIndex < edges[b].relIndex })
	}
	return &Resolver{relationships: relationships, adjacency: adjacency}
}

// JoinOrder computes the sequence of joins needed to bring every target alias
// into one frame. The first target anchors the fold; each remaining target is
// connected through the breadth-first shortest path from the already-joined
// set, scanning edges in declaration order so repeated resolutions always
// produce the same plan. Returns UnreachableDatasetError when a target has no
// path to the joined set.
func (r *Resolver) JoinOrder(targets []string) (string, []frame.JoinStep, error) {
	if len(targets) == 0 {
		return "", nil, nil
	}

	start := targets[0]
	joined := map[string]bool{start: true}
	usedRels := map[string]bool{}
	var steps []frame.JoinStep

	for _, target := range targets[1:] {
		if joined[target] {
			continue
		}
		path := r.shortestPath(joined, target)
		if path == nil {
			return "", nil, &domain.UnreachableDatasetError{Alias: target}
		}
		for _, e := range path {
			if usedRels[e.rel.ID] {
				joined[e.to] = true
				continue
			}
			usedRels[e.rel.ID] = true
			joined[e.to] = true
			steps = append(steps, frame.JoinStep{Relationship: e.rel, Reversed: e.reversed})
		}
	}

	return start, steps, nil
}

// shortestPath runs BFS from the whole joined set toward target. Frontier
// aliases are visited in a stable order (insertion order of the joined set is
// not stable, so they are sorted) and edges in declaration order.
func (r *Resolver) shortestPath(joined map[string]bool, target string) []edge {
	seeds := make([]string, 0, len(joined))
	for alias := range joined {
		seeds = append(seeds, alias)
	}
	sort.Strings(seeds)

	type node struct {
		alias string
		path  []edge
	}
	queue := make([]node, 0, len(seeds))
	visited := make(map[string]bool, len(seeds))
	for _, alias := range seeds {
		queue = append(queue, node{alias: alias})
		visited[alias] = true
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range r.adjacency[current.alias] {
			if visited[e.to] {
				continue
			}
			path := append(append([]edge{}, current.path...), e)
			if e.to == target {
				return path
			}
			visited[e.to] = true
			queue = append(queue, node{alias: e.to, path: path})
		}
	}
	return nil
}

// Reachable returns every alias connected to start, start included.
func (r *Resolver) Reachable(start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range r.adjacency[current] {
			if !visited[e.to] {
				visited[e.to] = true
				queue = append(queue, e.to)
			}
		}
	}
	return visited
}

// FindCycle looks for a true cycle: three or more aliases connected in a ring
// through distinct relationships. Self-joins and parallel relationships
// between the same alias pair are not cycles (parallel edges are a tie-break
// concern, not an ambiguity). Returns the aliases along the cycle, or nil.
func FindCycle(relationships []domain.Relationship) []string {
	// Collapse parallel edges and drop self-loops first.
	type pair struct{ a, b string }
	seen := map[pair]bool{}
	adjacency := map[string][]string{}
	var order []string
	addNode := func(alias string) {
		if _, ok := adjacency[alias]; !ok {
			adjacency[alias] = nil
			order = append(order, alias)
		}
	}
	for _, rel := range relationships {
		addNode(rel.LeftAlias)
		addNode(rel.RightAlias)
		if rel.LeftAlias == rel.RightAlias {
			continue
		}
		key := pair{rel.LeftAlias, rel.RightAlias}
		if rel.LeftAlias > rel.RightAlias {
			key = pair{rel.RightAlias, rel.LeftAlias}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		adjacency[rel.LeftAlias] = append(adjacency[rel.LeftAlias], rel.RightAlias)
		adjacency[rel.RightAlias] = append(adjacency[rel.RightAlias], rel.LeftAlias)
	}

	parent := map[string]string{}
	visited := map[string]bool{}

	var dfs func(alias, from string) []string
	dfs = func(alias, from string) []string {
		visited[alias] = true
		for _, next := range adjacency[alias] {
			if next == from {
				continue
			}
			if visited[next] {
				// Walk parents back to the repeated alias.
				cycle := []string{next, alias}
				for at := alias; at != next; {
					at = parent[at]
					if at == "" {
						break
					}
					if at != next {
						cycle = append(cycle, at)
					}
				}
				return cycle
			}
			parent[next] = alias
			if cycle := dfs(next, alias); cycle != nil {
				return cycle
			}
		}
		return nil
	}

	for _, alias := range order {
		if !visited[alias] {
			if cycle := dfs(alias, ""); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
