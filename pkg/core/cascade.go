package core

import (
	"context"
	"math"
)

const maxCascadeDepth = math.MaxInt32

// cascadeTargets walks outgoing relationships breadth-first from root and
// returns the reachable ids, excluding root, in discovery order. Only nodes
// at depth < maxDepth are expanded.
func (s *SQLiteStore) cascadeTargets(ctx context.Context, root string, maxDepth int) ([]string, error) {
	type item struct {
		id    string
		depth int
	}

	visited := map[string]bool{root: true}
	queue := []item{{id: root}}
	var out []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		hops, err := s.neighbors(ctx, cur.id, "", false)
		if err != nil {
			return nil, err
		}
		for _, h := range hops {
			if visited[h.id] {
				continue
			}
			visited[h.id] = true
			out = append(out, h.id)
			queue = append(queue, item{id: h.id, depth: cur.depth + 1})
		}
	}
	return out, nil
}
