package routing

import (
	"container/heap"
	"math"

	"github.com/klynmesh/overlay-client/proto"
)

// pathItem is one entry of the Dijkstra frontier, styled on the
// priority-queue item shape used throughout katalvlaran/lvlath's graph
// algorithms (graph/dijkstra.go) rather than the teacher's Rust
// BinaryHeap<(FloatKey, NodeId)> wrapper — container/heap already gives
// Go a stable min-heap via Less, so no reversed-comparison float wrapper
// is needed here.
type pathItem struct {
	node proto.NodeID
	dist float64
}

type pathQueue []pathItem

func (q pathQueue) Len() int            { return len(q) }
func (q pathQueue) Less(i, j int) bool  { return q[i].dist < q[j].dist }
func (q pathQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)         { *q = append(*q, x.(pathItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// traversable implements the kind-transition rule of spec.md §4.3: a
// client may only step into the drone fabric, drones may step to other
// drones or to a server, and nothing else is a legal hop.
func traversable(from, to proto.NodeKind) bool {
	switch {
	case from == proto.KindClient && to == proto.KindDrone:
		return true
	case from == proto.KindDrone && (to == proto.KindDrone || to == proto.KindServer):
		return true
	default:
		return false
	}
}

// FindPath runs Dijkstra from self over topo, honoring the kind-transition
// rule and known node kinds, and returns a path suitable for direct
// installation as routing_header.Hops (hop_index = 1). Returns (nil,
// false) if no path exists, or if dst is reachable but is not a server
// (spec.md §4.3: "returns Some(path) only if kind(dst) = Server").
func FindPath(self, dst proto.NodeID, topo *Topology, kinds *KnownKinds) ([]proto.NodeID, bool) {
	dist := map[proto.NodeID]float64{self: 0}
	prev := map[proto.NodeID]proto.NodeID{}
	visited := map[proto.NodeID]bool{}

	pq := &pathQueue{{node: self, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pathItem)
		if visited[cur.node] {
			continue
		}
		if cur.node == dst {
			kind, _ := kinds.Get(dst)
			if kind != proto.KindServer {
				return nil, false
			}
			return buildPath(prev, self, dst), true
		}
		visited[cur.node] = true

		curKind, _ := kinds.Get(cur.node)
		for _, neighbor := range topo.Neighbors(cur.node) {
			if visited[neighbor] {
				continue
			}
			neighborKind, _ := kinds.Get(neighbor)
			if !traversable(curKind, neighborKind) {
				continue
			}
			w, ok := topo.EdgeWeight(cur.node, neighbor)
			if !ok {
				w = math.Inf(1)
			}
			next := cur.dist + w
			if best, ok := dist[neighbor]; !ok || next < best {
				dist[neighbor] = next
				prev[neighbor] = cur.node
				heap.Push(pq, pathItem{node: neighbor, dist: next})
			}
		}
	}
	return nil, false
}

func buildPath(prev map[proto.NodeID]proto.NodeID, self, dst proto.NodeID) []proto.NodeID {
	path := []proto.NodeID{dst}
	cur := dst
	for cur != self {
		p, ok := prev[cur]
		if !ok {
			break
		}
		path = append(path, p)
		cur = p
	}
	// reverse in place
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
