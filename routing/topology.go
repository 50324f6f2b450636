package routing

import (
	"sync"

	"github.com/klynmesh/overlay-client/proto"
)

// Topology is the undirected weighted graph over node ids (spec.md §3).
// It follows the teacher's "engine owns all mutation, no interior
// locking" rule (core/meta/bck.go's single-owner bucket maps): only the
// event loop goroutine ever calls its mutating methods.
type Topology struct {
	adj map[proto.NodeID]map[proto.NodeID]float64
}

func NewTopology() *Topology {
	return &Topology{adj: make(map[proto.NodeID]map[proto.NodeID]float64)}
}

func (t *Topology) ensure(n proto.NodeID) {
	if _, ok := t.adj[n]; !ok {
		t.adj[n] = make(map[proto.NodeID]float64)
	}
}

// AddEdge inserts the undirected edge {u,v} with the given weight, or
// overwrites it if already present. Used by the flood engine, which
// deliberately resets learned weights to BaseWeight on rediscovery
// (spec.md §4.5 "Absorb").
func (t *Topology) AddEdge(u, v proto.NodeID, weight float64) {
	t.ensure(u)
	t.ensure(v)
	t.adj[u][v] = weight
	t.adj[v][u] = weight
}

// UpdateEdge sets the weight of an existing (or not-yet-existing) edge;
// semantically identical to AddEdge, kept distinct because C1 and C5 call
// this operation for different reasons (spec.md §4.2).
func (t *Topology) UpdateEdge(u, v proto.NodeID, weight float64) {
	t.AddEdge(u, v, weight)
}

// RemoveNode deletes n and every edge incident to it.
func (t *Topology) RemoveNode(n proto.NodeID) {
	for neighbor := range t.adj[n] {
		delete(t.adj[neighbor], n)
	}
	delete(t.adj, n)
}

// Neighbors returns the current neighbor set of n, empty if n is unknown.
func (t *Topology) Neighbors(n proto.NodeID) []proto.NodeID {
	out := make([]proto.NodeID, 0, len(t.adj[n]))
	for neighbor := range t.adj[n] {
		out = append(out, neighbor)
	}
	return out
}

// EdgeWeight returns the weight of {u,v} and whether it exists.
func (t *Topology) EdgeWeight(u, v proto.NodeID) (float64, bool) {
	w, ok := t.adj[u][v]
	return w, ok
}

// HasEdge reports whether {u,v} is currently in the graph.
func (t *Topology) HasEdge(u, v proto.NodeID) bool {
	_, ok := t.adj[u][v]
	return ok
}

// KnownKinds is the NodeId -> NodeKind map shared read/write with the UI
// collaborator under a single lock (spec.md §3 "Known-kinds map",
// §5 "the ONLY cross-task shared state"). The event loop is the sole
// writer; the UI goroutine only reads.
type KnownKinds struct {
	mu    sync.Mutex
	kinds map[proto.NodeID]proto.NodeKind
}

func NewKnownKinds() *KnownKinds {
	return &KnownKinds{kinds: make(map[proto.NodeID]proto.NodeKind)}
}

// Set installs or overwrites a single node's kind — "write-locked only
// for single-statement updates" per spec.md §5.
func (k *KnownKinds) Set(id proto.NodeID, kind proto.NodeKind) {
	k.mu.Lock()
	k.kinds[id] = kind
	k.mu.Unlock()
}

// Get returns the kind of id and whether it is known.
func (k *KnownKinds) Get(id proto.NodeID) (proto.NodeKind, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	kind, ok := k.kinds[id]
	return kind, ok
}

// Delete removes id, used when a drone is excised after ErrorInRouting.
func (k *KnownKinds) Delete(id proto.NodeID) {
	k.mu.Lock()
	delete(k.kinds, id)
	k.mu.Unlock()
}

// Snapshot copies the current map for read-only consumers (e.g. the UI
// bridge rendering a topology view).
func (k *KnownKinds) Snapshot() map[proto.NodeID]proto.NodeKind {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make(map[proto.NodeID]proto.NodeKind, len(k.kinds))
	for id, kind := range k.kinds {
		out[id] = kind
	}
	return out
}
