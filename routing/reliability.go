package routing

import "github.com/klynmesh/overlay-client/proto"

type edgeKey struct {
	from, to proto.NodeID
}

// Reliability owns the per-directed-edge EdgeStats records and applies
// their derived weight onto a Topology, mirroring the teacher's
// get_or_create_edge_stats / register_successful_transmission pair
// (original_source/src/client/routing/edge_stats.rs).
type Reliability struct {
	stats map[edgeKey]*EdgeStats
}

func NewReliability() *Reliability {
	return &Reliability{stats: make(map[edgeKey]*EdgeStats)}
}

func (r *Reliability) getOrCreate(from, to proto.NodeID) *EdgeStats {
	k := edgeKey{from, to}
	e, ok := r.stats[k]
	if !ok {
		e = NewEdgeStats(0.2)
		r.stats[k] = e
	}
	return e
}

// Stats returns the existing record for (from, to), if any, without
// creating one — used by the retry controller to decide whether to
// reroute without mutating state as a side effect.
func (r *Reliability) Stats(from, to proto.NodeID) (*EdgeStats, bool) {
	e, ok := r.stats[edgeKey{from, to}]
	return e, ok
}

// RegisterOutcome folds a single transmission outcome for the directed
// edge (from,to) and writes the resulting weight into topo.
func (r *Reliability) RegisterOutcome(topo *Topology, from, to proto.NodeID, dropped bool) {
	e := r.getOrCreate(from, to)
	e.Update(dropped)
	topo.UpdateEdge(from, to, e.Weight())
}

// RegisterSuccessfulTransmission updates every consecutive hop pair of
// path as a success, the teacher's register_successful_transmission — used
// both on ACK (spec.md §4.8 "ACK path") and on the untouched remainder of
// a NACK path.
func (r *Reliability) RegisterSuccessfulTransmission(topo *Topology, path []proto.NodeID) {
	for i := 0; i+1 < len(path); i++ {
		r.RegisterOutcome(topo, path[i], path[i+1], false)
	}
}

// Purge drops every reliability record with either end equal to n, used
// when n is excised from the topology (RemoveSender, ErrorInRouting).
func (r *Reliability) Purge(n proto.NodeID) {
	for k := range r.stats {
		if k.from == n || k.to == n {
			delete(r.stats, k)
		}
	}
}
