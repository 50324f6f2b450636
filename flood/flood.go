// Package flood implements topology discovery (spec.md C5): originating
// and answering flood requests, absorbing flood responses into the
// topology store, and deduplicating floods this client has already seen.
package flood

import (
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/routing"
)

// Neighbors abstracts the set of directly-attached outbound channels the
// flood engine broadcasts onto; sender.Sender implements it.
type Neighbors interface {
	Broadcast(pkt proto.Packet) (failures int)
	SendTo(to proto.NodeID, pkt proto.Packet) error
	ControllerShortcut(pkt proto.Packet)
}

// seenCapacity bounds the cuckoo filter's backing table. Entries are
// never removed; once the table is full, further (initiator, flood_id)
// pairs are no longer recorded.
const seenCapacity = 4096

// Engine originates and answers FloodRequest/FloodResponse traffic and
// folds the result into a Topology and KnownKinds, ported from
// original_source/src/client/{routing/networ_discovery.rs,
// handlers/flooding_handler.rs}.
//
// The cuckoo filter of recently seen (initiator, flood_id) pairs is a
// supplement beyond the original source (SPEC_FULL.md §4): when another
// node's flood reaches this client over several incoming edges, the
// client answers it only once. Floods this client originated are not
// deduplicated.
type Engine struct {
	self  proto.NodeID
	topo  *routing.Topology
	kinds *routing.KnownKinds
	seen  *cuckoo.Filter

	floodIDCounter uint64
}

func NewEngine(self proto.NodeID, topo *routing.Topology, kinds *routing.KnownKinds) *Engine {
	return &Engine{
		self:           self,
		topo:           topo,
		kinds:          kinds,
		seen:           cuckoo.NewFilter(seenCapacity),
		floodIDCounter: 73, // arbitrary, aids log disambiguation (spec.md §3)
	}
}

func seenKey(initiator proto.NodeID, floodID uint64) []byte {
	b := make([]byte, 9)
	b[0] = byte(initiator)
	for i := 0; i < 8; i++ {
		b[1+i] = byte(floodID >> (8 * i))
	}
	return b
}

// Originate broadcasts a fresh FloodRequest to every installed neighbor
// channel. Send failures are logged and do not abort the broadcast
// (spec.md §4.5 "Originate").
func (e *Engine) Originate(neighbors Neighbors) {
	e.floodIDCounter++
	floodID := e.floodIDCounter

	e.seen.InsertUnique(seenKey(e.self, floodID))

	pkt := proto.Packet{
		Kind: proto.KindFloodRequest,
		FloodRequest: &proto.FloodRequest{
			FloodID:     floodID,
			InitiatorID: e.self,
			PathTrace:   []proto.PathTraceEntry{{Node: e.self, Kind: proto.KindClient}},
		},
	}
	if failures := neighbors.Broadcast(pkt); failures > 0 {
		nlog.Warningf("flood %d: %d neighbor(s) failed to receive the broadcast", floodID, failures)
	}
}

// HandleRequest answers an inbound FloodRequest, appending self to its
// path trace and either routing a FloodResponse back to the initiator or,
// if this client is the initiator, absorbing the response locally
// without emitting a packet (spec.md §4.5 "Answer").
func (e *Engine) HandleRequest(req *proto.FloodRequest, sessionID uint64, neighbors Neighbors) {
	// Only floods from other initiators are checked against the filter;
	// every returning copy of this client's own flood is absorbed, even
	// though Originate recorded its key.
	if req.InitiatorID != e.self {
		key := seenKey(req.InitiatorID, req.FloodID)
		if e.seen.Lookup(key) {
			return
		}
		e.seen.InsertUnique(key)
	}

	trace := make([]proto.PathTraceEntry, len(req.PathTrace), len(req.PathTrace)+1)
	copy(trace, req.PathTrace)
	trace = append(trace, proto.PathTraceEntry{Node: e.self, Kind: proto.KindClient})

	resp := &proto.FloodResponse{FloodID: req.FloodID, PathTrace: trace}

	if req.InitiatorID == e.self {
		e.HandleResponse(resp)
		return
	}

	hops := make([]proto.NodeID, len(trace))
	for i, entry := range trace {
		hops[len(trace)-1-i] = entry.Node
	}
	pkt := proto.Packet{
		Kind:          proto.KindFloodResponse,
		SessionID:     sessionID,
		RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: hops},
		FloodResponse: resp,
	}
	if err := neighbors.SendTo(pkt.RoutingHeader.CurrentHop(), pkt); err != nil {
		nlog.Warningf("flood %d: cannot reach initiator %d directly: %v", req.FloodID, req.InitiatorID, err)
		neighbors.ControllerShortcut(pkt)
	}
}

// HandleResponse absorbs a FloodResponse's path trace into the topology
// and known-kinds map, resetting every traversed edge to BaseWeight so
// the reliability estimator can re-converge from live traffic (spec.md
// §4.5 "Absorb").
func (e *Engine) HandleResponse(resp *proto.FloodResponse) {
	for i := 0; i+1 < len(resp.PathTrace); i++ {
		from, to := resp.PathTrace[i], resp.PathTrace[i+1]
		e.kinds.Set(from.Node, from.Kind)
		e.kinds.Set(to.Node, to.Kind)
		if from.Node != to.Node {
			e.topo.AddEdge(from.Node, to.Node, routing.BaseWeight)
		}
	}
}
