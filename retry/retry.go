// Package retry implements the reliability/retry controller (spec.md C8):
// folding ACK/NACK outcomes into the edge reliability estimator, deciding
// when to reroute, and resending via the outbound sender. Grounded on
// original_source/src/client/handlers/{ack_handler.rs,nack_handler.rs},
// generalized to the kind-aware path finder of routing.FindPath.
package retry

import (
	"time"

	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/flood"
	"github.com/klynmesh/overlay-client/internal/cos"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/routing"
	"github.com/klynmesh/overlay-client/sender"
	"github.com/klynmesh/overlay-client/session"
)

// rerouteThresholdPDR is the drop-rate above which a Dropped NACK
// triggers a rerouting attempt, spec.md §4.8.
const rerouteThresholdPDR = 0.3

// rerouteThresholdNacks is the consecutive-NACK count that independently
// triggers a rerouting attempt even below rerouteThresholdPDR.
const rerouteThresholdNacks = 3

// Controller processes ACK/NACK packets against the shared topology,
// reliability, session, and flood state, owned exclusively by the event
// loop goroutine like every other piece of mutable state (spec.md §5).
type Controller struct {
	self  proto.NodeID
	topo  *routing.Topology
	kinds *routing.KnownKinds
	rel   *routing.Reliability
	tr    *session.Tracker
	snd   *sender.Sender
	fl    *flood.Engine

	events  chan<- event.Event
	stats   *event.Stats
	metrics *event.Metrics
}

func New(self proto.NodeID, topo *routing.Topology, kinds *routing.KnownKinds, rel *routing.Reliability,
	tr *session.Tracker, snd *sender.Sender, fl *flood.Engine,
	events chan<- event.Event, stats *event.Stats, metrics *event.Metrics) *Controller {
	return &Controller{
		self: self, topo: topo, kinds: kinds, rel: rel, tr: tr, snd: snd, fl: fl,
		events: events, stats: stats, metrics: metrics,
	}
}

// HandleAck implements the ACK path of spec.md §4.8.
func (c *Controller) HandleAck(sessionID, fragmentIndex uint64) {
	c.stats.AcksReceived++
	c.metrics.AcksReceived.Inc()

	pkt, ok := c.tr.TakeSent(sessionID, fragmentIndex)
	if !ok {
		nlog.Warningf("spurious ack: session %d fragment %d", sessionID, fragmentIndex)
		return
	}
	c.rel.RegisterSuccessfulTransmission(c.topo, pkt.RoutingHeader.Hops)

	if c.tr.AnyPendingInSession(sessionID) {
		return
	}

	meta, ok := c.tr.GetMeta(sessionID)
	if !ok {
		nlog.Warningf("session %d: fully acked but metadata already gone", sessionID)
		return
	}
	latency := time.Since(meta.Start)
	c.tr.Complete(sessionID)

	nlog.Infof("session %d: fully acked, message sent to %d in %s", sessionID, meta.Destination, latency)
	c.emit(event.Event{MessageSent: &event.MessageSent{
		Destination: meta.Destination,
		Message:     meta.Message,
		Latency:     latency,
	}})
}

// HandleNack implements the NACK path of spec.md §4.8.
func (c *Controller) HandleNack(sessionID, fragmentIndex uint64, nack proto.Nack, nackHeader proto.RoutingHeader) {
	c.stats.NacksReceived++
	c.metrics.NacksReceived.Inc()

	pkt, ok := c.tr.PeekSent(sessionID, fragmentIndex)
	if !ok {
		nlog.Warningf("spurious nack: session %d fragment %d", sessionID, fragmentIndex)
		return
	}

	switch nack.Kind {
	case proto.NackDropped:
		c.handleDropped(sessionID, fragmentIndex, pkt, nackHeader)
	case proto.NackErrorInRouting:
		c.handleErrorInRouting(sessionID, fragmentIndex, pkt, nack.DroneID)
	case proto.NackDestinationIsDrone, proto.NackUnexpectedRecipient:
		nlog.Warningf("session %d fragment %d: structural nack %v, waiting for next discovery",
			sessionID, fragmentIndex, nack.Kind)
	}
}

// handleDropped penalizes the edge the NACK names — hops[0] to hops[1] of
// the NACK's own (reversed) routing header, exactly as spec.md §4.8 and
// §9 Open Question 4 describe, including the direction asymmetry the
// spec documents but does not ask to be corrected — then treats the rest
// of the NACK's path, hops[1:], as a successful transmission.
func (c *Controller) handleDropped(sessionID, fragmentIndex uint64, pkt proto.Packet, nackHeader proto.RoutingHeader) {
	if len(nackHeader.Hops) < 2 {
		c.resend(sessionID, fragmentIndex, pkt)
		return
	}
	from, to := nackHeader.Hops[0], nackHeader.Hops[1]
	c.rel.RegisterOutcome(c.topo, from, to, true)
	c.rel.RegisterSuccessfulTransmission(c.topo, nackHeader.Hops[1:])

	c.maybeReroute(sessionID, fragmentIndex, from, to, &pkt)
	c.resend(sessionID, fragmentIndex, pkt)
}

// handleErrorInRouting excises droneID from the topology and known-kinds
// map, purges its reliability records, then forces a reroute (spec.md
// §4.8 "ErrorInRouting").
func (c *Controller) handleErrorInRouting(sessionID, fragmentIndex uint64, pkt proto.Packet, droneID proto.NodeID) {
	c.topo.RemoveNode(droneID)
	c.kinds.Delete(droneID)
	c.rel.Purge(droneID)

	meta, ok := c.tr.GetMeta(sessionID)
	if !ok {
		nlog.Warningf("session %d: error-in-routing nack but metadata already gone", sessionID)
		return
	}
	if path, found := routing.FindPath(c.self, meta.Destination, c.topo, c.kinds); found {
		pkt.RoutingHeader = proto.RoutingHeader{HopIndex: 1, Hops: path}
	} else {
		nlog.Warningf("session %d: no route to %d after excising drone %d", sessionID, meta.Destination, droneID)
	}
	c.resend(sessionID, fragmentIndex, pkt)

	// The excised drone may still sit on other clients' routes; force a
	// fresh flood so this client's own view heals promptly rather than
	// waiting for the periodic timer.
	c.fl.Originate(c.snd)
	c.stats.FloodsOriginated++
	c.metrics.FloodsOriginated.Inc()
}

// maybeReroute recomputes the path to the packet's destination if the
// dropping edge's own stats — the same edge (from, to) that handleDropped
// just registered the outcome against — cross either reroute threshold,
// replacing hops and resetting hop_index when a different path is found.
func (c *Controller) maybeReroute(sessionID, fragmentIndex uint64, from, to proto.NodeID, pkt *proto.Packet) {
	stats, ok := c.rel.Stats(from, to)
	if !ok {
		return
	}
	if stats.CurrentPDR() <= rerouteThresholdPDR && stats.ConsecutiveNacks() < rerouteThresholdNacks {
		return
	}

	meta, ok := c.tr.GetMeta(sessionID)
	if !ok {
		return
	}
	newPath, found := routing.FindPath(c.self, meta.Destination, c.topo, c.kinds)
	if !found || pathsEqual(newPath, pkt.RoutingHeader.Hops) {
		return
	}
	nlog.Infof("session %d fragment %d: rerouting %v -> %v", sessionID, fragmentIndex, pkt.RoutingHeader.Hops, newPath)
	pkt.RoutingHeader = proto.RoutingHeader{HopIndex: 1, Hops: newPath}
}

// resend re-sends pkt without disturbing its pending-sent entry, which
// remains attributable to further ACKs/NACKs (spec.md §4.8). A missing or
// full next-hop channel is handed to the controller as a shortcut; any
// other failure is logged and left for the next ACK/NACK or reroute to
// resolve.
func (c *Controller) resend(sessionID, fragmentIndex uint64, pkt proto.Packet) {
	err := c.snd.SendPacket(pkt)
	if err == nil {
		return
	}
	nlog.Warningf("session %d fragment %d: resend failed: %v", sessionID, fragmentIndex, err)
	if cos.IsErrNotFound(err) {
		c.snd.ControllerShortcut(pkt)
	}
}

func (c *Controller) emit(e event.Event) {
	select {
	case c.events <- e:
	default:
		nlog.Warningf("event channel full, dropping event")
	}
}

func pathsEqual(a, b []proto.NodeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
