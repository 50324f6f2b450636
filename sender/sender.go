// Package sender implements outbound packet delivery (spec.md C9): picking
// the channel for a packet's next hop, recording pending-sent state for
// fragments awaiting acknowledgment, and reporting what was sent to the
// controller. Grounded on the teacher's transport/ send path (a sender
// keyed by destination, a non-blocking attempt, a fallback report on
// failure) and on original_source/src/client/packet_sender.rs.
package sender

import (
	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/internal/cos"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/session"
)

// Sender owns the map of directly attached neighbor channels and is the
// only component that writes to them. Like routing.Topology, it carries
// no interior locking: only the owning event loop goroutine ever calls
// its methods.
type Sender struct {
	self     proto.NodeID
	channels map[proto.NodeID]chan<- proto.Packet
	tracker  *session.Tracker
	events   chan<- event.Event
	stats    *event.Stats
	metrics  *event.Metrics
}

func New(self proto.NodeID, tracker *session.Tracker, events chan<- event.Event, stats *event.Stats, metrics *event.Metrics) *Sender {
	return &Sender{
		self:     self,
		channels: make(map[proto.NodeID]chan<- proto.Packet),
		tracker:  tracker,
		events:   events,
		stats:    stats,
		metrics:  metrics,
	}
}

// AddChannel installs or replaces the outbound channel to a neighbor.
func (s *Sender) AddChannel(id proto.NodeID, ch chan<- proto.Packet) {
	s.channels[id] = ch
}

// RemoveChannel excises a neighbor's outbound channel.
func (s *Sender) RemoveChannel(id proto.NodeID) {
	delete(s.channels, id)
}

// HasChannel reports whether id has an installed outbound channel.
func (s *Sender) HasChannel(id proto.NodeID) bool {
	_, ok := s.channels[id]
	return ok
}

// SendPacket sends pkt to pkt.RoutingHeader.CurrentHop(), recording
// pending-sent bookkeeping for KindMsgFragment bodies (spec.md §4.6 "Send
// path"). On failure the caller (retry controller or dispatcher) decides
// whether to fall back to ControllerShortcut.
func (s *Sender) SendPacket(pkt proto.Packet) error {
	return s.sendTo(pkt.RoutingHeader.CurrentHop(), pkt, true)
}

// SendTo sends pkt directly to the given next hop without consulting its
// own routing header, used by replies (Ack/Nack/FloodResponse) whose
// header is already reversed by the caller. Implements flood.Neighbors.
func (s *Sender) SendTo(to proto.NodeID, pkt proto.Packet) error {
	return s.sendTo(to, pkt, false)
}

func (s *Sender) sendTo(to proto.NodeID, pkt proto.Packet, trackFragment bool) error {
	ch, ok := s.channels[to]
	if !ok {
		return cos.NewErrNotFound("channel to node %d", to)
	}
	select {
	case ch <- pkt:
	default:
		return cos.NewErrNotFound("channel to node %d (full)", to)
	}

	if trackFragment && pkt.Kind == proto.KindMsgFragment {
		s.tracker.PutSent(pkt.SessionID, pkt.Fragment.FragmentIndex, pkt)
		s.stats.FragmentsSent++
		s.metrics.FragmentsSent.Inc()
	}
	s.emit(event.Event{PacketSent: &event.PacketSent{Header: pkt.Header()}})
	return nil
}

// Broadcast attempts to send pkt (a FloodRequest) to every installed
// neighbor channel, counting — rather than aborting on — any failure.
// Implements flood.Neighbors.
func (s *Sender) Broadcast(pkt proto.Packet) (failures int) {
	for id, ch := range s.channels {
		select {
		case ch <- pkt:
			s.emit(event.Event{PacketSent: &event.PacketSent{Header: pkt.Header()}})
		default:
			failures++
			nlog.Warningf("flood broadcast: channel to %d full or closed", id)
		}
	}
	return failures
}

// ControllerShortcut reports pkt as undeliverable by any installed
// channel, the last resort of spec.md §4.9. Implements flood.Neighbors.
// Each occurrence gets its own correlation id so the controller can match
// a shortcut report back to the log line that triggered it.
func (s *Sender) ControllerShortcut(pkt proto.Packet) {
	id := cos.GenCorrelationID()
	nlog.Warningf("shortcut %s: packet %s has no deliverable channel", id, pkt)
	s.emit(event.Event{ControllerShortcut: &event.ControllerShortcut{Packet: pkt, CorrelationID: id}})
}

func (s *Sender) emit(e event.Event) {
	select {
	case s.events <- e:
	default:
		nlog.Warningf("event channel full, dropping event")
	}
}
