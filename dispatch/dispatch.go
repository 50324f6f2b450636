// Package dispatch implements the packet dispatcher (spec.md C7): pattern
// matching an inbound packet's kind and routing it to the flood engine,
// the session tracker plus fragment codec, or the reliability/retry
// controller. Grounded on
// original_source/src/client/handlers/{packet_handler.rs,fragment_handler.rs}.
package dispatch

import (
	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/flood"
	"github.com/klynmesh/overlay-client/fragment"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/retry"
	"github.com/klynmesh/overlay-client/sender"
	"github.com/klynmesh/overlay-client/session"
)

// Dispatcher routes one inbound packet at a time, owned exclusively by
// the event loop goroutine.
type Dispatcher struct {
	self proto.NodeID
	fl   *flood.Engine
	tr   *session.Tracker
	rc   *retry.Controller
	snd  *sender.Sender

	events  chan<- event.Event
	uiOut   chan<- event.UIOut
	stats   *event.Stats
	metrics *event.Metrics
}

func New(self proto.NodeID, fl *flood.Engine, tr *session.Tracker, rc *retry.Controller, snd *sender.Sender,
	events chan<- event.Event, uiOut chan<- event.UIOut, stats *event.Stats, metrics *event.Metrics) *Dispatcher {
	return &Dispatcher{self: self, fl: fl, tr: tr, rc: rc, snd: snd, events: events, uiOut: uiOut, stats: stats, metrics: metrics}
}

// Dispatch pattern-matches pkt.Kind and handles it per spec.md §4.7.
func (d *Dispatcher) Dispatch(pkt proto.Packet) {
	switch pkt.Kind {
	case proto.KindFloodRequest:
		d.fl.HandleRequest(pkt.FloodRequest, pkt.SessionID, d.snd)
	case proto.KindFloodResponse:
		d.fl.HandleResponse(pkt.FloodResponse)
	case proto.KindMsgFragment:
		d.handleFragment(pkt)
	case proto.KindAck:
		d.rc.HandleAck(pkt.SessionID, pkt.Ack.FragmentIndex)
	case proto.KindNack:
		d.rc.HandleNack(pkt.SessionID, pkt.Nack.FragmentIndex, *pkt.Nack, pkt.RoutingHeader)
	default:
		nlog.Warningf("dispatch: unknown packet kind %v", pkt.Kind)
	}
}

func (d *Dispatcher) handleFragment(pkt proto.Packet) {
	d.stats.FragmentsReceived++
	d.metrics.FragmentsReceived.Inc()

	sessionID := pkt.SessionID
	frag := *pkt.Fragment
	source := pkt.RoutingHeader.Hops[0]

	if d.tr.PutFragment(sessionID, frag) {
		fragments, _ := d.tr.TakeReceived(sessionID)
		msg, err := fragment.Assemble(fragments)
		if err != nil {
			nlog.Warningf("session %d: reassembly failed: %v", sessionID, err)
		} else if msg.FromServer != nil {
			nlog.Infof("session %d: full message received from %d", sessionID, source)
			d.stats.MessagesReceived++
			d.metrics.MessagesReceived.Inc()
			d.emit(event.Event{MessageReceived: &event.MessageReceived{From: source, Message: msg}})
			d.emitUI(event.UIOut{From: source, Message: *msg.FromServer})
		} else {
			nlog.Warningf("session %d: dropping client-to-server body arriving at a client", sessionID)
		}
	}

	ackPkt := proto.Packet{
		Kind:          proto.KindAck,
		SessionID:     sessionID,
		RoutingHeader: pkt.RoutingHeader.Reversed(),
		Ack:           &proto.Ack{FragmentIndex: frag.FragmentIndex},
	}
	if err := d.snd.SendTo(ackPkt.RoutingHeader.CurrentHop(), ackPkt); err != nil {
		nlog.Warningf("session %d: failed to send ack for fragment %d: %v", sessionID, frag.FragmentIndex, err)
		d.snd.ControllerShortcut(ackPkt)
	}
}

func (d *Dispatcher) emit(e event.Event) {
	select {
	case d.events <- e:
	default:
		nlog.Warningf("event channel full, dropping event")
	}
}

func (d *Dispatcher) emitUI(m event.UIOut) {
	select {
	case d.uiOut <- m:
	default:
		nlog.Warningf("ui channel full, dropping message")
	}
}
