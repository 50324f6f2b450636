package engine

import (
	"time"

	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/fragment"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/routing"
)

// sendMessage implements the outbound send path shared by UI-originated
// traffic and the SendRandomMessage/SendText commands: find a route,
// fragment the message, start session metadata, and hand every fragment
// to the sender. Grounded on
// original_source/src/client/packet_sender.rs's send_message.
func (c *Client) sendMessage(dest proto.NodeID, message proto.HostMessage) {
	path, found := routing.FindPath(c.self, dest, c.topo, c.kinds)
	if !found {
		nlog.Infof("client %d: no route to %d", c.self, dest)
		c.sendingError(message, "Destination unreachable! Retry in a few seconds")
		return
	}

	c.sessionIDCounter++
	sessionID := c.sessionIDCounter

	fragments, err := fragment.Disassemble(message)
	if err != nil {
		nlog.Errorf("client %d: failed to disassemble message for session %d: %v", c.self, sessionID, err)
		return
	}

	c.tracker.StartMeta(sessionID, dest, message, time.Now())
	c.stats.MessagesSent++
	c.metrics.MessagesSent.Inc()

	for i := range fragments {
		pkt := proto.Packet{
			Kind:          proto.KindMsgFragment,
			SessionID:     sessionID,
			RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: path},
			Fragment:      &fragments[i],
		}
		if err := c.sender.SendPacket(pkt); err != nil {
			nlog.Warningf("client %d: failed to send fragment %d of session %d to %d: %v",
				c.self, fragments[i].FragmentIndex, sessionID, path[1], err)
			c.sendingError(message, "Failed to send message! Retry in a few seconds")
			c.sender.ControllerShortcut(pkt)
		}
	}

	nlog.Infof("client %d: sent message to %d via route %v", c.self, dest, path)
}

// sendingError surfaces a locally detected send failure to the UI
// collaborator as a SendingError, the fixed out-of-band envelope of
// spec.md §6. Messages that do not carry a client-to-server body (none
// exist on this client's outbound path) are silently skipped rather than
// forcing a panic on the type assertion, mirroring the teacher's
// defensive pattern-match guards.
func (c *Client) sendingError(message proto.HostMessage, reason string) {
	if message.FromClient == nil {
		return
	}
	out := event.UIOut{
		From: c.self,
		Message: proto.ServerToClientMessage{
			SendingError: &proto.SendingError{
				Error:   reason,
				Message: *message.FromClient,
			},
		},
	}
	select {
	case c.uiOut <- out:
	default:
		nlog.Warningf("client %d: unable to send error message to UI", c.self)
	}
}
