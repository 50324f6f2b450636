package engine

import (
	"fmt"

	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
)

// handleCommand dispatches one simulation-controller command, ported from
// original_source/src/client/commands.rs's handle_command.
func (c *Client) handleCommand(cmd event.Command) {
	switch {
	case cmd.SendText != nil:
		c.sendMessage(cmd.SendText.Destination, cmd.SendText.Message)
	case cmd.SendRandomMessage != nil:
		c.sendRandomMessage(cmd.SendRandomMessage.Destination)
	case cmd.DiscoverNetwork != nil:
		c.flood.Originate(c.sender)
		c.stats.FloodsOriginated++
		c.metrics.FloodsOriginated.Inc()
	case cmd.StatsRequest != nil:
		c.replyStats()
	case cmd.AddSender != nil:
		c.sender.AddChannel(cmd.AddSender.ID, cmd.AddSender.Out)
		c.flood.Originate(c.sender)
		c.stats.FloodsOriginated++
		c.metrics.FloodsOriginated.Inc()
	case cmd.RemoveSender != nil:
		id := cmd.RemoveSender.ID
		c.sender.RemoveChannel(id)
		c.topo.RemoveNode(id)
		c.kinds.Delete(id)
		c.rel.Purge(id)
		c.flood.Originate(c.sender)
		c.stats.FloodsOriginated++
		c.metrics.FloodsOriginated.Inc()
	default:
		nlog.Warningf("client %d: empty command received", c.self)
	}
}

func (c *Client) replyStats() {
	select {
	case c.events <- event.Event{StatsResponse: &event.StatsResponse{Stats: c.stats}}:
		nlog.Infof("client %d: sent stats response to controller", c.self)
	default:
		nlog.Warningf("client %d: unable to send stats response to controller", c.self)
	}
}

// sendRandomMessage synthesizes a small RegisterUser request and sends it
// to dest, the supplemented feature named in commands.rs's
// HostCommand::SendRandomMessage (the retrieved slice never included the
// synthesis body, so the payload shape here is inferred from the
// RegisterUser/SendText variants ClientToServerMessage actually carries).
func (c *Client) sendRandomMessage(dest proto.NodeID) {
	name := fmt.Sprintf("user-%d-%d", c.self, c.rng.Intn(1_000_000))
	msg := proto.HostMessage{
		FromClient: &proto.ClientToServerMessage{
			RegisterUser: &proto.RegisterUser{Name: name},
		},
	}
	c.sendMessage(dest, msg)
}
