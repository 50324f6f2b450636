// Package engine implements the concurrent event loop (spec.md C10): the
// single goroutine that owns every piece of mutable client state and
// arbitrates between UI-originated sends, simulation-controller commands,
// and inbound packets with a biased multi-source select. Grounded on
// original_source/src/client/mod.rs's RustbustersClient::run.
package engine

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/klynmesh/overlay-client/dispatch"
	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/flood"
	"github.com/klynmesh/overlay-client/internal/cos"
	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/retry"
	"github.com/klynmesh/overlay-client/routing"
	"github.com/klynmesh/overlay-client/sender"
	"github.com/klynmesh/overlay-client/session"
)

// DefaultDiscoveryInterval matches the teacher's default; the original
// RustbustersClient::new falls back to 20 seconds when none is configured.
const DefaultDiscoveryInterval = 20 * time.Second

// idleTick is the default-branch timeout of the biased select, spec.md
// §4.10: "A 100 ms default-branch acts as an idle tick."
const idleTick = 100 * time.Millisecond

// Client wires C1 through C9 together and runs the select loop. Every
// field below is mutated exclusively by the goroutine that calls Run;
// KnownKinds is the sole exception, guarded by its own mutex for the UI
// collaborator's concurrent reads (spec.md §5, §9).
type Client struct {
	self proto.NodeID
	// correlationID is logged once, on the line New writes when the
	// client is spawned, the same role GenCorrelationID plays for
	// ControllerShortcut events. Other log lines carry only the node id.
	correlationID string

	topo     *routing.Topology
	kinds    *routing.KnownKinds
	rel      *routing.Reliability
	tracker  *session.Tracker
	flood    *flood.Engine
	sender   *sender.Sender
	retry    *retry.Controller
	dispatch *dispatch.Dispatcher

	uiIn  <-chan event.UIIn
	uiOut chan<- event.UIOut
	cmdIn <-chan event.Command
	pktIn <-chan proto.Packet

	events  chan<- event.Event
	stats   event.Stats
	metrics *event.Metrics

	sessionIDCounter  uint64
	discoveryInterval time.Duration
	lastDiscovery     time.Time

	rng *rand.Rand
}

// Channels groups the five boundary channels the host process wires in:
// the UI-to-network and controller command inputs, the inbound-packet
// input, and the two outputs (events to the controller, replies to the
// UI). Modeled on original_source/src/client/mod.rs's constructor
// parameters.
type Channels struct {
	UIIn   <-chan event.UIIn
	UIOut  chan<- event.UIOut
	CmdIn  <-chan event.Command
	PktIn  <-chan proto.Packet
	Events chan<- event.Event
}

// New constructs a Client with empty topology/reliability/session state,
// registering its prometheus counters against reg (pass
// prometheus.NewRegistry() in tests to avoid colliding on the default
// registry).
func New(self proto.NodeID, discoveryInterval, sessionTTL time.Duration, ch Channels, reg prometheus.Registerer) (*Client, error) {
	if discoveryInterval <= 0 {
		discoveryInterval = DefaultDiscoveryInterval
	}
	tracker, err := session.NewTracker(sessionTTL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		self:              self,
		correlationID:     cos.GenCorrelationID(),
		topo:              routing.NewTopology(),
		kinds:             routing.NewKnownKinds(),
		rel:               routing.NewReliability(),
		tracker:           tracker,
		uiIn:              ch.UIIn,
		uiOut:             ch.UIOut,
		cmdIn:             ch.CmdIn,
		pktIn:             ch.PktIn,
		events:            ch.Events,
		metrics:           event.NewMetrics(reg, nodeLabel(self)),
		sessionIDCounter:  73, // arbitrary, matches the teacher's starting point
		discoveryInterval: discoveryInterval,
		lastDiscovery:     time.Now(),
		rng:               rand.New(rand.NewSource(int64(self) + time.Now().UnixNano())),
	}

	c.sender = sender.New(self, c.tracker, c.events, &c.stats, c.metrics)
	c.flood = flood.NewEngine(self, c.topo, c.kinds)
	c.retry = retry.New(self, c.topo, c.kinds, c.rel, c.tracker, c.sender, c.flood, c.events, &c.stats, c.metrics)
	c.dispatch = dispatch.New(self, c.flood, c.tracker, c.retry, c.sender, c.events, c.uiOut, &c.stats, c.metrics)

	nlog.Infof("client %d (%s): spawned with discovery interval %s", self, c.correlationID, discoveryInterval)
	return c, nil
}

// Close releases resources held on behalf of the client (the session
// tracker's in-memory TTL index).
func (c *Client) Close() error {
	return c.tracker.Close()
}

// Run drives the biased select loop until ctx is canceled. It owns every
// piece of mutable state reachable from the loop body; nothing else may
// mutate it concurrently (spec.md §5).
func (c *Client) Run(ctx context.Context) error {
	nlog.Infof("client %d: started network discovery", c.self)
	c.flood.Originate(c.sender)
	c.stats.FloodsOriginated++
	c.metrics.FloodsOriginated.Inc()

	ticker := time.NewTicker(idleTick)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.maybeDiscover()

		done, err := c.turn(ctx, ticker.C)
		if done {
			return err
		}
	}
}

// turn services exactly one input, honoring the biased priority order of
// spec.md §4.10 (UI > controller commands > inbound packets) plus the
// session reaper and idle tick this implementation adds on top. Each
// priority level is drained with a non-blocking check before falling
// through to a blocking select across everything, so that a burst on a
// higher-priority channel is never starved by one blocking select picking
// a lower-priority channel at random.
func (c *Client) turn(ctx context.Context, idle <-chan time.Time) (stop bool, err error) {
	select {
	case m, ok := <-c.uiIn:
		if !ok {
			return true, nil
		}
		c.handleUIMessage(m)
		return false, nil
	default:
	}
	select {
	case cmd, ok := <-c.cmdIn:
		if !ok {
			return true, nil
		}
		c.handleCommand(cmd)
		return false, nil
	default:
	}
	select {
	case pkt, ok := <-c.pktIn:
		if !ok {
			return true, nil
		}
		c.dispatch.Dispatch(pkt)
		return false, nil
	default:
	}
	select {
	case sid := <-c.tracker.Expired():
		nlog.Warningf("session %d: expired, discarding pending state", sid)
		c.tracker.Discard(sid)
		return false, nil
	default:
	}

	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case m, ok := <-c.uiIn:
		if !ok {
			return true, nil
		}
		c.handleUIMessage(m)
	case cmd, ok := <-c.cmdIn:
		if !ok {
			return true, nil
		}
		c.handleCommand(cmd)
	case pkt, ok := <-c.pktIn:
		if !ok {
			return true, nil
		}
		c.dispatch.Dispatch(pkt)
	case sid := <-c.tracker.Expired():
		nlog.Warningf("session %d: expired, discarding pending state", sid)
		c.tracker.Discard(sid)
	case <-idle:
	}
	return false, nil
}

func (c *Client) maybeDiscover() {
	if time.Since(c.lastDiscovery) < c.discoveryInterval {
		return
	}
	nlog.Infof("client %d: performing periodic network discovery", c.self)
	c.flood.Originate(c.sender)
	c.stats.FloodsOriginated++
	c.metrics.FloodsOriginated.Inc()
	c.lastDiscovery = time.Now()
}

func (c *Client) handleUIMessage(m event.UIIn) {
	c.sendMessage(m.Destination, proto.HostMessage{FromClient: &m.Message})
}

func nodeLabel(id proto.NodeID) string {
	return strconv.Itoa(int(id))
}
