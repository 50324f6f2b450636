package retry_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/flood"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/retry"
	"github.com/klynmesh/overlay-client/routing"
	"github.com/klynmesh/overlay-client/sender"
	"github.com/klynmesh/overlay-client/session"
)

var _ = Describe("retry.Controller", func() {
	var (
		topo    *routing.Topology
		kinds   *routing.KnownKinds
		rel     *routing.Reliability
		tr      *session.Tracker
		snd     *sender.Sender
		fl      *flood.Engine
		ctl     *retry.Controller
		events  chan event.Event
		stats   *event.Stats
		metrics *event.Metrics
	)

	BeforeEach(func() {
		topo = routing.NewTopology()
		kinds = routing.NewKnownKinds()
		rel = routing.NewReliability()

		var err error
		tr, err = session.NewTracker(time.Hour)
		Expect(err).NotTo(HaveOccurred())

		kinds.Set(1, proto.KindClient)
		kinds.Set(2, proto.KindDrone)
		kinds.Set(3, proto.KindServer)
		topo.AddEdge(1, 2, routing.BaseWeight)
		topo.AddEdge(2, 3, routing.BaseWeight)

		events = make(chan event.Event, 16)
		stats = &event.Stats{}
		metrics = event.NewMetrics(prometheus.NewRegistry(), "1")
		snd = sender.New(1, tr, events, stats, metrics)
		fl = flood.NewEngine(1, topo, kinds)
		ctl = retry.New(1, topo, kinds, rel, tr, snd, fl, events, stats, metrics)
	})

	AfterEach(func() {
		_ = tr.Close()
	})

	// Scenario E.
	It("emits exactly one MessageSent carrying latency once the session's only fragment is acked", func() {
		out := make(chan proto.Packet, 1)
		snd.AddChannel(2, out)

		msg := proto.HostMessage{FromClient: &proto.ClientToServerMessage{
			SendText: &proto.SendText{To: "bob", Body: "hi"},
		}}
		start := time.Now()
		tr.StartMeta(1, 3, msg, start)
		pkt := proto.Packet{
			Kind:          proto.KindMsgFragment,
			SessionID:     1,
			RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{1, 2, 3}},
			Fragment:      &proto.Fragment{FragmentIndex: 0, TotalNFragments: 1},
		}
		tr.PutSent(1, 0, pkt)

		ctl.HandleAck(1, 0)

		Expect(tr.AnyPendingInSession(1)).To(BeFalse())
		Expect(events).To(HaveLen(1))
		ev := <-events
		Expect(ev.MessageSent).NotTo(BeNil())
		Expect(ev.MessageSent.Destination).To(Equal(proto.NodeID(3)))
		Expect(ev.MessageSent.Message).To(Equal(msg))
		Expect(ev.MessageSent.Latency).To(BeNumerically(">=", 0))

		_, stillThere := tr.GetMeta(1)
		Expect(stillThere).To(BeFalse())
	})

	It("does not emit MessageSent while any fragment of the session is still pending", func() {
		msg := proto.HostMessage{FromClient: &proto.ClientToServerMessage{SendText: &proto.SendText{To: "bob", Body: "hi"}}}
		tr.StartMeta(2, 3, msg, time.Now())
		base := proto.Packet{Kind: proto.KindMsgFragment, SessionID: 2, RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{1, 2, 3}}}
		f0 := base
		f0.Fragment = &proto.Fragment{FragmentIndex: 0, TotalNFragments: 2}
		f1 := base
		f1.Fragment = &proto.Fragment{FragmentIndex: 1, TotalNFragments: 2}
		tr.PutSent(2, 0, f0)
		tr.PutSent(2, 1, f1)

		ctl.HandleAck(2, 0)

		Expect(events).To(BeEmpty())
		Expect(tr.AnyPendingInSession(2)).To(BeTrue())
	})

	// Scenario F.
	It("reroutes after three Dropped nacks push the dropping edge's stats over threshold", func() {
		// An alternative drone (4) gives FindPath something to switch to
		// once the 1<->2 edge gets penalized.
		kinds.Set(4, proto.KindDrone)
		topo.AddEdge(1, 4, routing.BaseWeight)
		topo.AddEdge(4, 3, routing.BaseWeight)

		msg := proto.HostMessage{FromClient: &proto.ClientToServerMessage{SendText: &proto.SendText{To: "bob", Body: "hi"}}}
		tr.StartMeta(9, 3, msg, time.Now())
		pkt := proto.Packet{
			Kind:          proto.KindMsgFragment,
			SessionID:     9,
			RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{1, 2, 3}},
			Fragment:      &proto.Fragment{FragmentIndex: 0, TotalNFragments: 1},
		}
		tr.PutSent(9, 0, pkt)

		out4 := make(chan proto.Packet, 4)
		snd.AddChannel(4, out4)
		out2 := make(chan proto.Packet, 4)
		snd.AddChannel(2, out2)

		// The drone at hop 1 (node 2) NACKs back toward the client (node 1):
		// the NACK header's own edge is (2,1), the reverse of the send edge.
		nackHeader := proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{2, 1}}
		nack := proto.Nack{FragmentIndex: 0, Kind: proto.NackDropped}

		for i := 0; i < 3; i++ {
			// PeekSent must still find the fragment: HandleNack doesn't
			// remove it, only the eventual Ack does.
			ctl.HandleNack(9, 0, nack, nackHeader)
		}

		edgeStats, ok := rel.Stats(2, 1)
		Expect(ok).To(BeTrue())
		Expect(edgeStats.ConsecutiveNacks()).To(BeNumerically(">=", 3))

		// By the third consecutive drop on (2,1) the penalized edge {1,2}
		// is heavier than the untouched alternative through drone 4, so
		// the pending fragment ends up rerouted there.
		resent, ok := tr.PeekSent(9, 0)
		Expect(ok).To(BeTrue())
		Expect(resent.RoutingHeader.Hops).To(Equal([]proto.NodeID{1, 4, 3}))
		Expect(out4).NotTo(BeEmpty())
	})

	It("excises a failing drone and force-floods on ErrorInRouting", func() {
		kinds.Set(4, proto.KindDrone)
		topo.AddEdge(1, 4, routing.BaseWeight)
		topo.AddEdge(4, 3, routing.BaseWeight)

		out4 := make(chan proto.Packet, 4)
		snd.AddChannel(4, out4)

		msg := proto.HostMessage{FromClient: &proto.ClientToServerMessage{SendText: &proto.SendText{To: "bob", Body: "hi"}}}
		tr.StartMeta(5, 3, msg, time.Now())
		pkt := proto.Packet{
			Kind:          proto.KindMsgFragment,
			SessionID:     5,
			RoutingHeader: proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{1, 2, 3}},
			Fragment:      &proto.Fragment{FragmentIndex: 0, TotalNFragments: 1},
		}
		tr.PutSent(5, 0, pkt)

		ctl.HandleNack(5, 0, proto.Nack{FragmentIndex: 0, Kind: proto.NackErrorInRouting, DroneID: 2},
			proto.RoutingHeader{HopIndex: 1, Hops: []proto.NodeID{2, 1}})

		Expect(topo.HasEdge(1, 2)).To(BeFalse())
		_, known := kinds.Get(2)
		Expect(known).To(BeFalse())

		resent, ok := tr.PeekSent(5, 0)
		Expect(ok).To(BeTrue())
		Expect(resent.RoutingHeader.Hops).To(Equal([]proto.NodeID{1, 4, 3}))
		Expect(out4).To(HaveLen(2)) // resent fragment + the forced re-flood
	})
})
