package flood_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/klynmesh/overlay-client/flood"
	"github.com/klynmesh/overlay-client/proto"
	"github.com/klynmesh/overlay-client/routing"
)

type fakeNeighbors struct {
	broadcasts []proto.Packet
	sent       []struct {
		to  proto.NodeID
		pkt proto.Packet
	}
	shortcuts []proto.Packet
	failNext  bool
}

func (f *fakeNeighbors) Broadcast(pkt proto.Packet) (failures int) {
	f.broadcasts = append(f.broadcasts, pkt)
	return 0
}

func (f *fakeNeighbors) SendTo(to proto.NodeID, pkt proto.Packet) error {
	if f.failNext {
		f.failNext = false
		return assertErr{}
	}
	f.sent = append(f.sent, struct {
		to  proto.NodeID
		pkt proto.Packet
	}{to, pkt})
	return nil
}

func (f *fakeNeighbors) ControllerShortcut(pkt proto.Packet) {
	f.shortcuts = append(f.shortcuts, pkt)
}

type assertErr struct{}

func (assertErr) Error() string { return "send failed" }

var _ = Describe("flood.Engine", func() {
	var (
		topo  *routing.Topology
		kinds *routing.KnownKinds
		eng   *flood.Engine
		nb    *fakeNeighbors
	)

	BeforeEach(func() {
		topo = routing.NewTopology()
		kinds = routing.NewKnownKinds()
		eng = flood.NewEngine(1, topo, kinds)
		nb = &fakeNeighbors{}
	})

	It("broadcasts a fresh FloodRequest on Originate", func() {
		eng.Originate(nb)
		Expect(nb.broadcasts).To(HaveLen(1))
		req := nb.broadcasts[0].FloodRequest
		Expect(req.InitiatorID).To(Equal(proto.NodeID(1)))
		Expect(req.PathTrace).To(Equal([]proto.PathTraceEntry{{Node: 1, Kind: proto.KindClient}}))
	})

	It("routes a FloodResponse back to the initiator when this client did not originate it", func() {
		req := &proto.FloodRequest{
			FloodID:     7,
			InitiatorID: 9,
			PathTrace:   []proto.PathTraceEntry{{Node: 9, Kind: proto.KindClient}},
		}
		eng.HandleRequest(req, 100, nb)

		Expect(nb.sent).To(HaveLen(1))
		resp := nb.sent[0].pkt.FloodResponse
		Expect(resp.PathTrace).To(Equal([]proto.PathTraceEntry{
			{Node: 9, Kind: proto.KindClient},
			{Node: 1, Kind: proto.KindClient},
		}))
		// Routed back toward 9: reversed hops end at the initiator.
		Expect(nb.sent[0].pkt.RoutingHeader.Hops).To(Equal([]proto.NodeID{1, 9}))
	})

	It("absorbs its own FloodRequest locally without emitting a response packet", func() {
		req := &proto.FloodRequest{
			FloodID:     7,
			InitiatorID: 1,
			PathTrace:   []proto.PathTraceEntry{{Node: 1, Kind: proto.KindClient}},
		}
		eng.HandleRequest(req, 100, nb)

		Expect(nb.sent).To(BeEmpty())
		Expect(topo.HasEdge(1, 1)).To(BeFalse())
	})

	It("still absorbs its own flood's returning trace after Originate seeds the dedup filter", func() {
		eng.Originate(nb)
		floodID := nb.broadcasts[0].FloodRequest.FloodID

		req := &proto.FloodRequest{
			FloodID:     floodID,
			InitiatorID: 1,
			PathTrace: []proto.PathTraceEntry{
				{Node: 1, Kind: proto.KindClient},
				{Node: 2, Kind: proto.KindDrone},
				{Node: 3, Kind: proto.KindServer},
			},
		}
		eng.HandleRequest(req, 100, nb)

		Expect(nb.sent).To(BeEmpty())
		Expect(topo.HasEdge(1, 2)).To(BeTrue())
		Expect(topo.HasEdge(2, 3)).To(BeTrue())
	})

	It("falls back to ControllerShortcut when the next hop is unreachable", func() {
		nb.failNext = true
		req := &proto.FloodRequest{
			FloodID:     7,
			InitiatorID: 9,
			PathTrace:   []proto.PathTraceEntry{{Node: 9, Kind: proto.KindClient}},
		}
		eng.HandleRequest(req, 100, nb)
		Expect(nb.shortcuts).To(HaveLen(1))
	})

	It("deduplicates a flood it has already seen", func() {
		req := &proto.FloodRequest{
			FloodID:     7,
			InitiatorID: 9,
			PathTrace:   []proto.PathTraceEntry{{Node: 9, Kind: proto.KindClient}},
		}
		eng.HandleRequest(req, 100, nb)
		eng.HandleRequest(req, 100, nb)
		Expect(nb.sent).To(HaveLen(1))
	})

	It("absorbs a FloodResponse's path trace into the topology and known kinds", func() {
		resp := &proto.FloodResponse{
			FloodID: 1,
			PathTrace: []proto.PathTraceEntry{
				{Node: 1, Kind: proto.KindClient},
				{Node: 2, Kind: proto.KindDrone},
				{Node: 3, Kind: proto.KindServer},
			},
		}
		eng.HandleResponse(resp)

		Expect(topo.HasEdge(1, 2)).To(BeTrue())
		Expect(topo.HasEdge(2, 3)).To(BeTrue())
		k, ok := kinds.Get(3)
		Expect(ok).To(BeTrue())
		Expect(k).To(Equal(proto.KindServer))
	})
})
