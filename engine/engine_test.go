package engine_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/klynmesh/overlay-client/engine"
	"github.com/klynmesh/overlay-client/event"
	"github.com/klynmesh/overlay-client/proto"
)

var _ = Describe("engine.Client", func() {
	var (
		uiIn   chan event.UIIn
		uiOut  chan event.UIOut
		cmdIn  chan event.Command
		pktIn  chan proto.Packet
		events chan event.Event

		client *engine.Client
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		uiIn = make(chan event.UIIn, 8)
		uiOut = make(chan event.UIOut, 8)
		cmdIn = make(chan event.Command, 8)
		pktIn = make(chan proto.Packet, 8)
		events = make(chan event.Event, 16)

		var err error
		client, err = engine.New(1, time.Hour, time.Hour, engine.Channels{
			UIIn: uiIn, UIOut: uiOut, CmdIn: cmdIn, PktIn: pktIn, Events: events,
		}, prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- client.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
		Eventually(done, time.Second).Should(Receive())
		Expect(client.Close()).To(Succeed())
	})

	// An AddSender command installs a channel and immediately re-floods
	// (spec.md §4.5), so the new neighbor sees a FloodRequest without any
	// other stimulus.
	It("re-floods a newly attached neighbor on AddSender", func() {
		neighborOut := make(chan proto.Packet, 8)
		cmdIn <- event.Command{AddSender: &event.AddSender{ID: 2, Out: neighborOut}}

		Eventually(neighborOut, time.Second).Should(Receive(WithTransform(
			func(p proto.Packet) proto.PacketKind { return p.Kind },
			Equal(proto.KindFloodRequest),
		)))
	})

	// With no route installed, a SendText command must surface a
	// SendingError on the UI channel rather than block or panic.
	It("reports SendingError to the UI when no route exists", func() {
		cmdIn <- event.Command{SendText: &event.SendText{
			Destination: 9,
			Message: proto.HostMessage{FromClient: &proto.ClientToServerMessage{
				SendText: &proto.SendText{To: "bob", Body: "hi"},
			}},
		}}

		Eventually(uiOut, time.Second).Should(Receive(WithTransform(
			func(m event.UIOut) bool { return m.Message.SendingError != nil },
			BeTrue(),
		)))
	})

	// StatsRequest must answer on the controller's own events channel with
	// a StatsResponse snapshot of the running counters.
	It("answers StatsRequest with the running counters", func() {
		cmdIn <- event.Command{StatsRequest: &event.StatsRequest{}}

		Eventually(events, time.Second).Should(Receive(WithTransform(
			func(e event.Event) *event.StatsResponse { return e.StatsResponse },
			Not(BeNil()),
		)))
	})

	// RemoveSender purges the neighbor from topology/reliability/kinds and
	// re-floods, mirroring AddSender's rediscovery trigger in the other
	// direction (spec.md §4.9 "AddSender/RemoveSender").
	It("keeps serving commands after RemoveSender drops the only neighbor", func() {
		neighborOut := make(chan proto.Packet, 8)
		cmdIn <- event.Command{AddSender: &event.AddSender{ID: 2, Out: neighborOut}}
		Eventually(neighborOut, time.Second).Should(Receive())

		cmdIn <- event.Command{RemoveSender: &event.RemoveSender{ID: 2}}
		// The removed neighbor's channel is gone, so the re-flood this
		// triggers has nowhere to go; the loop must still drain the
		// command without blocking. A fresh AddSender proves the loop
		// kept turning.
		neighborOut2 := make(chan proto.Packet, 8)
		cmdIn <- event.Command{AddSender: &event.AddSender{ID: 3, Out: neighborOut2}}
		Eventually(neighborOut2, time.Second).Should(Receive())
	})

	// UI-originated sends are serviced even while the controller command
	// channel is also pending, since the biased select always checks uiIn
	// first (spec.md §4.10).
	It("services a UI send alongside a pending controller command without starving either", func() {
		neighborOut := make(chan proto.Packet, 8)
		cmdIn <- event.Command{AddSender: &event.AddSender{ID: 2, Out: neighborOut}}
		Eventually(neighborOut, time.Second).Should(Receive())

		uiIn <- event.UIIn{Destination: 9, Message: proto.ClientToServerMessage{
			SendText: &proto.SendText{To: "bob", Body: "hi"},
		}}
		cmdIn <- event.Command{StatsRequest: &event.StatsRequest{}}

		Eventually(uiOut, time.Second).Should(Receive())
		Eventually(events, time.Second).Should(Receive(WithTransform(
			func(e event.Event) *event.StatsResponse { return e.StatsResponse },
			Not(BeNil()),
		)))
	})

	// Run must exit promptly once its context is canceled, rather than
	// blocking on the idle tick; AfterEach's own Eventually(done, ...)
	// asserts the exit, so this test only needs to trigger it early.
	It("exits promptly when its context is canceled", func() {
		cancel()
	})
})
