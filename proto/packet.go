package proto

import "fmt"

// FragmentSize is the fixed payload size of a message fragment, matching
// the harness-wide wire constant (wg_2024::packet::FRAGMENT_DSIZE in the
// reference implementation this protocol was ported from).
const FragmentSize = 128

// PacketKind tags the closed union of packet bodies that can travel the
// overlay.
type PacketKind int

const (
	KindFloodRequest PacketKind = iota
	KindFloodResponse
	KindMsgFragment
	KindAck
	KindNack
)

func (k PacketKind) String() string {
	switch k {
	case KindFloodRequest:
		return "FloodRequest"
	case KindFloodResponse:
		return "FloodResponse"
	case KindMsgFragment:
		return "MsgFragment"
	case KindAck:
		return "Ack"
	case KindNack:
		return "Nack"
	default:
		return "Unknown"
	}
}

// NackKind is the closed union of reasons a drone or server can NACK a
// fragment.
type NackKind int

const (
	NackDropped NackKind = iota
	NackErrorInRouting
	NackDestinationIsDrone
	NackUnexpectedRecipient
)

// RoutingHeader is the full source route for a packet. hops[HopIndex] is
// the node currently processing the packet. Ignored for FloodRequest,
// which is informational-only and broadcast to every neighbor.
type RoutingHeader struct {
	HopIndex int
	Hops     []NodeID
}

// CurrentHop returns hops[hop_index], the node a freshly built or
// in-flight packet is addressed to next — for a newly created header that
// is hops[1] (spec.md §4.6: "selects next = hops[hop_index]").
func (h RoutingHeader) CurrentHop() NodeID { return h.Hops[h.HopIndex] }

// Reversed returns a new header walking the same hop list backwards, with
// HopIndex reset to 1 — the shape used for Ack/Nack/FloodResponse replies
// which source-route back toward the original sender.
func (h RoutingHeader) Reversed() RoutingHeader {
	rev := make([]NodeID, len(h.Hops))
	for i, id := range h.Hops {
		rev[len(h.Hops)-1-i] = id
	}
	return RoutingHeader{HopIndex: 1, Hops: rev}
}

// PathTraceEntry is one hop recorded while a FloodRequest or FloodResponse
// traverses the network: the node and the kind it claims to be.
type PathTraceEntry struct {
	Node NodeID
	Kind NodeKind
}

// FloodRequest originates or forwards controlled topology discovery.
type FloodRequest struct {
	FloodID     uint64
	InitiatorID NodeID
	PathTrace   []PathTraceEntry
}

// FloodResponse carries the accumulated path trace back to the initiator.
type FloodResponse struct {
	FloodID   uint64
	PathTrace []PathTraceEntry
}

// Fragment is one fixed-size chunk of a serialized application message.
type Fragment struct {
	FragmentIndex   uint64
	TotalNFragments uint64
	Length          uint8
	Data            [FragmentSize]byte
}

// Ack acknowledges successful receipt of a single fragment.
type Ack struct {
	FragmentIndex uint64
}

// Nack reports a fragment that failed to reach its destination.
type Nack struct {
	FragmentIndex uint64
	Kind          NackKind
	// DroneID is set only for NackErrorInRouting: the drone to excise.
	DroneID NodeID
}

// Packet is the envelope exchanged between overlay nodes: a closed-union
// body tagged by Kind, a source route, and a session id grouping the
// packet with the rest of its message.
type Packet struct {
	Kind          PacketKind
	RoutingHeader RoutingHeader
	SessionID     uint64

	FloodRequest  *FloodRequest
	FloodResponse *FloodResponse
	Fragment      *Fragment
	Ack           *Ack
	Nack          *Nack
}

func (p Packet) String() string {
	return fmt.Sprintf("Packet{%s session=%d hops=%v hop_index=%d}",
		p.Kind, p.SessionID, p.RoutingHeader.Hops, p.RoutingHeader.HopIndex)
}

// Header is a header-only summary of a packet, used for PacketSent events
// so the controller doesn't need the full body.
type Header struct {
	SessionID     uint64
	Kind          PacketKind
	RoutingHeader RoutingHeader
}

func (p Packet) Header() Header {
	return Header{SessionID: p.SessionID, Kind: p.Kind, RoutingHeader: p.RoutingHeader}
}
