// Package session implements the per-session/per-fragment pending-send
// store, the per-session reassembly buffer, and per-session metadata
// (spec.md C6), plus the session-age reaper spec.md §5 and Open Question 3
// call for but the original implementation lacks.
package session

import (
	"time"

	"github.com/tidwall/buntdb"

	"github.com/klynmesh/overlay-client/internal/nlog"
	"github.com/klynmesh/overlay-client/proto"
)

type sentKey struct {
	sessionID     uint64
	fragmentIndex uint64
}

type receiveBuf struct {
	fragments     []*proto.Fragment
	receivedCount uint64
}

// Meta is the pending-session metadata of spec.md §3: destination,
// original message, and start time, kept until the session is fully
// acked.
type Meta struct {
	Destination proto.NodeID
	Message     proto.HostMessage
	Start       time.Time
}

// Tracker holds the three stores of spec.md §3. Like Topology, it has no
// interior locking of its own: the owning event loop is its only caller
// that mutates the maps. buntdb runs its expiry scan on its own
// goroutine, so OnExpired must NOT touch the maps directly — it only
// posts the expired session id to Expired(), a channel the event loop
// drains on its own turn alongside the UI/controller/packet inputs
// (spec.md §5: "the worker suspends only in the multi-source select").
type Tracker struct {
	sent     map[sentKey]proto.Packet
	received map[uint64]*receiveBuf
	meta     map[uint64]Meta

	ttl        *buntdb.DB
	sessionTTL time.Duration
	expired    chan uint64
}

// NewTracker opens an in-memory (":memory:", never touches disk — no
// persistence across restarts, per spec.md Non-goals) TTL index with
// sessionTTL as the expiry of every tracked session. Grounded on the
// teacher's cmd/authn/main.go, which opens its local store the same way
// via kvdb.NewBuntDB, here repurposed from persistent identity storage to
// a pure in-memory expiry clock (Open Question 3: the original
// implementation has no reaper at all).
func NewTracker(sessionTTL time.Duration) (*Tracker, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	t := &Tracker{
		sent:       make(map[sentKey]proto.Packet),
		received:   make(map[uint64]*receiveBuf),
		meta:       make(map[uint64]Meta),
		ttl:        db,
		sessionTTL: sessionTTL,
		expired:    make(chan uint64, 256),
	}
	db.SetConfig(buntdb.Config{
		OnExpired: func(keys []string) {
			for _, k := range keys {
				sid, ok := parseSessionKey(k)
				if !ok {
					continue
				}
				select {
				case t.expired <- sid:
				default:
					nlog.Warningf("session %d: reaper queue full, expiry dropped", sid)
				}
			}
		},
	})
	return t, nil
}

// Expired delivers session ids whose TTL has lapsed; the event loop must
// call Discard(sessionID) for each one it receives, on its own goroutine.
func (t *Tracker) Expired() <-chan uint64 { return t.expired }

func (t *Tracker) Close() error { return t.ttl.Close() }

// arm (re)inserts the TTL marker for sessionID, extending its deadline —
// called whenever the session is touched (a new fragment sent/received).
func (t *Tracker) arm(sessionID uint64) {
	key := sessionKeyOf(sessionID)
	_ = t.ttl.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, "1", &buntdb.SetOptions{Expires: true, TTL: t.sessionTTL})
		return err
	})
}

// disarm removes the TTL marker, e.g. once a session is fully acked and
// its bookkeeping is cleared by the normal completion path rather than by
// the reaper.
func (t *Tracker) disarm(sessionID uint64) {
	key := sessionKeyOf(sessionID)
	_ = t.ttl.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
}

// --- pending-sent store ---

// PutSent records a fragment packet as in-flight.
func (t *Tracker) PutSent(sessionID, fragmentIndex uint64, pkt proto.Packet) {
	t.sent[sentKey{sessionID, fragmentIndex}] = pkt
	t.arm(sessionID)
}

// TakeSent removes and returns the pending packet for (sessionID,
// fragmentIndex), reporting whether one was present.
func (t *Tracker) TakeSent(sessionID, fragmentIndex uint64) (proto.Packet, bool) {
	k := sentKey{sessionID, fragmentIndex}
	pkt, ok := t.sent[k]
	if ok {
		delete(t.sent, k)
	}
	return pkt, ok
}

// PeekSent returns the pending packet without removing it, used by the
// NACK path which resends in place.
func (t *Tracker) PeekSent(sessionID, fragmentIndex uint64) (proto.Packet, bool) {
	pkt, ok := t.sent[sentKey{sessionID, fragmentIndex}]
	return pkt, ok
}

// AnyPendingInSession reports whether any fragment of sessionID is still
// unacked.
func (t *Tracker) AnyPendingInSession(sessionID uint64) bool {
	for k := range t.sent {
		if k.sessionID == sessionID {
			return true
		}
	}
	return false
}

// --- pending-received / reassembly store ---

// PutFragment stores fragment under sessionID, allocating the reassembly
// buffer on first arrival, and reports whether the session is now
// complete. Duplicate fragments do not double-count: the slot is checked
// for nil before counting it received (spec.md Open Question 2 — fixing
// the overcount bug the original Rust implementation has).
func (t *Tracker) PutFragment(sessionID uint64, frag proto.Fragment) (complete bool) {
	buf, ok := t.received[sessionID]
	if !ok {
		buf = &receiveBuf{fragments: make([]*proto.Fragment, frag.TotalNFragments)}
		t.received[sessionID] = buf
	}
	if buf.fragments[frag.FragmentIndex] == nil {
		f := frag
		buf.fragments[frag.FragmentIndex] = &f
		buf.receivedCount++
	}
	t.arm(sessionID)
	return buf.receivedCount == uint64(len(buf.fragments))
}

// TakeReceived removes and returns the accumulated fragments for
// sessionID, ready for fragment.Assemble.
func (t *Tracker) TakeReceived(sessionID uint64) ([]*proto.Fragment, bool) {
	buf, ok := t.received[sessionID]
	if !ok {
		return nil, false
	}
	delete(t.received, sessionID)
	return buf.fragments, true
}

// DiscardReceived drops sessionID's reassembly buffer without returning
// it. The dispatcher does not call it: it removes a completed buffer with
// TakeReceived before reassembly, so a failed reassembly leaves nothing
// behind.
func (t *Tracker) DiscardReceived(sessionID uint64) {
	delete(t.received, sessionID)
}

// --- pending-session metadata ---

func (t *Tracker) StartMeta(sessionID uint64, dest proto.NodeID, msg proto.HostMessage, start time.Time) {
	if _, exists := t.meta[sessionID]; exists {
		return
	}
	t.meta[sessionID] = Meta{Destination: dest, Message: msg, Start: start}
}

func (t *Tracker) GetMeta(sessionID uint64) (Meta, bool) {
	m, ok := t.meta[sessionID]
	return m, ok
}

// Discard tears down every store for sessionID — used both by explicit
// abandonment and by the TTL reaper.
func (t *Tracker) Discard(sessionID uint64) {
	for k := range t.sent {
		if k.sessionID == sessionID {
			delete(t.sent, k)
		}
	}
	delete(t.received, sessionID)
	delete(t.meta, sessionID)
	t.disarm(sessionID)
}

// Complete clears sessionID's metadata after a successful full-ack chain,
// without touching sent/received (which should already be empty by then).
func (t *Tracker) Complete(sessionID uint64) {
	delete(t.meta, sessionID)
	t.disarm(sessionID)
}
