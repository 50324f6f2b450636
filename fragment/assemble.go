package fragment

import (
	"unicode/utf8"

	"github.com/klynmesh/overlay-client/internal/cos"
	"github.com/klynmesh/overlay-client/proto"
)

// Assemble concatenates fragments in index order and decodes the result
// back into a HostMessage, ported from
// original_source/src/client/fragmentation/assembler.rs.
//
// Reassembly truncates the concatenated payload at the first zero byte,
// which is safe only because Disassemble never emits anything but
// canonical JSON (JSON text cannot contain a NUL). This is spec.md Open
// Question 1, decided as documented there: JSON-only is a hard
// constraint of this codec, not a general binary-safe fragment format. A
// payload that legitimately contained a NUL would silently truncate; it
// cannot occur here because the only producer is Disassemble.
//
// fragments must be indexed by FragmentIndex with a nil entry at any
// index not yet received; a nil entry anywhere fails reassembly with
// cos.ErrMissingFragment.
func Assemble(fragments []*proto.Fragment) (proto.HostMessage, error) {
	var msg proto.HostMessage

	buf := make([]byte, 0, len(fragments)*proto.FragmentSize)
	for _, f := range fragments {
		if f == nil {
			return msg, cos.ErrMissingFragment
		}
		buf = append(buf, f.Data[:]...)
	}

	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	payload := buf[:n]

	if !utf8.Valid(payload) {
		return msg, cos.ErrDecodingFailed
	}

	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, cos.Wrap(cos.ErrDeserializeFailed, "%v", err)
	}
	return msg, nil
}
