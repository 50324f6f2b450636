// Package fragment implements the fragmentation codec (spec.md C4):
// splitting a serialized HostMessage into fixed-size fragments and
// reassembling them back into a message.
package fragment

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/klynmesh/overlay-client/proto"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Disassemble serializes message to canonical JSON and splits it into
// proto.FragmentSize chunks, ported from
// original_source/src/client/fragmentation/disassembler.rs. The encoder
// is json-iterator rather than encoding/json — the teacher's own wire
// codec dependency (see DESIGN.md "Core" table), used here for exactly
// the concern it already covers in the teacher: fast, drop-in JSON
// marshaling of wire bodies.
func Disassemble(message proto.HostMessage) ([]proto.Fragment, error) {
	bytes, err := json.Marshal(message)
	if err != nil {
		return nil, err
	}

	totalSize := len(bytes)
	totalFragments := (totalSize + proto.FragmentSize - 1) / proto.FragmentSize
	if totalFragments == 0 {
		totalFragments = 1
	}

	fragments := make([]proto.Fragment, 0, totalFragments)
	for i := 0; i < totalFragments; i++ {
		start := i * proto.FragmentSize
		end := start + proto.FragmentSize
		if end > totalSize {
			end = totalSize
		}
		chunk := bytes[start:end]

		var frag proto.Fragment
		frag.FragmentIndex = uint64(i)
		frag.TotalNFragments = uint64(totalFragments)
		frag.Length = uint8(len(chunk))
		copy(frag.Data[:], chunk)
		fragments = append(fragments, frag)
	}
	return fragments, nil
}
