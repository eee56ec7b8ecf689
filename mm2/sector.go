package mm2

import (
	"encoding/binary"
	"errors"
)

// SectorSize is the physical size, in bytes, of every sector on the
// wire (RAM and disk alike). See DESIGN.md's "Open Question
// resolutions" #1 for why this is 40, not spec.md's literal "32": the
// distilled spec's mandated field widths (a never-narrowed 32-bit
// `next`, a 64-bit anchor timestamp, 6 full-width samples, and an
// explicit per-sector count byte) sum past 32 on their own, so 40 is
// the smallest size satisfying every field-width requirement while
// still keeping the payload the dominant share of the record.
const SectorSize = 40

const (
	tsdMaxSamples = 6
	evtMaxPairs   = 3

	payloadSize = SectorSize - 4 /*next*/ - 8 /*anchor*/ - 1 /*count*/ - 3 /*reserved*/
)

// IndexOutOfRange is returned by decode_tsd/decode_evt for an index not
// within the sector's stored count.
var ErrIndexOutOfRange = errors.New("mm2: sector index out of range")

// EmptySector is returned when decoding a sector whose count is 0.
var ErrEmptySector = errors.New("mm2: sector is empty")

// Sector is the in-memory representation of one fixed-size record,
// identical for RAM and disk storage except that on disk `Next` is
// rewritten to address space reachable from the file's LookupEntry
// (addressing.go) rather than a RAM pool index.
type Sector struct {
	Next        SectorID
	AnchorUTCMs uint64
	Count       uint8
	Payload     [payloadSize]byte
}

// EncodeSector serializes s into the fixed wire layout:
// next(4) | anchor(8) | count(1) | reserved(3) | payload(24).
func EncodeSector(s Sector) [SectorSize]byte {
	var b [SectorSize]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Next))
	binary.LittleEndian.PutUint64(b[4:12], s.AnchorUTCMs)
	b[12] = s.Count
	copy(b[16:16+payloadSize], s.Payload[:])
	return b
}

// DecodeSector parses a SectorSize-byte buffer into a Sector.
func DecodeSector(b []byte) (Sector, error) {
	if len(b) < SectorSize {
		return Sector{}, ErrIndexOutOfRange
	}
	var s Sector
	s.Next = SectorID(binary.LittleEndian.Uint32(b[0:4]))
	s.AnchorUTCMs = binary.LittleEndian.Uint64(b[4:12])
	s.Count = b[12]
	copy(s.Payload[:], b[16:16+payloadSize])
	return s, nil
}

// EncodeTSDBatch builds a TSD sector payload from up to tsdMaxSamples
// values sharing a single anchor timestamp; per-sample timestamps are
// never stored (spec.md C2: "computed, not stored per-sample").
func EncodeTSDBatch(firstUTCMs uint64, values []uint32) Sector {
	if len(values) > tsdMaxSamples {
		values = values[:tsdMaxSamples]
	}
	s := Sector{AnchorUTCMs: firstUTCMs, Count: uint8(len(values))}
	for i, v := range values {
		binary.LittleEndian.PutUint32(s.Payload[i*4:i*4+4], v)
	}
	return s
}

// DecodeTSD returns the index'th sample of a TSD sector. Its timestamp
// is computed as AnchorUTCMs + index*sampleRateMs — this, not a stored
// per-sample field, is the basis of TSD's payload density.
func DecodeTSD(s Sector, sampleRateMs uint32, index int) (Record, error) {
	if s.Count == 0 {
		return Record{}, ErrEmptySector
	}
	if index < 0 || index >= int(s.Count) || index >= tsdMaxSamples {
		return Record{}, ErrIndexOutOfRange
	}
	value := binary.LittleEndian.Uint32(s.Payload[index*4 : index*4+4])
	return Record{
		UTCMs: s.AnchorUTCMs + uint64(index)*uint64(sampleRateMs),
		Value: value,
	}, nil
}

// evtPayload is the TSD payload region reinterpreted for EVT sectors:
// two uint16 millisecond deltas from the sector's anchor (pair 0's
// implicit delta is always 0) followed by three uint32 values.
type evtPayload struct {
	delta1, delta2 uint16
	value0         uint32
	value1         uint32
	value2         uint32
}

// maxEVTDeltaMs is the largest timestamp spread encode_evt can pack
// into a sector's uint16 delta fields. A caller spacing events further
// apart than this must start a new sector (api.go treats this the same
// as "tail sector full").
const maxEVTDeltaMs = 0xFFFF

// EncodeEVT packs 1-3 explicit (utc_ms, value) pairs into a sector,
// storing one absolute anchor plus millisecond deltas for pairs after
// the first. Returns ErrUnsupportedRecord-eligible false if any pair's
// offset from pairs[0].UTCMs does not fit a uint16 delta.
func EncodeEVT(pairs []Record) (Sector, bool) {
	if len(pairs) == 0 {
		return Sector{}, false
	}
	if len(pairs) > evtMaxPairs {
		pairs = pairs[:evtMaxPairs]
	}
	anchor := pairs[0].UTCMs
	var p evtPayload
	p.value0 = pairs[0].Value
	if len(pairs) > 1 {
		if pairs[1].UTCMs < anchor || pairs[1].UTCMs-anchor > maxEVTDeltaMs {
			return Sector{}, false
		}
		p.delta1 = uint16(pairs[1].UTCMs - anchor)
		p.value1 = pairs[1].Value
	}
	if len(pairs) > 2 {
		if pairs[2].UTCMs < anchor || pairs[2].UTCMs-anchor > maxEVTDeltaMs {
			return Sector{}, false
		}
		p.delta2 = uint16(pairs[2].UTCMs - anchor)
		p.value2 = pairs[2].Value
	}
	s := Sector{AnchorUTCMs: anchor, Count: uint8(len(pairs))}
	binary.LittleEndian.PutUint16(s.Payload[0:2], p.delta1)
	binary.LittleEndian.PutUint16(s.Payload[2:4], p.delta2)
	binary.LittleEndian.PutUint32(s.Payload[4:8], p.value0)
	binary.LittleEndian.PutUint32(s.Payload[8:12], p.value1)
	binary.LittleEndian.PutUint32(s.Payload[12:16], p.value2)
	return s, true
}

// writeTSDSampleInto stores one raw sample value at idx within s's
// payload, used by the incremental single-sample write path (api.go).
func writeTSDSampleInto(s *Sector, idx int, value uint32) {
	binary.LittleEndian.PutUint32(s.Payload[idx*4:idx*4+4], value)
	s.Count = uint8(idx + 1)
}

// setEVTPair writes the idx'th (0-based) pair directly into s, used by
// the incremental single-record write path (api.go) rather than
// EncodeEVT's all-at-once form. Returns false if utcMs does not fit the
// sector's delta budget relative to its anchor, signalling the caller
// to start a fresh sector.
func setEVTPair(s *Sector, idx int, utcMs uint64, value uint32) bool {
	if idx == 0 {
		s.AnchorUTCMs = utcMs
		binary.LittleEndian.PutUint32(s.Payload[4:8], value)
		s.Count = 1
		return true
	}
	if utcMs < s.AnchorUTCMs || utcMs-s.AnchorUTCMs > maxEVTDeltaMs {
		return false
	}
	delta := uint16(utcMs - s.AnchorUTCMs)
	switch idx {
	case 1:
		binary.LittleEndian.PutUint16(s.Payload[0:2], delta)
		binary.LittleEndian.PutUint32(s.Payload[8:12], value)
	case 2:
		binary.LittleEndian.PutUint16(s.Payload[2:4], delta)
		binary.LittleEndian.PutUint32(s.Payload[12:16], value)
	default:
		return false
	}
	s.Count = uint8(idx + 1)
	return true
}

// DecodeEVT returns the index'th (utc_ms, value) pair of an EVT sector.
func DecodeEVT(s Sector, index int) (Record, error) {
	if s.Count == 0 {
		return Record{}, ErrEmptySector
	}
	if index < 0 || index >= int(s.Count) || index >= evtMaxPairs {
		return Record{}, ErrIndexOutOfRange
	}
	delta1 := binary.LittleEndian.Uint16(s.Payload[0:2])
	delta2 := binary.LittleEndian.Uint16(s.Payload[2:4])
	value0 := binary.LittleEndian.Uint32(s.Payload[4:8])
	value1 := binary.LittleEndian.Uint32(s.Payload[8:12])
	value2 := binary.LittleEndian.Uint32(s.Payload[12:16])
	switch index {
	case 0:
		return Record{UTCMs: s.AnchorUTCMs, Value: value0}, nil
	case 1:
		return Record{UTCMs: s.AnchorUTCMs + uint64(delta1), Value: value1}, nil
	default:
		return Record{UTCMs: s.AnchorUTCMs + uint64(delta2), Value: value2}, nil
	}
}
