package element

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes e into its wire form: a one-byte Kind tag followed by
// the variant's fixed fields. Transient fields (ChannelKey, window
// metadata) are never encoded, nor is a StreamStatus's PartitionNum. All
// multi-byte integers are big-endian.
func Encode(e Element) ([]byte, error) {
	switch e.Kind {
	case KindRecord:
		return encodeRecord(e.Record), nil
	case KindWatermark:
		return encodeWatermark(e.Watermark), nil
	case KindStreamStatus:
		return encodeStreamStatus(e.StreamStatus), nil
	case KindBarrier:
		return encodeBarrier(e.Barrier), nil
	default:
		return nil, fmt.Errorf("element: encode: unknown kind %v", e.Kind)
	}
}

func encodeRecord(r *Record) []byte {
	values := r.Values.Bytes()
	buf := make([]byte, 0, 1+2+8+4+len(values))
	buf = append(buf, byte(KindRecord))
	buf = appendU16(buf, r.PartitionNum)
	buf = appendU64(buf, r.Timestamp)
	buf = appendU32(buf, uint32(len(values)))
	buf = append(buf, values...)
	return buf
}

func encodeWatermark(w *Watermark) []byte {
	buf := make([]byte, 0, 1+2+2+2+8+8)
	buf = append(buf, byte(KindWatermark))
	buf = appendU16(buf, w.PartitionNum)
	buf = appendU16(buf, w.TaskNumber)
	buf = appendU16(buf, w.NumTasks)
	buf = appendU64(buf, w.StatusTimestamp)
	buf = appendU64(buf, w.Timestamp)
	return buf
}

func encodeStreamStatus(s *StreamStatus) []byte {
	buf := make([]byte, 0, 1+1+8)
	buf = append(buf, byte(KindStreamStatus))
	if s.End {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = appendU64(buf, s.Timestamp)
	return buf
}

func encodeBarrier(b *Barrier) []byte {
	buf := make([]byte, 0, 1+2+8)
	buf = append(buf, byte(KindBarrier))
	buf = appendU16(buf, b.PartitionNum)
	buf = appendU64(buf, uint64(b.CheckpointID))
	return buf
}

// Decode parses a single Element from buf, which must contain exactly one
// encoded element (no trailing bytes). Use internal/transport's framing to
// split a byte stream into per-element slices before calling Decode.
func Decode(buf []byte) (Element, error) {
	if len(buf) < 1 {
		return Element{}, fmt.Errorf("element: decode: empty buffer")
	}
	kind := Kind(buf[0])
	body := buf[1:]
	switch kind {
	case KindRecord:
		return decodeRecord(body)
	case KindWatermark:
		return decodeWatermark(body)
	case KindStreamStatus:
		return decodeStreamStatus(body)
	case KindBarrier:
		return decodeBarrier(body)
	default:
		return Element{}, fmt.Errorf("element: decode: unknown wire tag %d", buf[0])
	}
}

func decodeRecord(body []byte) (Element, error) {
	if len(body) < 2+8+4 {
		return Element{}, fmt.Errorf("element: decode record: truncated header")
	}
	partition := binary.BigEndian.Uint16(body[0:2])
	ts := binary.BigEndian.Uint64(body[2:10])
	valueLen := binary.BigEndian.Uint32(body[10:14])
	rest := body[14:]
	if uint32(len(rest)) < valueLen {
		return Element{}, fmt.Errorf("element: decode record: truncated value (want %d, have %d)", valueLen, len(rest))
	}
	values := make([]byte, valueLen)
	copy(values, rest[:valueLen])
	return NewRecord(Record{
		PartitionNum: partition,
		Timestamp:    ts,
		Values:       NewBuffer(values),
	}), nil
}

func decodeWatermark(body []byte) (Element, error) {
	if len(body) < 2+2+2+8+8 {
		return Element{}, fmt.Errorf("element: decode watermark: truncated body")
	}
	partition := binary.BigEndian.Uint16(body[0:2])
	taskNo := binary.BigEndian.Uint16(body[2:4])
	numTasks := binary.BigEndian.Uint16(body[4:6])
	statusTs := binary.BigEndian.Uint64(body[6:14])
	ts := binary.BigEndian.Uint64(body[14:22])
	return NewWatermark(Watermark{
		PartitionNum:    partition,
		TaskNumber:      taskNo,
		NumTasks:        numTasks,
		StatusTimestamp: statusTs,
		Timestamp:       ts,
	}), nil
}

func decodeStreamStatus(body []byte) (Element, error) {
	if len(body) < 1+8 {
		return Element{}, fmt.Errorf("element: decode stream status: truncated body")
	}
	end := body[0] != 0
	ts := binary.BigEndian.Uint64(body[1:9])
	return NewStreamStatus(StreamStatus{End: end, Timestamp: ts}), nil
}

func decodeBarrier(body []byte) (Element, error) {
	if len(body) < 2+8 {
		return Element{}, fmt.Errorf("element: decode barrier: truncated body")
	}
	partition := binary.BigEndian.Uint16(body[0:2])
	id := binary.BigEndian.Uint64(body[2:10])
	return NewBarrier(Barrier{PartitionNum: partition, CheckpointID: CheckpointId(id)}), nil
}

func appendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
