package element

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ColumnType identifies the on-wire shape of one Buffer column.
type ColumnType uint8

const (
	ColBool ColumnType = iota
	ColI8
	ColI16
	ColI32
	ColI64
	ColU8
	ColU16
	ColU32
	ColU64
	ColF32
	ColF64
	ColBytes
	ColString
)

// FixedWidth returns the on-wire size of fixed-width column types, and false
// for the variable-length kinds (ColBytes, ColString).
func (t ColumnType) FixedWidth() (int, bool) {
	switch t {
	case ColBool, ColI8, ColU8:
		return 1, true
	case ColI16, ColU16:
		return 2, true
	case ColI32, ColU32, ColF32:
		return 4, true
	case ColI64, ColU64, ColF64:
		return 8, true
	default:
		return 0, false
	}
}

// Schema describes the ordered columns of a Buffer, external to the row
// bytes themselves (the wire format carries no type tags per column).
type Schema []ColumnType

// Buffer is the schema-typed payload carried by a Record: fixed-width
// columns concatenated in schema order, with BYTES/STRING columns
// length-prefixed (u32, big-endian) ahead of their bytes.
type Buffer struct {
	data []byte
}

// NewBuffer wraps raw already-encoded column bytes (e.g. from the wire).
func NewBuffer(data []byte) Buffer {
	return Buffer{data: data}
}

// Bytes returns the raw encoded column bytes.
func (b Buffer) Bytes() []byte { return b.data }

// Writer sequentially appends columns to a Buffer in schema order.
type Writer struct {
	schema Schema
	next   int
	buf    []byte
}

// NewWriter starts building a Buffer against schema; columns must be set in
// schema order via the SetX methods.
func NewWriter(schema Schema) *Writer {
	return &Writer{schema: schema, buf: make([]byte, 0, 64)}
}

func (w *Writer) expect(t ColumnType) error {
	if w.next >= len(w.schema) {
		return fmt.Errorf("element: buffer writer: no more columns in schema (wrote %d)", w.next)
	}
	if w.schema[w.next] != t {
		return fmt.Errorf("element: buffer writer: column %d is %v, not %v", w.next, w.schema[w.next], t)
	}
	w.next++
	return nil
}

func (w *Writer) SetBool(v bool) error {
	if err := w.expect(ColBool); err != nil {
		return err
	}
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	return nil
}

func (w *Writer) SetI8(v int8) error {
	if err := w.expect(ColI8); err != nil {
		return err
	}
	w.buf = append(w.buf, byte(v))
	return nil
}

func (w *Writer) SetU8(v uint8) error {
	if err := w.expect(ColU8); err != nil {
		return err
	}
	w.buf = append(w.buf, v)
	return nil
}

func (w *Writer) SetI16(v int16) error {
	if err := w.expect(ColI16); err != nil {
		return err
	}
	return w.putU16(uint16(v))
}

func (w *Writer) SetU16(v uint16) error {
	if err := w.expect(ColU16); err != nil {
		return err
	}
	return w.putU16(v)
}

func (w *Writer) putU16(v uint16) error {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return nil
}

func (w *Writer) SetI32(v int32) error {
	if err := w.expect(ColI32); err != nil {
		return err
	}
	return w.putU32(uint32(v))
}

func (w *Writer) SetU32(v uint32) error {
	if err := w.expect(ColU32); err != nil {
		return err
	}
	return w.putU32(v)
}

func (w *Writer) putU32(v uint32) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return nil
}

func (w *Writer) SetI64(v int64) error {
	if err := w.expect(ColI64); err != nil {
		return err
	}
	return w.putU64(uint64(v))
}

func (w *Writer) SetU64(v uint64) error {
	if err := w.expect(ColU64); err != nil {
		return err
	}
	return w.putU64(v)
}

func (w *Writer) putU64(v uint64) error {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return nil
}

func (w *Writer) SetF32(v float32) error {
	if err := w.expect(ColF32); err != nil {
		return err
	}
	return w.putU32(math.Float32bits(v))
}

func (w *Writer) SetF64(v float64) error {
	if err := w.expect(ColF64); err != nil {
		return err
	}
	return w.putU64(math.Float64bits(v))
}

func (w *Writer) SetBytes(v []byte) error {
	if err := w.expect(ColBytes); err != nil {
		return err
	}
	return w.putVarLen(v)
}

func (w *Writer) SetString(v string) error {
	if err := w.expect(ColString); err != nil {
		return err
	}
	return w.putVarLen([]byte(v))
}

func (w *Writer) putVarLen(v []byte) error {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(v)))
	w.buf = append(w.buf, tmp[:]...)
	w.buf = append(w.buf, v...)
	return nil
}

// Finish returns the completed Buffer. It is an error to finish before every
// schema column has been set.
func (w *Writer) Finish() (Buffer, error) {
	if w.next != len(w.schema) {
		return Buffer{}, fmt.Errorf("element: buffer writer: only %d of %d columns set", w.next, len(w.schema))
	}
	return Buffer{data: w.buf}, nil
}

// Reader provides random-ordinal access to a Buffer's columns. Offsets for
// every column are computed once, up front, by a single forward scan driven
// by schema (variable-length columns shift the offsets of everything after
// them, so random access without a schema is not possible).
type Reader struct {
	schema  Schema
	data    []byte
	offsets []int // start offset of column i
	lens    []int // byte length of column i (post length-prefix, for var columns)
}

// NewReader builds a Reader over buf against schema.
func NewReader(schema Schema, buf Buffer) (*Reader, error) {
	r := &Reader{schema: schema, data: buf.data, offsets: make([]int, len(schema)), lens: make([]int, len(schema))}
	pos := 0
	for i, ct := range schema {
		if pos > len(r.data) {
			return nil, fmt.Errorf("element: buffer reader: truncated buffer at column %d", i)
		}
		r.offsets[i] = pos
		if width, fixed := ct.FixedWidth(); fixed {
			r.lens[i] = width
			pos += width
			continue
		}
		if pos+4 > len(r.data) {
			return nil, fmt.Errorf("element: buffer reader: truncated length prefix at column %d", i)
		}
		l := int(binary.BigEndian.Uint32(r.data[pos : pos+4]))
		r.offsets[i] = pos + 4
		r.lens[i] = l
		pos = pos + 4 + l
	}
	if pos > len(r.data) {
		return nil, fmt.Errorf("element: buffer reader: truncated buffer (want %d bytes, have %d)", pos, len(r.data))
	}
	return r, nil
}

func (r *Reader) check(ordinal int, t ColumnType) error {
	if ordinal < 0 || ordinal >= len(r.schema) {
		return fmt.Errorf("element: buffer reader: ordinal %d out of range", ordinal)
	}
	if r.schema[ordinal] != t {
		return fmt.Errorf("element: buffer reader: column %d is %v, not %v", ordinal, r.schema[ordinal], t)
	}
	return nil
}

func (r *Reader) slice(ordinal int) []byte {
	off := r.offsets[ordinal]
	return r.data[off : off+r.lens[ordinal]]
}

func (r *Reader) GetBool(ordinal int) (bool, error) {
	if err := r.check(ordinal, ColBool); err != nil {
		return false, err
	}
	return r.slice(ordinal)[0] != 0, nil
}

func (r *Reader) GetI8(ordinal int) (int8, error) {
	if err := r.check(ordinal, ColI8); err != nil {
		return 0, err
	}
	return int8(r.slice(ordinal)[0]), nil
}

func (r *Reader) GetU8(ordinal int) (uint8, error) {
	if err := r.check(ordinal, ColU8); err != nil {
		return 0, err
	}
	return r.slice(ordinal)[0], nil
}

func (r *Reader) GetI16(ordinal int) (int16, error) {
	if err := r.check(ordinal, ColI16); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(r.slice(ordinal))), nil
}

func (r *Reader) GetU16(ordinal int) (uint16, error) {
	if err := r.check(ordinal, ColU16); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.slice(ordinal)), nil
}

func (r *Reader) GetI32(ordinal int) (int32, error) {
	if err := r.check(ordinal, ColI32); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.slice(ordinal))), nil
}

func (r *Reader) GetU32(ordinal int) (uint32, error) {
	if err := r.check(ordinal, ColU32); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.slice(ordinal)), nil
}

func (r *Reader) GetI64(ordinal int) (int64, error) {
	if err := r.check(ordinal, ColI64); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.slice(ordinal))), nil
}

func (r *Reader) GetU64(ordinal int) (uint64, error) {
	if err := r.check(ordinal, ColU64); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(r.slice(ordinal)), nil
}

func (r *Reader) GetF32(ordinal int) (float32, error) {
	if err := r.check(ordinal, ColF32); err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.BigEndian.Uint32(r.slice(ordinal))), nil
}

func (r *Reader) GetF64(ordinal int) (float64, error) {
	if err := r.check(ordinal, ColF64); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(r.slice(ordinal))), nil
}

func (r *Reader) GetBytes(ordinal int) ([]byte, error) {
	if err := r.check(ordinal, ColBytes); err != nil {
		return nil, err
	}
	return r.slice(ordinal), nil
}

func (r *Reader) GetString(ordinal int) (string, error) {
	if err := r.check(ordinal, ColString); err != nil {
		return "", err
	}
	return string(r.slice(ordinal)), nil
}
