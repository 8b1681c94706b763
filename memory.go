package runevm

import (
	"encoding/binary"
	"math"

	"github.com/venkatezh-13/rune/trap"
)

// MemoryPageSize is the size of one linear-memory page in bytes.
const MemoryPageSize = 65536

// Memory is the linear memory of one instance: a byte buffer whose length is
// always a whole number of pages, zero-initialized, growable up to an
// optional maximum and never shrunk.
type Memory struct {
	buffer []byte
	// maxPages is 0 when the memory is unbounded.
	maxPages uint32
}

// NewMemory allocates a zeroed memory of initialPages pages. maxPages of 0
// means unbounded.
func NewMemory(initialPages, maxPages uint32) *Memory {
	return &Memory{
		buffer:   make([]byte, uint64(initialPages)*MemoryPageSize),
		maxPages: maxPages,
	}
}

// Size returns the current size in bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.buffer)) }

// Pages returns the current size in pages.
func (m *Memory) Pages() uint32 { return uint32(len(m.buffer) / MemoryPageSize) }

// MaxPages returns the configured maximum and true, or false when unbounded.
func (m *Memory) MaxPages() (uint32, bool) { return m.maxPages, m.maxPages != 0 }

// Grow extends the memory by delta pages and returns the prior page count.
// It fails with OutOfMemory when the result would exceed the maximum. Grown
// pages read as zero.
func (m *Memory) Grow(delta uint32) (uint32, error) {
	oldPages := m.Pages()
	newPages := uint64(oldPages) + uint64(delta)
	if m.maxPages != 0 && newPages > uint64(m.maxPages) {
		return 0, trap.ErrOutOfMemory
	}
	grown := make([]byte, newPages*MemoryPageSize)
	copy(grown, m.buffer)
	m.buffer = grown
	return oldPages, nil
}

// check validates offset+length against the current buffer, guarding the
// addition against wraparound.
func (m *Memory) check(offset uint64, length uint64) error {
	end := offset + length
	if end < offset || end > uint64(len(m.buffer)) {
		return trap.ErrOutOfBounds
	}
	return nil
}

// ReadByte reads one byte at offset.
func (m *Memory) ReadByte(offset uint64) (byte, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.buffer[offset], nil
}

// ReadUint32Le reads a little-endian uint32 at offset.
func (m *Memory) ReadUint32Le(offset uint64) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buffer[offset:]), nil
}

// ReadInt32Le reads a little-endian int32 at offset.
func (m *Memory) ReadInt32Le(offset uint64) (int32, error) {
	v, err := m.ReadUint32Le(offset)
	return int32(v), err
}

// ReadUint64Le reads a little-endian uint64 at offset.
func (m *Memory) ReadUint64Le(offset uint64) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.buffer[offset:]), nil
}

// ReadInt64Le reads a little-endian int64 at offset.
func (m *Memory) ReadInt64Le(offset uint64) (int64, error) {
	v, err := m.ReadUint64Le(offset)
	return int64(v), err
}

// ReadFloat32Le reads a little-endian float32 at offset. The bit pattern is
// preserved, NaN payloads included.
func (m *Memory) ReadFloat32Le(offset uint64) (float32, error) {
	v, err := m.ReadUint32Le(offset)
	return math.Float32frombits(v), err
}

// ReadFloat64Le reads a little-endian float64 at offset. The bit pattern is
// preserved, NaN payloads included.
func (m *Memory) ReadFloat64Le(offset uint64) (float64, error) {
	v, err := m.ReadUint64Le(offset)
	return math.Float64frombits(v), err
}

// Bytes returns a view of length bytes at offset. The slice aliases the
// memory buffer until the next Grow; callers that retain it must copy.
func (m *Memory) Bytes(offset, length uint64) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.buffer[offset : offset+length], nil
}

// WriteByte writes one byte at offset.
func (m *Memory) WriteByte(offset uint64, v byte) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.buffer[offset] = v
	return nil
}

// WriteUint32Le writes a little-endian uint32 at offset.
func (m *Memory) WriteUint32Le(offset uint64, v uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buffer[offset:], v)
	return nil
}

// WriteInt32Le writes a little-endian int32 at offset.
func (m *Memory) WriteInt32Le(offset uint64, v int32) error {
	return m.WriteUint32Le(offset, uint32(v))
}

// WriteUint64Le writes a little-endian uint64 at offset.
func (m *Memory) WriteUint64Le(offset uint64, v uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.buffer[offset:], v)
	return nil
}

// WriteInt64Le writes a little-endian int64 at offset.
func (m *Memory) WriteInt64Le(offset uint64, v int64) error {
	return m.WriteUint64Le(offset, uint64(v))
}

// WriteFloat32Le writes a little-endian float32 at offset, bit pattern
// preserved.
func (m *Memory) WriteFloat32Le(offset uint64, v float32) error {
	return m.WriteUint32Le(offset, math.Float32bits(v))
}

// WriteFloat64Le writes a little-endian float64 at offset, bit pattern
// preserved.
func (m *Memory) WriteFloat64Le(offset uint64, v float64) error {
	return m.WriteUint64Le(offset, math.Float64bits(v))
}

// WriteBytes copies data into memory at offset.
func (m *Memory) WriteBytes(offset uint64, data []byte) error {
	if err := m.check(offset, uint64(len(data))); err != nil {
		return err
	}
	copy(m.buffer[offset:], data)
	return nil
}
