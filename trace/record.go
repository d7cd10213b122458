// Package trace reads the fixed 24-byte memory-reference records that
// drive the simulator.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reference is one memory access: program counter, effective address,
// access size, and a read/write flag. Its on-disk layout is a fixed
// 24-byte little-endian record with no padding, matching
// original_source/common.h's MEMREF.
type Reference struct {
	PC     uint64
	EA     uint64
	Size   uint32
	IsRead uint32
}

// recordSize is the on-disk size of one Reference, mirroring MEMREF's
// static_assert(sizeof(MEMREF) == 24).
const recordSize = 24

func init() {
	var r Reference
	if n := binary.Size(r); n != recordSize {
		panic(fmt.Sprintf("trace: Reference encodes to %d bytes, want %d", n, recordSize))
	}
}

func decodeReference(b []byte) Reference {
	return Reference{
		PC:     binary.LittleEndian.Uint64(b[0:8]),
		EA:     binary.LittleEndian.Uint64(b[8:16]),
		Size:   binary.LittleEndian.Uint32(b[16:20]),
		IsRead: binary.LittleEndian.Uint32(b[20:24]),
	}
}

// ReadAllWithWarnings reads every complete 24-byte record from r. A
// trailing partial record is skipped and reported through warn rather than
// treated as an error, per the trace format's bit-exact contract. warn may
// be nil to discard warnings.
func ReadAllWithWarnings(r io.Reader, warn func(string)) ([]Reference, error) {
	var refs []Reference
	buf := make([]byte, recordSize)

	for {
		n, err := io.ReadFull(r, buf)
		switch {
		case err == io.EOF:
			return refs, nil
		case err == io.ErrUnexpectedEOF:
			if warn != nil {
				warn(fmt.Sprintf("trace: skipping trailing partial record (%d of %d bytes)", n, recordSize))
			}
			return refs, nil
		case err != nil:
			return nil, fmt.Errorf("trace: reading record: %w", err)
		}
		refs = append(refs, decodeReference(buf))
	}
}

// ReadAll reads every complete record from r, discarding any warning about
// a trailing partial record.
func ReadAll(r io.Reader) ([]Reference, error) {
	return ReadAllWithWarnings(r, nil)
}

// Batches splits refs into chunks of at most size references, preserving
// order. It is a driver-side optimization only: per-reference semantics
// are unaffected by batch boundaries.
func Batches(refs []Reference, size int) [][]Reference {
	if size <= 0 {
		size = len(refs)
	}
	if len(refs) == 0 {
		return nil
	}

	var batches [][]Reference
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		batches = append(batches, refs[start:end])
	}
	return batches
}
