package hash

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// DigestLengthBytes is the length of the output of Sum.
const DigestLengthBytes = 64

// Hash is the hash function used to derive binding factors and proof challenges.
//
// Internally, this is a wrapper around blake3, whose extendable output lets
// callers read as many bytes as they need.
type Hash struct {
	h *blake3.Hasher
}

// New creates a Hash struct, writing the given initial data with domain separation.
func New(initialData ...WriterToWithDomain) *Hash {
	hash := &Hash{h: blake3.New()}
	for _, d := range initialData {
		_ = hash.WriteAny(d)
	}
	return hash
}

// Digest returns a reader for the current output of the function.
//
// This finalizes the current state of the hash, and returns what's
// essentially a stream of random bytes.
func (hash *Hash) Digest() io.Reader {
	return hash.h.Digest()
}

// Sum returns a slice of length DigestLengthBytes resulting from the current hash state.
// If a different length is required, use io.ReadFull(hash.Digest(), out) instead.
func (hash *Hash) Sum() []byte {
	out := make([]byte, DigestLengthBytes)
	if _, err := io.ReadFull(hash.Digest(), out); err != nil {
		panic(fmt.Sprintf("hash.Sum: internal hash failure: %v", err))
	}
	return out
}

// WriteAny takes many different data types and writes them to the hash state.
//
// Currently supported types:
//
//   - []byte
//   - uint16
//   - hash.WriterToWithDomain
//
// This function will apply its own domain separation for the first two types.
// The last type already suggests which domain to use, and this function respects it.
func (hash *Hash) WriteAny(data ...interface{}) error {
	for _, d := range data {
		var toBeWritten WriterToWithDomain
		switch t := d.(type) {
		case []byte:
			toBeWritten = &BytesWithDomain{TheDomain: "[]byte", Bytes: t}
		case uint16:
			buf := make([]byte, 2)
			binary.BigEndian.PutUint16(buf, t)
			toBeWritten = &BytesWithDomain{TheDomain: "uint16", Bytes: buf}
		case WriterToWithDomain:
			toBeWritten = t
		default:
			panic(fmt.Sprintf("hash.Hash: unsupported type %T", d))
		}
		if err := writeWithDomain(hash.h, toBeWritten); err != nil {
			return fmt.Errorf("hash.Hash: write %s: %w", toBeWritten.Domain(), err)
		}
	}
	return nil
}

// Clone returns a copy of the Hash in its current state.
func (hash *Hash) Clone() *Hash {
	return &Hash{h: hash.h.Clone()}
}

// writeWithDomain writes the domain, the data, and then the length of the data,
// so that two different sequences of writes never produce the same stream.
func writeWithDomain(w io.Writer, data WriterToWithDomain) error {
	domain := []byte(data.Domain())
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(domain)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(domain); err != nil {
		return err
	}
	n, err := data.WriteTo(w)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(lenBuf[:], uint64(n))
	_, err = w.Write(lenBuf[:])
	return err
}
