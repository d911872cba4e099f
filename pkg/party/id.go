package party

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/taurusgroup/frost-bridge/pkg/math/curve"
)

// ID represents the identifier of a participant in a threshold ceremony.
//
// Identifiers are 1-based and double as the evaluation point of the
// participant's secret share, so the zero value is never a valid ID.
type ID uint16

// Scalar converts this ID into a scalar.
func (id ID) Scalar() *curve.Scalar {
	return curve.NewScalarUInt32(uint32(id))
}

// Validate returns an error if id cannot be used as an evaluation point.
func (id ID) Validate() error {
	if id == 0 {
		return fmt.Errorf("party: identifier must be non-zero")
	}
	return nil
}

// String returns a base 10 representation of ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// WriteTo makes ID implement the io.WriterTo interface.
func (id ID) WriteTo(w io.Writer) (int64, error) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(id))
	n, err := w.Write(buf[:])
	return int64(n), err
}

// Domain implements hash.WriterToWithDomain.
func (ID) Domain() string {
	return "ID"
}

// IDFromString reads a base 10 string and attempts to generate an ID from it.
func IDFromString(str string) (ID, error) {
	p, err := strconv.ParseUint(str, 10, 16)
	if err != nil {
		return 0, err
	}
	id := ID(p)
	if err = id.Validate(); err != nil {
		return 0, err
	}
	return id, nil
}
