package protocol

import "github.com/fxamacker/cbor/v2"

// encMode sorts map keys, so that equal values always encode to equal bytes.
// Times keep their nanoseconds.
var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v with CBOR core deterministic encoding.
func Marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
