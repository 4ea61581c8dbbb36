// Copyright 2026 The Vigil Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer widths, no indefinite-length
// items. The same logical value always produces the same bytes, which
// keeps export archives comparable and socket traffic canonical.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so older
// clients keep working against newer daemons.
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Vigil map keys are always strings. any-typed decode targets
		// get map[string]any instead of the CBOR default
		// map[interface{}]interface{}, which nothing downstream (JSON
		// re-encoding, CLI printing) can digest.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v with the deterministic encoder.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Encoder aliases the stream encoder so callers import only lib/codec.
type Encoder = cbor.Encoder

// Decoder aliases the stream decoder so callers import only lib/codec.
type Decoder = cbor.Decoder

// RawMessage is an undecoded CBOR value, used to defer decoding of
// action-specific request fields until the handler knows the type.
type RawMessage = cbor.RawMessage

// NewEncoder returns a stream encoder writing to w with the standard
// deterministic configuration.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a stream decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
