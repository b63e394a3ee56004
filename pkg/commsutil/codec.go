package commsutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// ErrTrailingData is returned by DecodeFrame when a frame holds more than one JSON value.
var ErrTrailingData = errors.New("trailing data after JSON value")

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeFrame decodes exactly one JSON value from a wire frame.
// Numbers inside untyped values are kept as json.Number so integers survive unchanged.
func DecodeFrame(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return ErrTrailingData
	}
	return nil
}
