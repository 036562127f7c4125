// Package json wraps sonic for hot JSON paths.
// sonic is only used on amd64/arm64; other platforms use encoding/json.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

var (
	// Marshal encodes v into JSON bytes.
	Marshal func(v any) ([]byte, error)

	// MarshalIndent encodes v with indentation, used for prompt rendering.
	MarshalIndent func(v any, prefix, indent string) ([]byte, error)

	// Unmarshal decodes JSON bytes into v.
	Unmarshal func(data []byte, v any) error

	// Valid reports whether data is valid JSON.
	Valid func(data []byte) bool

	// NewEncoder creates a JSON encoder for w.
	NewEncoder func(w io.Writer) Encoder

	// NewDecoder creates a JSON decoder for r.
	NewDecoder func(r io.Reader) Decoder

	usingSonic bool
)

// Encoder is a JSON stream encoder.
type Encoder interface {
	Encode(v any) error
}

// Decoder is a JSON stream decoder.
type Decoder interface {
	Decode(v any) error
}

func init() {
	if runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64" {
		// ConfigStd keeps map key ordering and HTML escaping identical to encoding/json,
		// prompts embed marshaled payloads and must stay byte-stable.
		api := sonic.ConfigStd
		Marshal = api.Marshal
		MarshalIndent = api.MarshalIndent
		Unmarshal = api.Unmarshal
		Valid = api.Valid
		NewEncoder = func(w io.Writer) Encoder { return api.NewEncoder(w) }
		NewDecoder = func(r io.Reader) Decoder { return api.NewDecoder(r) }
		usingSonic = true
		return
	}

	Marshal = stdjson.Marshal
	MarshalIndent = stdjson.MarshalIndent
	Unmarshal = stdjson.Unmarshal
	Valid = stdjson.Valid
	NewEncoder = func(w io.Writer) Encoder { return stdjson.NewEncoder(w) }
	NewDecoder = func(r io.Reader) Decoder { return stdjson.NewDecoder(r) }
}

// IsUsingSonic reports whether sonic backs this package.
func IsUsingSonic() bool {
	return usingSonic
}

// MarshalString encodes v and returns it as a string, "" on failure.
func MarshalString(v any) string {
	b, err := Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
