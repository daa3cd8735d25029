// Package codec provides the reversible compression envelope applied to
// structured payloads before they are persisted.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/simbavista/tour360-go/internal/domain/storageerr"
)

// Encoding identifies how the envelope bytes were stored.
type Encoding string

const (
	EncodingRaw     Encoding = "raw"
	EncodingDeflate Encoding = "deflate"
)

// Envelope wraps a payload with an explicit marker recording which form was
// actually stored, so reads never have to probe for compression.
type Envelope struct {
	Encoding Encoding `json:"encoding"`
	Bytes    []byte   `json:"bytes"`
}

// EncodeJSON marshals v and wraps it in a deflate envelope. On compression
// failure the payload is stored raw instead; the save never fails for that.
func EncodeJSON(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return Encode(payload)
}

// Encode wraps payload bytes in an envelope, deflating when possible.
func Encode(payload []byte) ([]byte, error) {
	env := Envelope{Encoding: EncodingDeflate}

	compressed, err := deflate(payload)
	if err != nil {
		// Absorbed per the error taxonomy: store raw and record the form.
		env.Encoding = EncodingRaw
		env.Bytes = payload
	} else {
		env.Bytes = compressed
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return out, nil
}

// Decode unwraps an envelope and returns the original payload bytes. Input
// that is not an envelope is treated as a legacy uncompressed payload and
// returned unchanged.
func Decode(data []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Encoding == "" {
		// Legacy record written before the envelope existed.
		return data, nil
	}

	switch env.Encoding {
	case EncodingRaw:
		return env.Bytes, nil
	case EncodingDeflate:
		payload, err := inflate(env.Bytes)
		if err != nil {
			return nil, storageerr.NewCompression(err)
		}
		return payload, nil
	default:
		return nil, storageerr.NewCompression(fmt.Errorf("unknown encoding %q", env.Encoding))
	}
}

// DecodeJSON unwraps an envelope and unmarshals the payload into v.
func DecodeJSON(data []byte, v any) error {
	payload, err := Decode(data)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

func deflate(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
