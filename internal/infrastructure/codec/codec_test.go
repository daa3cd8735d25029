package codec

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"title":"Harbor Walk","type":"tour_360"}`, 50))

	encoded, err := Encode(payload)
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(encoded, &envelope))
	assert.Equal(t, EncodingDeflate, envelope.Encoding)
	assert.Less(t, len(envelope.Bytes), len(payload), "repetitive payload should shrink")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestEncodeDecodeJSONRoundTrip(t *testing.T) {
	type tour struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	encoded, err := EncodeJSON(tour{ID: "t1", Title: "Harbor Walk"})
	require.NoError(t, err)

	var got tour
	require.NoError(t, DecodeJSON(encoded, &got))
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "Harbor Walk", got.Title)
}

func TestDecodeLegacyUncompressedPayload(t *testing.T) {
	// Payloads written before the envelope was introduced are plain JSON.
	legacy := []byte(`{"id":"t1","title":"Harbor Walk"}`)

	decoded, err := Decode(legacy)
	require.NoError(t, err)
	assert.Equal(t, legacy, decoded)

	var got map[string]string
	require.NoError(t, DecodeJSON(legacy, &got))
	assert.Equal(t, "t1", got["id"])
}

func TestDecodeUnknownEncoding(t *testing.T) {
	envelope, err := json.Marshal(Envelope{Encoding: "gzip", Bytes: []byte("x")})
	require.NoError(t, err)

	_, err = Decode(envelope)
	assert.Error(t, err)
}

func TestDecodeIdempotentForRawEnvelope(t *testing.T) {
	payload := []byte("short")

	encoded, err := Encode(payload)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}
