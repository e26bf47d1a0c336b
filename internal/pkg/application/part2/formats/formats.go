// Package formats holds the observation result codecs. Each codec is
// keyed by the observation format tag of a datastream schema and
// translates between the wire representation of a result and the bytes
// stored in the time-series store.
package formats

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sync"
)

const (
	// FormatJSON stores arbitrary results as textual JSON.
	FormatJSON = "application/om+json"
	// FormatScalar stores a single numeric result as a 4-byte
	// big-endian float32.
	FormatScalar = "application/om+json;type=scalar"
)

// Codec translates one observation result between its wire form and
// its stored form.
type Codec interface {
	Decode(result any) ([]byte, error)
	Encode(stored []byte) (any, error)
}

// Registry maps observation format tags to codecs. New formats can be
// registered without touching the provider.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

func NewRegistry() *Registry {
	r := &Registry{codecs: map[string]Codec{}}
	r.Register(FormatJSON, &jsonCodec{})
	r.Register(FormatScalar, &scalarCodec{})
	return r
}

func (r *Registry) Register(format string, codec Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[format] = codec
}

func (r *Registry) Lookup(format string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codec, ok := r.codecs[format]
	if !ok {
		return nil, fmt.Errorf("no codec registered for format %s", format)
	}

	return codec, nil
}

type scalarCodec struct{}

func (c *scalarCodec) Decode(result any) ([]byte, error) {
	value, ok := result.(float64)
	if !ok {
		return nil, fmt.Errorf("scalar result must be numeric, got %T", result)
	}

	stored := make([]byte, 4)
	binary.BigEndian.PutUint32(stored, math.Float32bits(float32(value)))
	return stored, nil
}

func (c *scalarCodec) Encode(stored []byte) (any, error) {
	if len(stored) != 4 {
		return nil, fmt.Errorf("scalar payload must be 4 bytes, got %d", len(stored))
	}

	value := float64(math.Float32frombits(binary.BigEndian.Uint32(stored)))
	return math.Round(value*1000) / 1000, nil
}

type jsonCodec struct{}

func (c *jsonCodec) Decode(result any) ([]byte, error) {
	return json.Marshal(result)
}

func (c *jsonCodec) Encode(stored []byte) (any, error) {
	var result any
	if err := json.Unmarshal(stored, &result); err != nil {
		return nil, err
	}
	return result, nil
}
