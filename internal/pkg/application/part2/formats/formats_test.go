package formats

import (
	"bytes"
	"testing"

	"github.com/matryer/is"
)

func TestScalarRoundTrip(t *testing.T) {
	is := is.New(t)

	codec, err := NewRegistry().Lookup(FormatScalar)
	is.NoErr(err)

	stored, err := codec.Decode(23.5)
	is.NoErr(err)
	is.Equal(len(stored), 4)

	value, err := codec.Encode(stored)
	is.NoErr(err)
	is.Equal(value, 23.5)
}

func TestScalarEncodingIsDeterministic(t *testing.T) {
	is := is.New(t)

	codec := &scalarCodec{}

	first, err := codec.Decode(23.5)
	is.NoErr(err)
	second, err := codec.Decode(23.5)
	is.NoErr(err)

	is.True(bytes.Equal(first, second))
}

func TestScalarRoundsToThreeDecimals(t *testing.T) {
	is := is.New(t)

	codec := &scalarCodec{}

	stored, err := codec.Decode(23.456789)
	is.NoErr(err)

	value, err := codec.Encode(stored)
	is.NoErr(err)
	is.Equal(value, 23.457)
}

func TestScalarRejectsNonNumericResults(t *testing.T) {
	is := is.New(t)

	codec := &scalarCodec{}

	_, err := codec.Decode("not a number")
	is.True(err != nil)
}

func TestScalarRejectsWrongPayloadLength(t *testing.T) {
	is := is.New(t)

	codec := &scalarCodec{}

	_, err := codec.Encode([]byte{1, 2, 3})
	is.True(err != nil)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	is := is.New(t)

	codec, err := NewRegistry().Lookup(FormatJSON)
	is.NoErr(err)

	stored, err := codec.Decode(map[string]any{"speed": 3.5, "direction": "NW"})
	is.NoErr(err)

	value, err := codec.Encode(stored)
	is.NoErr(err)

	result := value.(map[string]any)
	is.Equal(result["speed"], 3.5)
	is.Equal(result["direction"], "NW")
}

func TestRegistryRejectsUnknownFormats(t *testing.T) {
	is := is.New(t)

	_, err := NewRegistry().Lookup("application/x-unknown")
	is.True(err != nil)
}

func TestRegistryAcceptsNewFormats(t *testing.T) {
	is := is.New(t)

	registry := NewRegistry()
	registry.Register("application/x-custom", &jsonCodec{})

	_, err := registry.Lookup("application/x-custom")
	is.NoErr(err)
}
