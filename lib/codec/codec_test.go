package codec

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string
	Count int
	Tags  []string
	When  time.Time
}

// point has a hand written binary layout (two big endian uint32)
type point struct {
	X, Y uint32
}

func (p *point) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], p.X)
	binary.BigEndian.PutUint32(b[4:8], p.Y)
	return b, nil
}

func (p *point) UnmarshalBinary(b []byte) error {
	if len(b) != 8 {
		return errors.New("point: expected 8 bytes")
	}
	p.X = binary.BigEndian.Uint32(b[0:4])
	p.Y = binary.BigEndian.Uint32(b[4:8])
	return nil
}

// panicky panics on any input when unmarshaled
type panicky struct{}

func (p *panicky) MarshalBinary() ([]byte, error) { return []byte{1}, nil }
func (p *panicky) UnmarshalBinary([]byte) error   { panic("broken unmarshaler") }

func TestRoundTrip(t *testing.T) {
	value := sample{
		Name:  "concert",
		Count: 3,
		Tags:  []string{"a", "b"},
		When:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	for _, c := range []Codec[sample]{JSON[sample](), GOB[sample](), Versioned(2, JSON[sample]())} {
		t.Run(c.Name(), func(t *testing.T) {
			b, err := c.Encode(value)
			require.NoError(t, err)

			decoded, err := c.Decode(b)
			require.NoError(t, err)
			assert.Equal(t, value.Name, decoded.Name)
			assert.Equal(t, value.Count, decoded.Count)
			assert.Equal(t, value.Tags, decoded.Tags)
			assert.True(t, value.When.Equal(decoded.When))
		})
	}

	t.Run("binary", func(t *testing.T) {
		c := Binary[point]()
		b, err := c.Encode(point{X: 7, Y: 42})
		require.NoError(t, err)
		assert.Len(t, b, 8)

		decoded, err := c.Decode(b)
		require.NoError(t, err)
		assert.Equal(t, point{X: 7, Y: 42}, decoded)
	})
}

func TestDecodeErrors(t *testing.T) {
	garbage := []byte{0xff, 0x00, 0x13}

	for _, c := range []Codec[sample]{JSON[sample](), GOB[sample](), Versioned(1, JSON[sample]())} {
		t.Run(c.Name(), func(t *testing.T) {
			_, err := c.Decode(garbage)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecode)
		})
	}

	t.Run("binary", func(t *testing.T) {
		_, err := Binary[point]().Decode(garbage)
		assert.ErrorIs(t, err, ErrDecode)
	})

	t.Run("binary panic", func(t *testing.T) {
		var err error
		assert.NotPanics(t, func() {
			_, err = Binary[panicky]().Decode(garbage)
		})
		assert.ErrorIs(t, err, ErrDecode)
	})
}

func TestVersioned(t *testing.T) {
	v1 := Versioned(1, JSON[sample]())
	v2 := Versioned(2, JSON[sample]())

	b, err := v1.Encode(sample{Name: "old"})
	require.NoError(t, err)
	assert.Equal(t, byte(1), b[0])

	_, err = v2.Decode(b)
	assert.ErrorIs(t, err, ErrDecode, "a different version must not decode")

	_, err = v2.Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)

	assert.Equal(t, "json/v2", v2.Name())
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "gob"} {
		c, err := ByName[sample](name)
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}

	c, err := ByName[point]("binary")
	require.NoError(t, err)
	assert.Equal(t, "binary", c.Name())

	_, err = ByName[sample]("binary")
	assert.Error(t, err, "sample has no binary methods")

	_, err = ByName[sample]("yaml")
	assert.Error(t, err)
}
