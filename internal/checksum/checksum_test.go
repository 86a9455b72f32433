package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateDeterminism(t *testing.T) {
	a := Create([]byte("hello"))
	b := Create([]byte("hello"))

	assert.Equal(t, a, b, "Create must be deterministic")
	assert.Len(t, a.String(), 64, "SHA-256 hex is 64 characters")
	assert.False(t, a.IsNull())
}

func TestCreateChangesWithInput(t *testing.T) {
	assert.NotEqual(t, Create([]byte("a")), Create([]byte("b")))
}

func TestCreateUsesDomainSeparation(t *testing.T) {
	plain := sha256.Sum256([]byte("data"))
	assert.NotEqual(t, hex.EncodeToString(plain[:]), Create([]byte("data")).String(),
		"domain prefix must change the digest")

	expected := sha256.Sum256([]byte(Domain + "\x00data"))
	assert.Equal(t, hex.EncodeToString(expected[:]), Create([]byte("data")).String())
}

func TestCreateFromStreamMatchesCreate(t *testing.T) {
	data := []byte(strings.Repeat("stream-", 10000))

	fromStream, err := CreateFromStream(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Create(data), fromStream)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestCreateFromStreamError(t *testing.T) {
	_, err := CreateFromStream(failingReader{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk gone")
}

func TestCreateForKindSeparatesKinds(t *testing.T) {
	payload := []byte("same payload")
	assert.NotEqual(t, CreateForKind(1, payload), CreateForKind(2, payload),
		"same payload under different kinds must not collide")
}

func TestCombineOrderMatters(t *testing.T) {
	c1 := Create([]byte("1"))
	c2 := Create([]byte("2"))

	assert.Equal(t, Combine(7, c1, c2), Combine(7, c1, c2))
	assert.NotEqual(t, Combine(7, c1, c2), Combine(7, c2, c1))
	assert.NotEqual(t, Combine(7, c1, c2), Combine(8, c1, c2))
}

func TestCombineEmpty(t *testing.T) {
	assert.Equal(t, Combine(3), Combine(3))
	assert.NotEqual(t, Combine(3), Combine(4))
}

func TestNull(t *testing.T) {
	var zero Checksum
	assert.True(t, zero.IsNull())
	assert.True(t, Null.IsNull())
	assert.Equal(t, strings.Repeat("0", 64), Null.String())
}

func TestFromBytesRoundTrip(t *testing.T) {
	c := Create([]byte("x"))

	back, err := FromBytes(c.Bytes())
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	_, err := FromBytes([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestBytesReturnsCopy(t *testing.T) {
	c := Create([]byte("x"))
	b := c.Bytes()
	b[0] ^= 0xff
	assert.NotEqual(t, b, c.Bytes(), "mutating the copy must not affect the checksum")
}

func TestParseRoundTrip(t *testing.T) {
	c := Create([]byte("parse"))

	parsed, err := Parse(c.String())
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = Parse("not-hex")
	require.Error(t, err)

	_, err = Parse("abcd")
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("zz") })
}

func TestTextMarshaling(t *testing.T) {
	c := Create([]byte("text"))
	text, err := c.MarshalText()
	require.NoError(t, err)

	var back Checksum
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, c, back)
}

func TestChecksumAsMapKey(t *testing.T) {
	m := map[Checksum]int{}
	m[Create([]byte("k"))] = 1
	m[Create([]byte("k"))]++
	assert.Equal(t, 2, m[Create([]byte("k"))])
}

func TestSet(t *testing.T) {
	a, b := Create([]byte("a")), Create([]byte("b"))
	s := NewSet(a)
	s.Add(b)

	assert.True(t, s.Has(a))
	assert.True(t, s.Has(b))
	assert.Len(t, s.Slice(), 2)

	s.Remove(a)
	assert.False(t, s.Has(a))
}
