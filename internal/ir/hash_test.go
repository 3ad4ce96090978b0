package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlake2b256KnownVector(t *testing.T) {
	id := Blake2b256{}.Sum(nil)
	assert.Equal(t, "0e5751c026e543b2e8ab2eb06099daa1d1e5df47778f7787faab45cdf12fe3a8", id.String())
}

func TestHasherDeterminism(t *testing.T) {
	for _, name := range []string{HashBlake2b256, HashSHA256} {
		t.Run(name, func(t *testing.T) {
			h, err := NewHasher(name)
			require.NoError(t, err)
			assert.Equal(t, name, h.Name())

			id1 := h.Sum([]byte("degree:BSc"))
			id2 := h.Sum([]byte("degree:BSc"))
			id3 := h.Sum([]byte("degree:MSc"))

			assert.Equal(t, id1, id2, "hash must be deterministic")
			assert.NotEqual(t, id1, id3)
			assert.Len(t, id1.String(), 64)
		})
	}
}

func TestHashersDisagree(t *testing.T) {
	payload := []byte("same bytes")
	assert.NotEqual(t, Blake2b256{}.Sum(payload), DomainSHA256{Domain: DomainRecord}.Sum(payload))
}

func TestDomainSeparation(t *testing.T) {
	payload := []byte("x")
	a := DomainSHA256{Domain: "a"}.Sum(payload)
	b := DomainSHA256{Domain: "b"}.Sum(payload)
	assert.NotEqual(t, a, b)
}

func TestNewHasherDefaultsAndUnknown(t *testing.T) {
	h, err := NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, HashBlake2b256, h.Name())

	_, err = NewHasher("md5")
	assert.ErrorContains(t, err, "unknown hash algorithm")
}
