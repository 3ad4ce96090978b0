package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayload(t *testing.T) {
	assert.Len(t, Payload("a", 4096), 4096)
	assert.Equal(t, "ab..", string(Payload("ab", 4)))
	assert.Equal(t, "abc", string(Payload("abcdef", 3)))
	assert.NotEqual(t, Payload("a", 10), Payload("b", 10))
}
