package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHash(t *testing.T) {
	// adler32("Wikipedia") is a well known reference value
	assert.Equal(t, uint32(0x11E60398), ContentHash([]byte("Wikipedia")))
	assert.Equal(t, uint32(1), ContentHash(nil))
	assert.NotEqual(t, ContentHash([]byte("a")), ContentHash([]byte("b")))
}

func TestContentHashReader(t *testing.T) {
	data := []byte("print('hello studio')\n")
	h, err := ContentHashReader(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ContentHash(data), h)
}
