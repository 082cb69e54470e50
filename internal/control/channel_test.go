package control

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, c *ByteChannel) string {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
	var got []byte
	for {
		b, ok := c.TryReadByte()
		if !ok {
			return string(got)
		}
		got = append(got, b)
	}
}

func TestByteChannel_ReadsInOrder(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	c := NewByteChannel(strings.NewReader("rcs"), &out)

	assert.Equal(t, "rcs", drain(t, c))
	assert.Equal(t, io.EOF, c.Err())
}

func TestByteChannel_EmptyDoesNotBlock(t *testing.T) {
	t.Parallel()
	r, w := io.Pipe()
	defer w.Close()
	c := NewByteChannel(r, io.Discard)

	b, ok := c.TryReadByte()
	assert.False(t, ok)
	assert.Zero(t, b)
}

func TestByteChannel_Write(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	c := NewByteChannel(strings.NewReader(""), &out)

	n, err := c.Write([]byte("Tare complete.\n"))
	require.NoError(t, err)
	assert.Equal(t, 15, n)
	assert.Equal(t, "Tare complete.\n", out.String())
}

func TestByteChannel_ReadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("port unplugged")
	r, w := io.Pipe()
	c := NewByteChannel(r, io.Discard)

	go func() {
		_, _ = w.Write([]byte("z"))
		_ = w.CloseWithError(boom)
	}()

	assert.Equal(t, "z", drain(t, c))
	assert.ErrorIs(t, c.Err(), boom)
}
