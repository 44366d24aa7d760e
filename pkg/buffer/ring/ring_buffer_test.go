package ring

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type shortWriter struct {
	limit int
	buf   bytes.Buffer
}

func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > w.limit {
		p = p[:w.limit]
	}
	w.limit -= len(p)
	return w.buf.Write(p)
}

func TestBufferWriteAndDrain(t *testing.T) {
	rb := New(8)
	assert.Equal(t, 8, rb.Cap())
	assert.True(t, rb.IsEmpty())

	n, err := rb.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	require.NoError(t, rb.WriteByte('!'))
	assert.Equal(t, 6, rb.Buffered())
	assert.Equal(t, []byte("hello!"), rb.Bytes())

	var out bytes.Buffer
	written, err := rb.WriteTo(&out)
	require.NoError(t, err)
	assert.EqualValues(t, 6, written)
	assert.Equal(t, "hello!", out.String())
	assert.True(t, rb.IsEmpty())

	_, err = rb.WriteTo(&out)
	assert.ErrorIs(t, err, ErrIsEmpty)
}

func TestBufferWrapAround(t *testing.T) {
	rb := New(8)
	_, _ = rb.Write([]byte("abcdef"))

	sw := &shortWriter{limit: 4}
	n, err := rb.WriteTo(sw)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.EqualValues(t, 4, n)
	assert.Equal(t, 2, rb.Buffered())

	// 写指针越过尾部回绕。
	_, _ = rb.Write([]byte("ghijk"))
	assert.Equal(t, 7, rb.Buffered())
	head, tail := rb.Peek()
	assert.NotEmpty(t, tail)
	assert.Equal(t, "efghijk", string(head)+string(tail))

	var out bytes.Buffer
	_, err = rb.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, "efghijk", out.String())
}

func TestBufferGrow(t *testing.T) {
	rb := New(0)
	payload := bytes.Repeat([]byte{0xab}, 3000)
	_, _ = rb.Write(payload[:10])
	_, _ = rb.Write(payload[10:])
	assert.Equal(t, 3000, rb.Buffered())
	assert.GreaterOrEqual(t, rb.Cap(), 3000)
	assert.Equal(t, payload, rb.Bytes())

	rb.Reset()
	assert.Equal(t, 0, rb.Buffered())
	assert.Nil(t, rb.Bytes())
}
