package ringbuffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoolGetPut(t *testing.T) {
	var p Pool
	rb := p.Get()
	assert.NotNil(t, rb)
	_, _ = rb.Write([]byte("payload"))
	p.Put(rb)

	again := p.Get()
	assert.Equal(t, 0, again.Buffered())
	p.Put(again)
}

func TestIndex(t *testing.T) {
	assert.Equal(t, 0, index(0))
	assert.Equal(t, 0, index(64))
	assert.Equal(t, 1, index(128))
	assert.Equal(t, steps-1, index(1<<40))
}

func TestCalibrate(t *testing.T) {
	var p Pool
	p.calls[index(4096)] = calibrateCallsThreshold
	p.calibrate()
	assert.EqualValues(t, 4096, p.defaultSize)
	assert.GreaterOrEqual(t, p.maxSize, p.defaultSize)
}
