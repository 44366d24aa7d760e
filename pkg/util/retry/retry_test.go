package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"

	"github.com/lk2023060901/garden-objstream/pkg/util/merr"
)

func TestDoSucceedsAfterRetryableFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return merr.WrapErrImportFailed("/meshes/box.mesh", "Mesh", nil)
		}
		return nil
	}, Attempts(5), Sleep(time.Millisecond))
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return merr.WrapErrTypeNotFound("Mesh")
	}, Attempts(5), Sleep(time.Millisecond))
	assert.ErrorIs(t, err, merr.ErrTypeNotFound)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return merr.ErrImportFailed
	}, Attempts(3), Sleep(time.Millisecond))
	assert.ErrorIs(t, err, merr.ErrImportFailed)
	assert.Equal(t, 3, calls)
}

func TestDoCustomRetryErr(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, Attempts(2), Sleep(time.Millisecond), RetryErr(func(error) bool { return true }))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestDoCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
