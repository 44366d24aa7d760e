package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
	lg.Debug("opcode stream closed", zap.Int("pages", 2))

	_, _, err = InitTestLogger(t, &Config{Level: "bogus"})
	assert.Error(t, err)

	_, props, err = InitTestLogger(t, &Config{Level: "trace"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
}

func TestCtxLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "info"})
	require.NoError(t, err)
	oldL, oldP := L(), _globalP.Load().(*ZapProperties)
	ReplaceGlobals(lg, props)
	defer ReplaceGlobals(oldL, oldP)

	ctx := WithModule(context.Background(), "resource")
	logger := Ctx(ctx)
	assert.NotNil(t, logger)
	assert.Same(t, logger, Ctx(ctx))
	logger.Info("saving file")

	assert.NotNil(t, Ctx(context.TODO()))

	SetLevel(zapcore.WarnLevel)
	assert.Equal(t, zapcore.WarnLevel, GetLevel())
}

func TestRatedLogger(t *testing.T) {
	lg, _, err := InitTestLogger(t, &Config{Level: "debug"})
	require.NoError(t, err)

	logger := (&MLogger{Logger: lg}).WithRateGroup("test.lost-pointer", 1, 1)
	assert.True(t, logger.RatedWarn(1, "lost pointer"))
	assert.False(t, logger.RatedWarn(1, "lost pointer"))

	child := logger.With(FieldClass("Vector3"))
	assert.False(t, child.RatedInfo(1, "shares the same group"))
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	lg, _, err := InitTestLogger(t, &Config{Level: "info"})
	require.NoError(t, err)
	ml := &MLogger{Logger: lg}
	b.SetLogger(ml)
	assert.Same(t, ml, b.Logger())
}
