package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncBeforeInit(t *testing.T) {
	saved := Logger
	Logger = nil
	defer func() { Logger = saved }()

	assert.NoError(t, Sync())
}

func TestInitLoggerAndSync(t *testing.T) {
	require.NoError(t, InitLogger())
	require.NotNil(t, GetLogger())

	// stderr上的Sync在部分平台返回EINVAL，只验证调用可用不断言结果
	_ = Sync()
}

func TestWithRequestID(t *testing.T) {
	require.NoError(t, InitLogger())
	assert.NotNil(t, WithRequestID("req-123"))
}
