package di

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvokeBeforeInit(t *testing.T) {
	saved := Container
	Container = nil
	defer func() { Container = saved }()

	assert.Error(t, Invoke(func() {}))
	assert.Error(t, Provide(func() int { return 1 }))
}

func TestProvideAndInvoke(t *testing.T) {
	InitContainer()
	require.NoError(t, Provide(func() string { return "wired" }))

	var got string
	require.NoError(t, Invoke(func(s string) { got = s }))
	assert.Equal(t, "wired", got)
	assert.Same(t, Container, GetContainer())
}
