package safe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ReturnsError(t *testing.T) {
	want := errors.New("boom")
	assert.Same(t, want, Run(func() error { return want }))
	assert.NoError(t, Run(func() error { return nil }))
}

func TestRun_RecoversPanic(t *testing.T) {
	err := Run(func() error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	require.Error(t, err)

	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Callers)
	assert.Contains(t, err.Error(), "panic:")
}

func TestGo_ReportsPanic(t *testing.T) {
	got := make(chan error, 1)
	Go(func() { panic("bad") }, func(err error) { got <- err })

	err := <-got
	assert.Contains(t, err.Error(), "bad")
}
