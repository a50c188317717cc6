package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/toolup/internal/errors"
)

func TestNewFormatsCodeAndMessage(t *testing.T) {
	err := errors.New(errors.ErrConfig, "--link and --no-link are mutually exclusive")
	assert.Equal(t, "[CONFIG] --link and --no-link are mutually exclusive", err.Error())
	assert.NotNil(t, err.Details)
}

func TestWrapKeepsChain(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.Wrapf(cause, errors.ErrNetwork, "download %s", "tool.tar.gz")

	require.NotNil(t, err)
	assert.Equal(t, "[NETWORK] download tool.tar.gz: connection refused", err.Error())
	assert.True(t, stderrors.Is(err, cause))
	assert.Nil(t, errors.Wrap(nil, errors.ErrNetwork, "nothing"))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("stage: %w", errors.New(errors.ErrExtraction, "binary missing"))

	assert.True(t, stderrors.Is(err, errors.New(errors.ErrExtraction, "")))
	assert.False(t, stderrors.Is(err, errors.New(errors.ErrBuild, "")))
	assert.True(t, errors.IsErrorCode(err, errors.ErrExtraction))
	assert.Equal(t, errors.ErrUnknown, errors.GetErrorCode(stderrors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := errors.New(errors.ErrBuild, "build failed").WithDetail("output", "make: *** [all] Error 2")
	assert.Equal(t, "make: *** [all] Error 2", err.Details["output"])
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: errors.ExitOK},
		{name: "warning", err: errors.New(errors.ErrLinkWarning, "link dir not on PATH"), want: errors.ExitOK},
		{name: "config", err: errors.New(errors.ErrConfig, "bad flags"), want: errors.ExitFailure},
		{name: "plain", err: stderrors.New("boom"), want: errors.ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.ExitCode(tt.err))
		})
	}
}
