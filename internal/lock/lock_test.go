package lock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	toolerrors "github.com/3leaps/toolup/internal/errors"
)

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/opt", "tool.lock"), Path("/opt/tool/"))
}

func TestAcquireRelease(t *testing.T) {
	root := filepath.Join(t.TempDir(), "data", "tool")

	l, err := Acquire(context.Background(), afero.NewOsFs(), root, time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// Reacquirable after release.
	l, err = Acquire(context.Background(), afero.NewOsFs(), root, time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Release())
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	root := filepath.Join(t.TempDir(), "tool")

	held, err := Acquire(context.Background(), afero.NewOsFs(), root, time.Second)
	require.NoError(t, err)
	defer held.Release()

	start := time.Now()
	_, err = Acquire(context.Background(), afero.NewOsFs(), root, 300*time.Millisecond)
	require.Error(t, err)
	assert.True(t, toolerrors.IsErrorCode(err, toolerrors.ErrLock))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReleaseNil(t *testing.T) {
	var l *Lock
	assert.NoError(t, l.Release())
}
