package lead

import (
	"context"
	"errors"
	"testing"

	"lead-routing/internal/common/routingerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "a")
	assert.True(t, errors.Is(err, routingerr.ErrConflict))

	other, err := l.TryLock(ctx, "b")
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := l.TryLock(ctx, "a")
	require.NoError(t, err)
	again()
}
