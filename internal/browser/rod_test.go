package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapTimeoutMapsDeadlineErrors(t *testing.T) {
	err := wrapTimeout(fmt.Errorf("navigate: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWrapTimeoutPassesOtherErrorsThrough(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Equal(t, plain, wrapTimeout(plain))
	assert.NotErrorIs(t, wrapTimeout(plain), ErrTimeout)
	assert.NoError(t, wrapTimeout(nil))
}
