package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRunReturnsAgentError(t *testing.T) {
	want := errors.New("storage unavailable")
	var gotCtx context.Context

	err := New(zap.NewNop(), func(ctx context.Context) error {
		gotCtx = ctx
		return want
	}).Run()

	assert.ErrorIs(t, err, want)
	if assert.NotNil(t, gotCtx) {
		// The signal context is released once Run returns.
		<-gotCtx.Done()
	}
}

func TestIsWindowsServiceFromTerminal(t *testing.T) {
	assert.False(t, IsWindowsService())
}
