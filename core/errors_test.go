package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	e := NewError(CodeUnknownTool, "no such tool")
	assert.Equal(t, "UNKNOWN_TOOL: no such tool", e.Error())

	wrapped := WrapError(CodeStartupFailure, "start failed", errors.New("exit 1"))
	assert.Equal(t, "STARTUP_FAILURE: start failed: exit 1", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := WrapError(CodeConnectionLost, "pipe closed", cause)

	assert.ErrorIs(t, e, cause)
}

func TestHasCode(t *testing.T) {
	inner := NewError(CodeCallTimeout, "deadline missed")
	outer := WrapError(CodeRemoteError, "call failed", inner)

	assert.True(t, HasCode(outer, CodeRemoteError))
	assert.True(t, HasCode(outer, CodeCallTimeout))
	assert.False(t, HasCode(outer, CodeBusy))
	assert.False(t, HasCode(nil, CodeBusy))
	assert.False(t, HasCode(errors.New("untyped"), CodeBusy))
}

func TestHasCode_ThroughFmtWrap(t *testing.T) {
	e := NewError(CodeCyclicComposition, "loop detected")
	wrapped := fmt.Errorf("registering child: %w", e)

	assert.True(t, HasCode(wrapped, CodeCyclicComposition))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeBusy, CodeOf(NewError(CodeBusy, "in flight")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("untyped")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}
