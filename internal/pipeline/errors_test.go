package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Format(t *testing.T) {
	err := NewError(ErrAudio, "input is not a readable audio file").
		WithContext("path", "/tmp/a.bin")

	msg := err.Error()
	assert.Contains(t, msg, "[Audio]")
	assert.Contains(t, msg, "input is not a readable audio file")
	assert.Contains(t, msg, "path=/tmp/a.bin")
}

func TestWrapError_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, ErrTranscription, "transcription failed")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cause: connection refused")
}

func TestIsErrorType(t *testing.T) {
	err := NewError(ErrConfig, "missing key")

	assert.True(t, IsErrorType(err, ErrConfig))
	assert.False(t, IsErrorType(err, ErrAudio))
	assert.False(t, IsErrorType(errors.New("plain"), ErrConfig))

	wrapped := fmt.Errorf("outer: %w", err)
	assert.True(t, IsErrorType(wrapped, ErrConfig))
}

func TestSafeExecute(t *testing.T) {
	require.NoError(t, SafeExecute(func() error { return nil }))

	sentinel := errors.New("boom")
	assert.ErrorIs(t, SafeExecute(func() error { return sentinel }), sentinel)

	err := SafeExecute(func() error { panic("index out of range") })
	require.Error(t, err)
	assert.True(t, IsErrorType(err, ErrUnknown))
	assert.Contains(t, err.Error(), "index out of range")
}
