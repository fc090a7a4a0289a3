package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "upload too large", Validation("upload too large").Error())
	assert.Equal(t,
		"failed to store input video: connection reset",
		Storage("failed to store input video", errors.New("connection reset")).Error(),
	)
}

func TestAppError_Unwrap(t *testing.T) {
	t.Parallel()

	err := Engine("engine exited abnormally", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Nil(t, errors.Unwrap(NotFound("no such detection")))
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"validation", Validation("bad input"), ErrCodeValidation},
		{"validationf", Validationf("size %d too large", 42), ErrCodeValidation},
		{"storage", Storage("store failed", nil), ErrCodeStorage},
		{"engine", Engine("invoke failed", nil), ErrCodeEngine},
		{"persistence", Persistence("insert failed", nil), ErrCodePersistence},
		{"not found", NotFound("missing"), ErrCodeNotFound},
		{"internal", Internal("boom", nil), ErrCodeInternal},
		{"wrapped app error", fmt.Errorf("context: %w", Validation("bad")), ErrCodeValidation},
		{"plain error defaults to internal", errors.New("plain"), ErrCodeInternal},
		{"nil defaults to internal", nil, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestIsCode(t *testing.T) {
	t.Parallel()

	err := Storage("store failed", errors.New("timeout"))
	assert.True(t, IsCode(err, ErrCodeStorage))
	assert.False(t, IsCode(err, ErrCodeValidation))
	assert.True(t, IsCode(errors.New("plain"), ErrCodeInternal))
}
