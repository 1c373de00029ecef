package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsComparesCode(t *testing.T) {
	err := ErrForbidden.WithMessage("not a member of room")
	assert.True(t, Is(err, ErrForbidden))
	assert.False(t, Is(err, ErrNotFound))
	assert.Equal(t, "not a member of room", err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := ErrUnavailable.WithError(cause)

	assert.True(t, Is(err, cause))
	assert.Equal(t, "服务不可用: dial tcp: refused", err.Error())
	// 原错误不被修改
	assert.Nil(t, ErrUnavailable.Err)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("dispatch: %w", ErrBadRequest)
	assert.Equal(t, 1001, CodeOf(wrapped))
	assert.Equal(t, ErrServer.Code, CodeOf(stderrors.New("boom")))
}

func TestNewDefaultsStatus(t *testing.T) {
	assert.Equal(t, 500, New(1, "x").Status)
	assert.Equal(t, 418, New(1, "x", 418).Status)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 500},
		{"plain", stderrors.New("boom"), 500},
		{"direct", ErrNotFound, 404},
		{"wrapped", fmt.Errorf("join: %w", ErrTooManyRequests.WithMessage("slow down")), 429},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}
