package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCodeThroughWrapping(t *testing.T) {
	base := New(CodeNotFound, "delivery not found")
	wrapped := fmt.Errorf("lookup failed: %w", base)

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsCode(wrapped, CodeStore))
	assert.False(t, IsCode(errors.New("plain"), CodeNotFound))
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeStore, "failed to read delivery", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "STORE")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "failed to read delivery", Message(err))
}

func TestMessageFallsBack(t *testing.T) {
	assert.Equal(t, "plain", Message(errors.New("plain")))
	assert.Empty(t, Message(nil))
}
