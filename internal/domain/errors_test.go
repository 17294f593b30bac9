package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Format(t *testing.T) {
	cause := errors.New("no rows")
	err := CatalogError("catalog is empty", cause)

	assert.Equal(t, "[catalog] catalog is empty: no rows", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[validation] text is required", ValidationError("text is required", nil).Error())
}

func TestTypeOf(t *testing.T) {
	wrapped := fmt.Errorf("recommend: %w", RateLimitedError("duplicate request", nil))

	assert.Equal(t, ErrorTypeRateLimited, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
	assert.Equal(t, ErrorType(""), TypeOf(nil))
}
