package port

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateID(t *testing.T) {
	invalid := []string{"", " ", "\t\n", "a_b", "_", "courses_"}
	for _, id := range invalid {
		err := ValidateID(id)
		assert.ErrorIs(t, err, ErrInvalidID, "标识符 %q 应被拒绝", id)
	}

	valid := []string{"courses", "rooms", "a b", " x", "课程"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), "标识符 %q 应被接受", id)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(fmt.Errorf("wrap: %w", ErrDuplicateDataset)))
	assert.False(t, IsRetryable(ErrResultTooLarge))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(errors.New("disk I/O error")))
}

func TestInvalidDatasetIsInvalidContent(t *testing.T) {
	err := fmt.Errorf("布局不符: %w", ErrInvalidDataset)
	assert.ErrorIs(t, err, ErrInvalidContent)
}
