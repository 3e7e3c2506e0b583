package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestWrapNotFound(t *testing.T) {
	assert.NoError(t, WrapNotFound(nil))
	assert.Equal(t, ErrNotFound, WrapNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(WrapNotFound(pgx.ErrNoRows)))

	other := errors.New("connection reset")
	wrapped := WrapNotFound(other)
	assert.ErrorIs(t, wrapped, other)
	assert.False(t, IsNotFound(wrapped))
	assert.EqualError(t, wrapped, "db: connection reset")
}
