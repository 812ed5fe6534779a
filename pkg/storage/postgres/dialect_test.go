package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPostgresDialect(t *testing.T) {
	d := NewPostgresDialect()
	assert.True(t, d.IsUniqueViolation(fmt.Errorf("wrap: %w", &pq.Error{Code: "23505"})))
	assert.False(t, d.IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, d.IsUniqueViolation(errors.New("other")))
	assert.True(t, d.SupportsReturning())
	assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx ON t (a)", d.CreateIndexSQL("idx", "t", []string{"a"}))
}
