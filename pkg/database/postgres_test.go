package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("create fee: %w", &pq.Error{Code: "23505", Constraint: "fees_enrollment_cycle_uq"})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsConflict(unique))
	assert.Equal(t, "fees_enrollment_cycle_uq", ConstraintName(unique))

	assert.True(t, IsConflict(&pq.Error{Code: "40001"}))
	assert.True(t, IsConflict(&pq.Error{Code: "40P01"}))

	badID := fmt.Errorf("find enrollment: %w", &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"})
	assert.True(t, IsInvalidText(badID))
	assert.False(t, IsInvalidText(unique))

	plain := errors.New("connection refused")
	assert.False(t, IsUniqueViolation(plain))
	assert.False(t, IsConflict(plain))
	assert.False(t, IsInvalidText(plain))
	assert.Empty(t, ConstraintName(plain))
}
