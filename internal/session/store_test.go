package session

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ternlab/tern/internal/log"
)

func TestNewStore_Validation(t *testing.T) {
	if _, err := NewStore(nil, 768, log.NewNop()); err == nil {
		t.Error("NewStore(nil pool) should fail")
	}
}

func TestAddEmbedding_DimensionMismatch(t *testing.T) {
	// The length check happens before any database access, so a store
	// without a pool is enough to exercise it.
	store := &Store{dim: 3, logger: log.NewNop()}

	tests := []struct {
		name string
		vec  []float32
	}{
		{name: "too short", vec: []float32{1, 2}},
		{name: "too long", vec: []float32{1, 2, 3, 4}},
		{name: "empty", vec: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.AddEmbedding(context.Background(), uuid.Nil, tt.vec)
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("AddEmbedding(len=%d) = %v, want ErrDimensionMismatch", len(tt.vec), err)
			}
		})
	}
}

func TestSearchSimilar_DimensionMismatch(t *testing.T) {
	store := &Store{dim: 3, logger: log.NewNop()}

	_, err := store.SearchSimilar(context.Background(), []float32{1, 2}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("SearchSimilar(len=2) = %v, want ErrDimensionMismatch", err)
	}
}

func TestNullable(t *testing.T) {
	if got := nullable(""); got != nil {
		t.Errorf("nullable(\"\") = %v, want nil", got)
	}
	if got := nullable("x"); got == nil || *got != "x" {
		t.Errorf("nullable(\"x\") = %v, want pointer to \"x\"", got)
	}
}
