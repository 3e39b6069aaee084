package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails EnsureNamespace a fixed number of times.
type flakyStore struct {
	BlobStore
	failures int
	calls    int
}

func (s *flakyStore) EnsureNamespace(_ context.Context, namespace string) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", errors.New("mount not ready")
	}
	return "data/" + namespace, nil
}

func TestEnsureNamespace(t *testing.T) {
	policy := RetryPolicy{Attempts: 3, Step: time.Millisecond}

	tests := []struct {
		name      string
		failures  int
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, 1, false},
		{"recovers", 2, 3, false},
		{"gives up", 5, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &flakyStore{failures: tt.failures}
			loc, err := EnsureNamespace(context.Background(), store, "user", policy, nil)
			assert.Equal(t, tt.wantCalls, store.calls)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "mount not ready")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "data/user", loc)
		})
	}
}

func TestEnsureNamespace_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &flakyStore{failures: 10}
	_, err := EnsureNamespace(ctx, store, "user", RetryPolicy{Attempts: 5, Step: time.Second}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.calls)
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{step: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}
