package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

func TestRetryPolicy_Do(t *testing.T) {
	ctx := context.Background()
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	t.Run("succeeds without retry", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			if calls < 3 {
				return apperrors.Wrap(apperrors.ErrServiceUnavailable, "kms timeout")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return apperrors.Wrap(apperrors.ErrServiceUnavailable, "kms down")
		})
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable errors propagate immediately", func(t *testing.T) {
		calls := 0
		err := policy.Do(ctx, func(ctx context.Context) error {
			calls++
			return cryptoDomain.ErrDecryptionFailed
		})
		assert.ErrorIs(t, err, cryptoDomain.ErrDecryptionFailed)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		err := policy.Do(cancelled, func(ctx context.Context) error {
			return apperrors.Wrap(apperrors.ErrServiceUnavailable, "kms down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("zero-value policy is usable", func(t *testing.T) {
		calls := 0
		err := RetryPolicy{}.Do(ctx, func(ctx context.Context) error {
			calls++
			return apperrors.ErrServiceUnavailable
		})
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
		assert.Equal(t, 1, calls)
	})
}

// flakyKeyService fails a configurable number of times before delegating.
type flakyKeyService struct {
	next     KeyService
	failures int
	calls    int
}

func (f *flakyKeyService) fail() error {
	f.calls++
	if f.calls <= f.failures {
		return apperrors.Wrap(apperrors.ErrServiceUnavailable, "transient failure")
	}
	return nil
}

func (f *flakyKeyService) GenerateDataKey(ctx context.Context, keyID uuid.UUID, aad []byte) (*cryptoDomain.DataKey, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.next.GenerateDataKey(ctx, keyID, aad)
}

func (f *flakyKeyService) UnwrapDataKey(ctx context.Context, keyID uuid.UUID, wrapped, nonce, aad []byte) ([]byte, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return f.next.UnwrapDataKey(ctx, keyID, wrapped, nonce, aad)
}

func (f *flakyKeyService) RewrapDataKey(ctx context.Context, oldKeyID, newKeyID uuid.UUID, wrapped, nonce, aad []byte) ([]byte, []byte, error) {
	if err := f.fail(); err != nil {
		return nil, nil, err
	}
	return f.next.RewrapDataKey(ctx, oldKeyID, newKeyID, wrapped, nonce, aad)
}

func TestResilientKeyService(t *testing.T) {
	ctx := context.Background()
	active := newRingKek(t, classify.TierCritical, cryptoDomain.KekStateActive, 1)
	ring := newTestRing(t, active)
	inner := NewRingKeyService(ring, NewAEADManager())
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	aad := []byte("Person|SocialSecurityNumber|rec-1")

	t.Run("recovers from transient failures", func(t *testing.T) {
		flaky := &flakyKeyService{next: inner, failures: 2}
		svc := NewResilientKeyService(flaky, 4, policy)

		dataKey, err := svc.GenerateDataKey(ctx, active.ID, aad)
		require.NoError(t, err)
		defer dataKey.Close()

		assert.Equal(t, 3, flaky.calls)

		plaintext, err := svc.UnwrapDataKey(ctx, active.ID, dataKey.Wrapped, dataKey.Nonce, aad)
		require.NoError(t, err)
		assert.Equal(t, dataKey.Plaintext, plaintext)
	})

	t.Run("surfaces persistent unavailability", func(t *testing.T) {
		flaky := &flakyKeyService{next: inner, failures: 100}
		svc := NewResilientKeyService(flaky, 4, policy)

		_, err := svc.GenerateDataKey(ctx, active.ID, aad)
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
		assert.Equal(t, policy.MaxAttempts, flaky.calls)
	})

	t.Run("does not retry validation failures", func(t *testing.T) {
		flaky := &flakyKeyService{next: inner}
		svc := NewResilientKeyService(flaky, 4, policy)

		_, err := svc.GenerateDataKey(ctx, active.ID, nil)
		assert.ErrorIs(t, err, cryptoDomain.ErrMissingContext)
		assert.Equal(t, 1, flaky.calls)
	})

	t.Run("gate rejects when the context is already cancelled", func(t *testing.T) {
		svc := NewResilientKeyService(inner, 1, policy)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := svc.GenerateDataKey(cancelled, active.ID, aad)
		assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	})
}
