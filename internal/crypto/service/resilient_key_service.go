package service

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

// ResilientKeyService decorates a KeyService with a bounded concurrency gate
// and retry with exponential backoff for transient failures. Wrapping and
// unwrapping calls block on the gate, so a slow or unreachable backing
// service produces bounded in-flight work instead of unbounded goroutine
// pile-up.
type ResilientKeyService struct {
	next   KeyService
	gate   *semaphore.Weighted
	policy RetryPolicy
}

// NewResilientKeyService creates the decorator. maxInflight bounds the number
// of concurrent calls to the underlying key service.
func NewResilientKeyService(next KeyService, maxInflight int64, policy RetryPolicy) *ResilientKeyService {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &ResilientKeyService{
		next:   next,
		gate:   semaphore.NewWeighted(maxInflight),
		policy: policy.normalize(),
	}
}

func (s *ResilientKeyService) acquire(ctx context.Context) error {
	if err := s.gate.Acquire(ctx, 1); err != nil {
		return apperrors.Wrap(apperrors.ErrServiceUnavailable, "key service gate")
	}
	return nil
}

// GenerateDataKey implements KeyService.
func (s *ResilientKeyService) GenerateDataKey(ctx context.Context, keyID uuid.UUID, aad []byte) (*domain.DataKey, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	var dataKey *domain.DataKey
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		dataKey, err = s.next.GenerateDataKey(ctx, keyID, aad)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dataKey, nil
}

// UnwrapDataKey implements KeyService.
func (s *ResilientKeyService) UnwrapDataKey(ctx context.Context, keyID uuid.UUID, wrapped, nonce, aad []byte) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.gate.Release(1)

	var plaintext []byte
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		plaintext, err = s.next.UnwrapDataKey(ctx, keyID, wrapped, nonce, aad)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// RewrapDataKey implements KeyService.
func (s *ResilientKeyService) RewrapDataKey(ctx context.Context, oldKeyID, newKeyID uuid.UUID, wrapped, nonce, aad []byte) ([]byte, []byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer s.gate.Release(1)

	var newWrapped, newNonce []byte
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		newWrapped, newNonce, err = s.next.RewrapDataKey(ctx, oldKeyID, newKeyID, wrapped, nonce, aad)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return newWrapped, newNonce, nil
}
