package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	apperrors "github.com/estatekit/fieldcrypt/internal/errors"
)

func sweepRing(t *testing.T, keks ...cryptoDomain.Kek) *cryptoDomain.KekRing {
	t.Helper()
	ptrs := make([]*cryptoDomain.Kek, len(keks))
	for i := range keks {
		ptrs[i] = &keks[i]
	}
	ring, err := cryptoDomain.NewKekRing(ptrs)
	require.NoError(t, err)
	t.Cleanup(ring.Close)
	return ring
}

func sweepFieldValue(keyID uuid.UUID, recordID string) *cryptoDomain.FieldValue {
	return cryptoDomain.NewFieldValue(&cryptoDomain.EncryptedValue{
		KeyID:      keyID,
		Algorithm:  cryptoDomain.AESGCM,
		WrappedDek: []byte("wrapped-" + recordID),
		DekNonce:   []byte("nonce-" + recordID),
		Ciphertext: []byte("ciphertext"),
		Nonce:      []byte("value-nonce"),
		Context: cryptoDomain.EncryptionContext{
			EntityType: "Person",
			FieldName:  "ssn",
			RecordID:   recordID,
		},
	})
}

func TestRewrapSweepUseCase_SweepOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("re-wraps every value and retires the drained kek", func(t *testing.T) {
		keyService := &mockKeyService{}
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}
		lifecycle := &mockKeyLifecycleUseCase{}

		active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 2)
		rotating := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateRotatingOut, 1)
		ring := sweepRing(t, active, rotating)

		fv1 := sweepFieldValue(rotating.ID, "person-1")
		fv2 := sweepFieldValue(rotating.ID, "person-2")

		sweepRepo.On("Get", mock.Anything, classify.TierCritical).
			Return(&cryptoDomain.SweepCheckpoint{
				Tier:     classify.TierCritical,
				OldKeyID: rotating.ID,
				NewKeyID: active.ID,
				LastID:   uuid.Nil,
			}, nil).Once()

		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, uuid.Nil, 500).
			Return([]*cryptoDomain.FieldValue{fv1, fv2}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, fv2.ID, 500).
			Return([]*cryptoDomain.FieldValue{}, nil).Once()

		for _, fv := range []*cryptoDomain.FieldValue{fv1, fv2} {
			keyService.On(
				"RewrapDataKey", mock.Anything, rotating.ID, active.ID,
				fv.WrappedDek, fv.DekNonce, fv.Context().AAD(),
			).Return([]byte("rewrapped"), []byte("new-nonce"), nil).Once()
			fieldValueRepo.On(
				"UpdateWrap", mock.Anything, fv.ID, rotating.ID, active.ID,
				[]byte("rewrapped"), []byte("new-nonce"),
			).Return(true, nil).Once()
		}

		sweepRepo.On("Save", mock.Anything, mock.MatchedBy(func(cp *cryptoDomain.SweepCheckpoint) bool {
			return cp.LastID == fv2.ID && cp.RewrappedCount == 2
		})).Return(nil).Once()

		fieldValueRepo.On("CountByKeyID", mock.Anything, rotating.ID).
			Return(uint64(0), nil).Once()
		lifecycle.On("Retire", mock.Anything, classify.TierCritical).Return(nil).Once()

		uc := NewRewrapSweepUseCase(
			SweepConfig{Interval: time.Second, BatchSize: 500},
			ring, keyService, fieldValueRepo, sweepRepo, lifecycle, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		keyService.AssertExpectations(t)
		fieldValueRepo.AssertExpectations(t)
		lifecycle.AssertExpectations(t)
	})

	t.Run("skips tiers with no rotation in flight", func(t *testing.T) {
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}

		active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 1)
		ring := sweepRing(t, active)

		uc := NewRewrapSweepUseCase(
			SweepConfig{}, ring, &mockKeyService{}, fieldValueRepo, sweepRepo,
			&mockKeyLifecycleUseCase{}, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		sweepRepo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})

	t.Run("rebuilds a missing checkpoint", func(t *testing.T) {
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}
		lifecycle := &mockKeyLifecycleUseCase{}

		active := lifecycleKek(classify.TierSensitive, cryptoDomain.KekStateActive, 2)
		rotating := lifecycleKek(classify.TierSensitive, cryptoDomain.KekStateRotatingOut, 1)
		ring := sweepRing(t, active, rotating)

		sweepRepo.On("Get", mock.Anything, classify.TierSensitive).
			Return(nil, apperrors.ErrNotFound).Once()
		sweepRepo.On("Save", mock.Anything, mock.MatchedBy(func(cp *cryptoDomain.SweepCheckpoint) bool {
			return cp.Tier == classify.TierSensitive &&
				cp.OldKeyID == rotating.ID &&
				cp.NewKeyID == active.ID &&
				cp.LastID == uuid.Nil
		})).Return(nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, uuid.Nil, 500).
			Return([]*cryptoDomain.FieldValue{}, nil).Once()
		fieldValueRepo.On("CountByKeyID", mock.Anything, rotating.ID).
			Return(uint64(0), nil).Once()
		lifecycle.On("Retire", mock.Anything, classify.TierSensitive).Return(nil).Once()

		uc := NewRewrapSweepUseCase(
			SweepConfig{}, ring, &mockKeyService{}, fieldValueRepo, sweepRepo, lifecycle, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		sweepRepo.AssertExpectations(t)
	})

	t.Run("resumes from the persisted cursor", func(t *testing.T) {
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}
		lifecycle := &mockKeyLifecycleUseCase{}

		active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 2)
		rotating := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateRotatingOut, 1)
		ring := sweepRing(t, active, rotating)

		cursor := uuid.Must(uuid.NewV7())
		sweepRepo.On("Get", mock.Anything, classify.TierCritical).
			Return(&cryptoDomain.SweepCheckpoint{
				Tier:           classify.TierCritical,
				OldKeyID:       rotating.ID,
				NewKeyID:       active.ID,
				LastID:         cursor,
				RewrappedCount: 40,
			}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, cursor, 500).
			Return([]*cryptoDomain.FieldValue{}, nil).Once()
		fieldValueRepo.On("CountByKeyID", mock.Anything, rotating.ID).
			Return(uint64(0), nil).Once()
		lifecycle.On("Retire", mock.Anything, classify.TierCritical).Return(nil).Once()

		uc := NewRewrapSweepUseCase(
			SweepConfig{}, ring, &mockKeyService{}, fieldValueRepo, sweepRepo, lifecycle, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		fieldValueRepo.AssertExpectations(t)
	})

	t.Run("skips rows a live write already re-wrapped", func(t *testing.T) {
		keyService := &mockKeyService{}
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}
		lifecycle := &mockKeyLifecycleUseCase{}

		active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 2)
		rotating := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateRotatingOut, 1)
		ring := sweepRing(t, active, rotating)

		fv := sweepFieldValue(rotating.ID, "person-1")

		sweepRepo.On("Get", mock.Anything, classify.TierCritical).
			Return(&cryptoDomain.SweepCheckpoint{
				Tier:     classify.TierCritical,
				OldKeyID: rotating.ID,
				NewKeyID: active.ID,
			}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, uuid.Nil, 500).
			Return([]*cryptoDomain.FieldValue{fv}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, fv.ID, 500).
			Return([]*cryptoDomain.FieldValue{}, nil).Once()
		keyService.On(
			"RewrapDataKey", mock.Anything, rotating.ID, active.ID,
			mock.Anything, mock.Anything, mock.Anything,
		).Return([]byte("rewrapped"), []byte("new-nonce"), nil).Once()
		fieldValueRepo.On(
			"UpdateWrap", mock.Anything, fv.ID, rotating.ID, active.ID,
			mock.Anything, mock.Anything,
		).Return(false, nil).Once()
		sweepRepo.On("Save", mock.Anything, mock.MatchedBy(func(cp *cryptoDomain.SweepCheckpoint) bool {
			return cp.LastID == fv.ID && cp.RewrappedCount == 0
		})).Return(nil).Once()
		fieldValueRepo.On("CountByKeyID", mock.Anything, rotating.ID).
			Return(uint64(0), nil).Once()
		lifecycle.On("Retire", mock.Anything, classify.TierCritical).Return(nil).Once()

		uc := NewRewrapSweepUseCase(
			SweepConfig{}, ring, keyService, fieldValueRepo, sweepRepo, lifecycle, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		lifecycle.AssertExpectations(t)
	})

	t.Run("rewinds the cursor when re-wraps failed", func(t *testing.T) {
		keyService := &mockKeyService{}
		fieldValueRepo := &mockFieldValueRepository{}
		sweepRepo := &mockSweepRepository{}
		lifecycle := &mockKeyLifecycleUseCase{}

		active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 2)
		rotating := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateRotatingOut, 1)
		ring := sweepRing(t, active, rotating)

		fv := sweepFieldValue(rotating.ID, "person-1")

		sweepRepo.On("Get", mock.Anything, classify.TierCritical).
			Return(&cryptoDomain.SweepCheckpoint{
				Tier:     classify.TierCritical,
				OldKeyID: rotating.ID,
				NewKeyID: active.ID,
			}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, uuid.Nil, 500).
			Return([]*cryptoDomain.FieldValue{fv}, nil).Once()
		fieldValueRepo.On("ListByKeyID", mock.Anything, rotating.ID, fv.ID, 500).
			Return([]*cryptoDomain.FieldValue{}, nil).Once()
		keyService.On(
			"RewrapDataKey", mock.Anything, rotating.ID, active.ID,
			mock.Anything, mock.Anything, mock.Anything,
		).Return(nil, nil, apperrors.ErrServiceUnavailable).Once()
		sweepRepo.On("Save", mock.Anything, mock.MatchedBy(func(cp *cryptoDomain.SweepCheckpoint) bool {
			return cp.LastID == fv.ID
		})).Return(nil).Once()
		fieldValueRepo.On("CountByKeyID", mock.Anything, rotating.ID).
			Return(uint64(1), nil).Once()
		sweepRepo.On("Save", mock.Anything, mock.MatchedBy(func(cp *cryptoDomain.SweepCheckpoint) bool {
			return cp.LastID == uuid.Nil
		})).Return(nil).Once()

		uc := NewRewrapSweepUseCase(
			SweepConfig{}, ring, keyService, fieldValueRepo, sweepRepo, lifecycle, testLogger(),
		)
		err := uc.SweepOnce(ctx)
		require.NoError(t, err)
		lifecycle.AssertNotCalled(t, "Retire", mock.Anything, mock.Anything)
		sweepRepo.AssertExpectations(t)
	})
}

func TestRewrapSweepUseCase_Start(t *testing.T) {
	defer goleak.VerifyNone(t)

	active := lifecycleKek(classify.TierCritical, cryptoDomain.KekStateActive, 1)
	ring := sweepRing(t, active)

	uc := NewRewrapSweepUseCase(
		SweepConfig{Interval: 5 * time.Millisecond},
		ring, &mockKeyService{}, &mockFieldValueRepository{}, &mockSweepRepository{},
		&mockKeyLifecycleUseCase{}, testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- uc.Start(ctx)
	}()

	// Let a few ticks fire against a quiet ring, then stop the loop.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not stop")
	}
}
