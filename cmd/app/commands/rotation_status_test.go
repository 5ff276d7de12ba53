package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoUseCase "github.com/estatekit/fieldcrypt/internal/crypto/usecase"
)

func TestOutputStatusText(t *testing.T) {
	activeKeyID := uuid.New()
	activeSince := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)

	t.Run("no-rotation", func(t *testing.T) {
		var out bytes.Buffer
		outputStatusText(&out, &cryptoUseCase.RotationStatus{
			Tier:          classify.TierCritical,
			ActiveKeyID:   activeKeyID,
			ActiveVersion: 3,
			ActiveSince:   activeSince,
		})

		output := out.String()
		require.Contains(t, output, "Tier:           critical")
		require.Contains(t, output, activeKeyID.String())
		require.Contains(t, output, "version 3")
		require.Contains(t, output, "none in progress")
		require.NotContains(t, output, "Draining KEK")
	})

	t.Run("rotation-in-progress", func(t *testing.T) {
		rotatingKeyID := uuid.New()

		var out bytes.Buffer
		outputStatusText(&out, &cryptoUseCase.RotationStatus{
			Tier:            classify.TierSensitive,
			ActiveKeyID:     activeKeyID,
			ActiveVersion:   2,
			ActiveSince:     activeSince,
			Rotating:        true,
			RotatingKeyID:   &rotatingKeyID,
			RemainingValues: 120,
			RewrappedValues: 480,
		})

		output := out.String()
		require.Contains(t, output, "in progress")
		require.Contains(t, output, rotatingKeyID.String())
		require.Contains(t, output, "Re-wrapped:     480")
		require.Contains(t, output, "Remaining:      120")
	})
}
