package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKMSKeyURI = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

func TestRunCreateMasterKey(t *testing.T) {
	ctx := context.Background()

	t.Run("missing-kms-params", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, &out, "my-key", "", "")
		require.Error(t, err)
		require.Contains(t, err.Error(), "--kms-provider and --kms-key-uri are required")
	})

	t.Run("custom-key-id", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, &out, "prod-master-key-2026", "localsecrets", testKMSKeyURI)
		require.NoError(t, err)

		output := out.String()
		require.Contains(t, output, `MASTER_KEYS="prod-master-key-2026:`)
		require.Contains(t, output, `ACTIVE_MASTER_KEY_ID="prod-master-key-2026"`)
		require.Contains(t, output, `KMS_PROVIDER="localsecrets"`)
		require.Contains(t, output, `KMS_KEY_URI="`+testKMSKeyURI+`"`)
	})

	t.Run("default-key-id", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, &out, "", "localsecrets", testKMSKeyURI)
		require.NoError(t, err)
		require.Contains(t, out.String(), `MASTER_KEYS="master-key-`)
	})

	t.Run("invalid-key-uri", func(t *testing.T) {
		var out bytes.Buffer
		err := RunCreateMasterKey(ctx, &out, "my-key", "localsecrets", "base64key://not-valid-base64!")
		require.Error(t, err)
	})
}
