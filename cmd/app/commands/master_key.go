package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
	cryptoService "github.com/estatekit/fieldcrypt/internal/crypto/service"
)

// RunCreateMasterKey generates a 32-byte master key, encrypts it with the
// configured KMS keeper, and prints the environment variables to install it.
// The plaintext key never leaves process memory and is zeroed before return.
//
// If keyID is empty a default of the form "master-key-YYYY-MM-DD" is used.
// For local development use kmsProvider "localsecrets" with a
// "base64key://..." URI; production deployments should use a cloud provider
// (gcpkms, awskms, azurekeyvault).
func RunCreateMasterKey(ctx context.Context, writer io.Writer, keyID, kmsProvider, kmsKeyURI string) error {
	if kmsProvider == "" || kmsKeyURI == "" {
		return fmt.Errorf(
			"--kms-provider and --kms-key-uri are required\n\n" +
				"For local development:\n" +
				"  --kms-provider=localsecrets --kms-key-uri=\"base64key://<32-byte-base64-key>\"\n\n" +
				"For production:\n" +
				"  --kms-provider=gcpkms --kms-key-uri=\"gcpkms://projects/.../cryptoKeys/...\"\n" +
				"  --kms-provider=awskms --kms-key-uri=\"awskms:///alias/...\"\n" +
				"  --kms-provider=azurekeyvault --kms-key-uri=\"azurekeyvault://...\"",
		)
	}

	if keyID == "" {
		keyID = fmt.Sprintf("master-key-%s", time.Now().Format("2006-01-02"))
	}

	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate master key: %w", err)
	}
	defer cryptoDomain.Zero(masterKey)

	keeper, err := cryptoService.NewKMSService().OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		if closeErr := keeper.Close(); closeErr != nil {
			_, _ = fmt.Fprintf(writer, "# Warning: failed to close KMS keeper: %v\n", closeErr)
		}
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}

	encodedKey := base64.StdEncoding.EncodeToString(ciphertext)

	_, _ = fmt.Fprintln(writer, "# Master key configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
	_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s:%s\"\n", keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "# To rotate the master key, append a new entry to MASTER_KEYS, point")
	_, _ = fmt.Fprintln(writer, "# ACTIVE_MASTER_KEY_ID at it, and rotate each tier's KEK so new wraps")
	_, _ = fmt.Fprintln(writer, "# use the new master key.")

	return nil
}
