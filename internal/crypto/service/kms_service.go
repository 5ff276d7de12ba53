package service

import (
	"context"
	"fmt"

	"gocloud.dev/secrets"

	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"

	// Register the supported KMS provider drivers.
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

// kmsService opens master-key keepers through gocloud.dev/secrets.
type kmsService struct{}

// NewKMSService returns the keeper factory used to unwrap master keys.
func NewKMSService() KMSService {
	return &kmsService{}
}

// OpenKeeper resolves keyURI to its provider driver. Supported schemes
// are gcpkms://, awskms://, azurekeyvault://, hashivault://, and
// base64key:// for local development and tests.
func (k *kmsService) OpenKeeper(ctx context.Context, keyURI string) (cryptoDomain.KMSKeeper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return keeper, nil
}
