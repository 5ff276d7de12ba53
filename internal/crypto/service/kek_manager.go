package service

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/estatekit/fieldcrypt/internal/classify"
	cryptoDomain "github.com/estatekit/fieldcrypt/internal/crypto/domain"
)

// KekManagerService implements KEK material operations for envelope
// encryption. KEK key material is generated here and immediately encrypted
// with a master key; the plaintext copy lives only in the returned struct,
// which the key lifecycle manager installs into the ring.
type KekManagerService struct {
	aeadManager AEADManager
}

// NewKekManager creates a new KekManagerService with the provided AEADManager.
func NewKekManager(aeadManager AEADManager) *KekManagerService {
	return &KekManagerService{
		aeadManager: aeadManager,
	}
}

// CreateKek creates a new Active KEK for the tier, encrypted with the master key.
//
// The KEK is generated as a random 32-byte key and then encrypted using the
// master key with the specified algorithm. The master key's ID is stored in
// the KEK so rotation of master keys remains possible while multiple master
// keys are maintained simultaneously.
func (km *KekManagerService) CreateKek(
	masterKey *cryptoDomain.MasterKey,
	tier classify.Tier,
	alg cryptoDomain.Algorithm,
	version uint,
) (cryptoDomain.Kek, error) {
	kekKey := make([]byte, 32)
	if _, err := rand.Read(kekKey); err != nil {
		return cryptoDomain.Kek{}, fmt.Errorf("failed to generate KEK: %w", err)
	}

	aead, err := km.aeadManager.CreateCipher(masterKey.Key, alg)
	if err != nil {
		return cryptoDomain.Kek{}, err
	}

	encryptedKey, nonce, err := aead.Encrypt(kekKey, nil)
	if err != nil {
		cryptoDomain.Zero(kekKey)
		return cryptoDomain.Kek{}, fmt.Errorf("failed to encrypt KEK: %w", err)
	}

	kek := cryptoDomain.Kek{
		ID:           uuid.Must(uuid.NewV7()),
		Tier:         tier,
		State:        cryptoDomain.KekStateActive,
		Version:      version,
		Algorithm:    alg,
		MasterKeyID:  masterKey.ID,
		EncryptedKey: encryptedKey,
		Key:          kekKey,
		Nonce:        nonce,
		CreatedAt:    time.Now().UTC(),
	}

	return kek, nil
}

// UnwrapKek decrypts a KEK's key material using the master key. The decrypted
// key is kept in memory only and installed into the KEK ring; it is never
// persisted in plaintext form.
func (km *KekManagerService) UnwrapKek(
	kek *cryptoDomain.Kek,
	masterKey *cryptoDomain.MasterKey,
) ([]byte, error) {
	aead, err := km.aeadManager.CreateCipher(masterKey.Key, kek.Algorithm)
	if err != nil {
		return nil, err
	}

	kekKey, err := aead.Decrypt(kek.EncryptedKey, kek.Nonce, nil)
	if err != nil {
		return nil, cryptoDomain.ErrDecryptionFailed
	}

	return kekKey, nil
}
