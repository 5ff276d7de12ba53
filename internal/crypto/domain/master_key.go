package domain

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"sync"
)

// MasterKey is the root of the envelope hierarchy: it wraps KEKs and nothing
// else. Key material must be exactly 32 bytes.
type MasterKey struct {
	ID  string
	Key []byte
}

// MasterKeyChain holds every configured master key with one designated as
// active. Old keys stay resolvable so KEKs wrapped under them remain
// decryptable during master key rotation. Safe for concurrent use.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// ActiveMasterKeyID returns the ID of the master key that wraps new KEKs.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Get retrieves a master key by its ID.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close zeroes all key material and resets the chain.
func (m *MasterKeyChain) Close() {
	m.keys.Range(func(_, value interface{}) bool {
		if mk, ok := value.(*MasterKey); ok {
			Zero(mk.Key)
		}
		return true
	})
	m.activeID = ""
	m.keys.Clear()
}

// LoadMasterKeyChain loads master keys from environment variables, optionally
// unwrapping KMS-protected key material.
//
// MASTER_KEYS is a comma-separated list of "id:base64payload" entries and
// ACTIVE_MASTER_KEY_ID names the entry that wraps new KEKs. Without a keeper
// each payload decodes directly to a 32-byte key. With a keeper each payload
// is a KMS ciphertext that the keeper decrypts to the 32-byte key, so the
// environment never carries usable key material.
//
// On any error the partially built chain is closed so no key material
// survives a failed load.
func LoadMasterKeyChain(ctx context.Context, keeper KMSKeeper) (*MasterKeyChain, error) {
	raw := os.Getenv("MASTER_KEYS")
	if raw == "" {
		return nil, ErrMasterKeysNotSet
	}

	active := os.Getenv("ACTIVE_MASTER_KEY_ID")
	if active == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	mkc := &MasterKeyChain{activeID: active}

	parts := strings.SplitSeq(raw, ",")
	for part := range parts {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 {
			mkc.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		payload, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}

		key := payload
		if keeper != nil {
			key, err = keeper.Decrypt(ctx, payload)
			if err != nil {
				Zero(payload)
				mkc.Close()
				return nil, fmt.Errorf("failed to unwrap master key %s: %w", id, err)
			}
			Zero(payload)
		}

		if len(key) != 32 {
			Zero(key)
			mkc.Close()
			return nil, fmt.Errorf(
				"%w: master key %s must be 32 bytes, got %d",
				ErrInvalidKeySize,
				id,
				len(key),
			)
		}
		stored := make([]byte, len(key))
		copy(stored, key)
		mkc.keys.Store(id, &MasterKey{ID: id, Key: stored})
		Zero(key)
	}

	if _, ok := mkc.Get(active); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, active)
	}

	return mkc, nil
}

// LoadMasterKeyChainFromEnv loads plain base64 master keys with no KMS
// unwrapping. Intended for development and test environments.
func LoadMasterKeyChainFromEnv() (*MasterKeyChain, error) {
	return LoadMasterKeyChain(context.Background(), nil)
}
