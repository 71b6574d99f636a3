// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/gofrs/flock"

	"github.com/yanintorres/mcp-atlassian/pkg/auth/types"
	"github.com/yanintorres/mcp-atlassian/pkg/config"
	"github.com/yanintorres/mcp-atlassian/pkg/logger"
	"github.com/yanintorres/mcp-atlassian/pkg/secrets/keyring"
)

const (
	// KeyringService is the keyring service name tokens are stored under.
	KeyringService = "mcp-atlassian-oauth"

	dataDirName = "mcp-atlassian"
	lockTimeout = 1 * time.Second
)

// TokenRecord is the persisted form of an OAuth token set. ExpiresAt is a
// Unix timestamp in seconds and may carry a fractional part.
type TokenRecord struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token,omitempty"`
	ExpiresAt    float64 `json:"expires_at,omitempty"`
	CloudID      string  `json:"cloud_id,omitempty"`
}

// RecordFrom builds the record persisted for o.
func RecordFrom(o *types.OAuth) *TokenRecord {
	rec := &TokenRecord{
		AccessToken:  o.AccessToken,
		RefreshToken: o.RefreshToken,
		CloudID:      o.TenantID,
	}
	if !o.ExpiresAt.IsZero() {
		rec.ExpiresAt = float64(o.ExpiresAt.UnixNano()) / float64(time.Second)
	}
	return rec
}

// Expiry returns ExpiresAt as a time, or the zero time when unset.
func (r *TokenRecord) Expiry() time.Time {
	if r.ExpiresAt <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(r.ExpiresAt)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}

// Store persists token records for single-user mode. It tries the system
// keyring first and falls back to a 0600 file under the XDG data directory.
type Store struct {
	keyring keyring.Provider
	dir     string
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKeyring sets the keyring provider. A nil provider disables the
// keyring and uses the file fallback only.
func WithKeyring(p keyring.Provider) StoreOption {
	return func(s *Store) {
		s.keyring = p
	}
}

// WithDirectory overrides the file fallback directory.
func WithDirectory(dir string) StoreOption {
	return func(s *Store) {
		s.dir = dir
	}
}

// NewStore returns a Store backed by the composite system keyring.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{keyring: keyring.NewCompositeProvider()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func keyringUser(clientID string) string {
	return "oauth-" + clientID
}

func (s *Store) filePath(clientID string) (string, error) {
	name := fmt.Sprintf("oauth-%s.json", clientID)
	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0700); err != nil {
			return "", fmt.Errorf("failed to create token directory: %w", err)
		}
		return filepath.Join(s.dir, name), nil
	}
	return xdg.DataFile(filepath.Join(dataDirName, name))
}

// Save stores rec for clientID.
func (s *Store) Save(ctx context.Context, clientID string, rec *TokenRecord) error {
	if clientID == "" {
		return errors.New("cannot store tokens without a client id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode token record: %w", err)
	}

	if s.keyring != nil {
		err := s.keyring.Set(KeyringService, keyringUser(clientID), string(data))
		if err == nil {
			logger.Debugf("stored OAuth tokens for client %s in %s", clientID, s.keyring.Name())
			return nil
		}
		logger.Warnf("failed to store OAuth tokens in keyring, falling back to file: %v", err)
	}
	return s.saveFile(ctx, clientID, data)
}

func (s *Store) saveFile(ctx context.Context, clientID string, data []byte) error {
	path, err := s.filePath(clientID)
	if err != nil {
		return fmt.Errorf("unable to resolve token file path: %w", err)
	}

	fileLock := flock.New(path + ".lock")
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := fileLock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock: timeout after %v", lockTimeout)
	}
	defer fileLock.Unlock()

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	logger.Debugf("stored OAuth tokens for client %s in %s", clientID, path)
	return nil
}

// Load returns the record stored for clientID. Lookup failures are logged
// and reported as absent.
func (s *Store) Load(_ context.Context, clientID string) (*TokenRecord, bool) {
	if clientID == "" {
		return nil, false
	}

	if s.keyring != nil {
		data, err := s.keyring.Get(KeyringService, keyringUser(clientID))
		switch {
		case err == nil:
			if rec, ok := decodeRecord([]byte(data)); ok {
				return rec, true
			}
		case errors.Is(err, keyring.ErrNotFound):
		default:
			logger.Debugf("keyring lookup for client %s failed: %v", clientID, err)
		}
	}

	path, err := s.filePath(clientID)
	if err != nil {
		logger.Debugf("unable to resolve token file path: %v", err)
		return nil, false
	}
	// #nosec G304: the path is derived from the data directory and client id.
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("failed to read token file %s: %v", path, err)
		}
		return nil, false
	}
	return decodeRecord(data)
}

func decodeRecord(data []byte) (*TokenRecord, bool) {
	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		logger.Warnf("ignoring unreadable stored OAuth tokens: %v", err)
		return nil, false
	}
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return nil, false
	}
	return &rec, true
}

// Persister returns a TokenPersister that saves refreshed credentials.
func (s *Store) Persister() TokenPersister {
	return func(ctx context.Context, o *types.OAuth) error {
		return s.Save(ctx, o.ClientID, RecordFrom(o))
	}
}

// TokenLoader adapts the store for config.WithTokenLoader.
func (s *Store) TokenLoader(ctx context.Context) config.TokenLoader {
	return func(clientID string) (*config.StoredTokens, bool) {
		rec, ok := s.Load(ctx, clientID)
		if !ok {
			return nil, false
		}
		return &config.StoredTokens{
			AccessToken:  rec.AccessToken,
			RefreshToken: rec.RefreshToken,
			ExpiresAt:    rec.Expiry(),
			CloudID:      rec.CloudID,
		}, true
	}
}
