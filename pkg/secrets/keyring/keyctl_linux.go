// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package keyring

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// keyctlProvider stores secrets in the Linux kernel user keyring. It covers
// headless hosts that have no D-Bus secret service.
type keyctlProvider struct {
	ringID int
	mu     sync.RWMutex
}

// NewKeyctlProvider returns a provider backed by the kernel user keyring.
func NewKeyctlProvider() (Provider, error) {
	// Use user keyring for persistence across process invocations
	ringID, err := unix.KeyctlGetKeyringID(unix.KEY_SPEC_USER_KEYRING, false)
	if err != nil {
		return nil, fmt.Errorf("could not get user keyring: %w", err)
	}

	// Link to thread keyring for reads
	_, err = unix.KeyctlInt(unix.KEYCTL_LINK, ringID, unix.KEY_SPEC_THREAD_KEYRING, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("unable to link user keyring to thread keyring: %w", err)
	}

	return &keyctlProvider{ringID: ringID}, nil
}

func (k *keyctlProvider) Set(service, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	keyName := keyctlName(service, key)
	if _, err := unix.AddKey("user", keyName, []byte(value), k.ringID); err != nil {
		return fmt.Errorf("failed to set key '%s' in user keyring: %w", keyName, err)
	}
	return nil
}

func (k *keyctlProvider) Get(service, key string) (string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	keyName := keyctlName(service, key)
	keyID, err := unix.KeyctlSearch(k.ringID, "user", keyName, 0)
	if err != nil {
		return "", ErrNotFound
	}

	bufSize := 8192
	buf := make([]byte, bufSize)
	readBytes, err := unix.KeyctlBuffer(unix.KEYCTL_READ, keyID, buf, bufSize)
	if err != nil {
		return "", fmt.Errorf("read of key '%s' failed: %w", keyName, err)
	}

	if readBytes > bufSize {
		return "", fmt.Errorf("buffer too small for keyring payload")
	}

	return string(buf[:readBytes]), nil
}

func (k *keyctlProvider) Delete(service, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	keyName := keyctlName(service, key)
	keyID, err := unix.KeyctlSearch(k.ringID, "user", keyName, 0)
	if err != nil {
		// Already gone.
		return nil
	}

	if _, err := unix.KeyctlInt(unix.KEYCTL_REVOKE, keyID, 0, 0, 0); err != nil {
		return fmt.Errorf("failed to delete key '%s': %w", keyName, err)
	}
	return nil
}

func (k *keyctlProvider) IsAvailable() bool {
	key := uniqueProbeKey()
	if err := k.Set(probeService, key, "probe"); err != nil {
		return false
	}
	_ = k.Delete(probeService, key)
	return true
}

func (k *keyctlProvider) Name() string {
	return "Linux Keyctl"
}

func keyctlName(service, key string) string {
	return fmt.Sprintf("%s:%s", service, key)
}
