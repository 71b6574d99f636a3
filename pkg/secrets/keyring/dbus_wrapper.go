// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/zalando/go-keyring"
)

const probeService = "mcp-atlassian-keyring-probe"

// dbusWrapperProvider wraps github.com/zalando/go-keyring, which talks to the
// macOS keychain, the Windows credential manager or the D-Bus secret service.
type dbusWrapperProvider struct{}

// NewZalandoKeyringProvider returns the platform keyring provider.
func NewZalandoKeyringProvider() Provider {
	return &dbusWrapperProvider{}
}

func (*dbusWrapperProvider) Set(service, key, value string) error {
	return keyring.Set(service, key, value)
}

func (*dbusWrapperProvider) Get(service, key string) (string, error) {
	value, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return value, err
}

func (*dbusWrapperProvider) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func (p *dbusWrapperProvider) IsAvailable() bool {
	key := uniqueProbeKey()
	if err := p.Set(probeService, key, "probe"); err != nil {
		return false
	}
	_ = p.Delete(probeService, key)
	return true
}

func (*dbusWrapperProvider) Name() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	case "linux":
		return "D-Bus Secret Service"
	default:
		return "System Keyring"
	}
}

// uniqueProbeKey returns a key name for availability checks that does not
// collide when several checks run at once.
func uniqueProbeKey() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("probe-%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("probe-%d-%x", time.Now().UnixNano(), b)
}
