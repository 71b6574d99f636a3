// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keyring stores small secrets, such as persisted OAuth tokens, in
// the operating system keyring.
package keyring

import "errors"

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks -source=interface.go Provider

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("key not found")

// Provider is a keyring backend. Values are addressed by a service name and
// a key within that service.
type Provider interface {
	Set(service, key, value string) error
	Get(service, key string) (string, error)
	Delete(service, key string) error

	// IsAvailable probes the backend. Unavailable backends are skipped by
	// the composite provider.
	IsAvailable() bool

	// Name identifies the backend in log messages.
	Name() string
}
