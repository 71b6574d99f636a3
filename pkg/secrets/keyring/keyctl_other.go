// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package keyring

import "errors"

var errKeyctlUnsupported = errors.New("the kernel keyring is only supported on Linux")

// NewKeyctlProvider reports that the kernel keyring is not available on this
// platform.
func NewKeyctlProvider() (Provider, error) {
	return nil, errKeyctlUnsupported
}
