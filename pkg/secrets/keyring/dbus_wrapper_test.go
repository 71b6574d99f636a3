// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// The zalando mock backend is process-global, so these tests run serially.
//
//nolint:paralleltest
func TestZalandoKeyringProvider_RoundTrip(t *testing.T) {
	keyring.MockInit()
	p := NewZalandoKeyringProvider()

	_, err := p.Get("svc", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, p.Set("svc", "key", "value"))
	got, err := p.Get("svc", "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	require.NoError(t, p.Delete("svc", "key"))
	require.NoError(t, p.Delete("svc", "key"), "deleting a missing key is not an error")

	_, err = p.Get("svc", "key")
	require.ErrorIs(t, err, ErrNotFound)

	assert.True(t, p.IsAvailable())
	assert.NotEmpty(t, p.Name())
}
