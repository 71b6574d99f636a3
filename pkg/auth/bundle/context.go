// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"context"
	"net/http"
)

// MetadataContextKey is the key used to store inbound metadata in a context.
type MetadataContextKey struct{}

// WithMetadata stores a copy of the operation's transport metadata in ctx.
// Only the headers the parser reads are kept.
func WithMetadata(ctx context.Context, h http.Header) context.Context {
	md := http.Header{}
	for _, name := range []string{HeaderAuthorization, HeaderCloudID, HeaderUserEmail} {
		if values := h.Values(name); values != nil {
			md[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
		}
	}
	return context.WithValue(ctx, MetadataContextKey{}, md)
}

// MetadataFromContext returns the metadata stored by WithMetadata, or an
// empty header set for operations that arrived without any (stdio).
func MetadataFromContext(ctx context.Context) http.Header {
	md, ok := ctx.Value(MetadataContextKey{}).(http.Header)
	if !ok {
		return http.Header{}
	}
	return md
}
