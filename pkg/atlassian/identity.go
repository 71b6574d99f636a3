// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package atlassian

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrNotAnObject is returned when an identity body is not a JSON object.
var ErrNotAnObject = errors.New("identity response is not a JSON object")

// ErrNoAccountID is returned when an identity body has no account identifier.
var ErrNoAccountID = errors.New("identity response has no account identifier")

// Identity is the upstream account a credential was confirmed to belong to.
type Identity struct {
	// AccountID is the Cloud accountId, or the Server/DC user key or name.
	AccountID string `json:"account_id"`

	// Email is the account email when the upstream exposes it.
	Email string `json:"email,omitempty"`

	// DisplayName is the human-readable account name.
	DisplayName string `json:"display_name,omitempty"`
}

// accountIDPaths are tried in order. Cloud returns accountId; Server and
// Data Center return key and name.
var accountIDPaths = []string{"accountId", "key", "name", "username", "userKey"}

var emailPaths = []string{"emailAddress", "email"}

// ParseIdentity extracts an Identity from a "who am I" response body.
func ParseIdentity(body []byte) (*Identity, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNotAnObject
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, ErrNotAnObject
	}

	id := &Identity{
		AccountID:   firstString(root, accountIDPaths),
		Email:       firstString(root, emailPaths),
		DisplayName: root.Get("displayName").String(),
	}
	if id.AccountID == "" {
		return nil, fmt.Errorf("%w (checked %v)", ErrNoAccountID, accountIDPaths)
	}
	return id, nil
}

func firstString(root gjson.Result, paths []string) string {
	for _, p := range paths {
		if v := root.Get(p); v.Exists() && v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return ""
}
