// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"fmt"
	"sync"

	"github.com/yanintorres/mcp-atlassian/pkg/logger"
)

// compositeProvider delegates to the first available provider in its list.
// The choice is made once, on first use.
type compositeProvider struct {
	providers []Provider

	once   sync.Once
	active Provider
}

// NewCompositeProvider returns a provider backed by the platform keyring,
// falling back to the Linux kernel keyring where there is no secret service.
func NewCompositeProvider() Provider {
	providers := []Provider{NewZalandoKeyringProvider()}
	if keyctl, err := NewKeyctlProvider(); err == nil {
		providers = append(providers, keyctl)
	}
	return newCompositeProvider(providers...)
}

func newCompositeProvider(providers ...Provider) *compositeProvider {
	return &compositeProvider{providers: providers}
}

func (c *compositeProvider) getActiveProvider() Provider {
	c.once.Do(func() {
		for _, p := range c.providers {
			if p.IsAvailable() {
				logger.Debugf("using keyring provider: %s", p.Name())
				c.active = p
				return
			}
		}
	})
	return c.active
}

func (c *compositeProvider) Set(service, key, value string) error {
	p := c.getActiveProvider()
	if p == nil {
		return fmt.Errorf("no keyring provider available")
	}
	return p.Set(service, key, value)
}

func (c *compositeProvider) Get(service, key string) (string, error) {
	p := c.getActiveProvider()
	if p == nil {
		return "", fmt.Errorf("no keyring provider available")
	}
	return p.Get(service, key)
}

func (c *compositeProvider) Delete(service, key string) error {
	p := c.getActiveProvider()
	if p == nil {
		return fmt.Errorf("no keyring provider available")
	}
	return p.Delete(service, key)
}

func (c *compositeProvider) IsAvailable() bool {
	return c.getActiveProvider() != nil
}

func (c *compositeProvider) Name() string {
	if p := c.getActiveProvider(); p != nil {
		return p.Name()
	}
	return "None Available"
}
