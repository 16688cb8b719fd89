// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package xmppws

import (
	"testing"

	"github.com/caarlos0/env/v11"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := NewConfig(env.Options{Prefix: "XMPPWS_TEST_UNSET_"})
	if err != nil {
		t.Fatalf("NewConfig() error: %v", err)
	}

	if cfg.Domain != "localhost" {
		t.Errorf("Domain = %q, want localhost", cfg.Domain)
	}
	if cfg.ValidateHost {
		t.Error("ValidateHost must default to false")
	}
	if cfg.StreamSubstitutionEnabled {
		t.Error("StreamSubstitutionEnabled must default to false")
	}
	if cfg.RateLimitEnabled {
		t.Error("RateLimitEnabled must default to false")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("XMPPWS_DOMAIN", "chat.example.org")
	t.Setenv("XMPPWS_VALIDATE_HOST", "true")

	cfg, err := NewConfig(env.Options{Prefix: "XMPPWS_"})
	if err != nil {
		t.Fatalf("NewConfig() error: %v", err)
	}
	if cfg.Domain != "chat.example.org" {
		t.Errorf("Domain = %q, want chat.example.org", cfg.Domain)
	}
	if !cfg.ValidateHost {
		t.Error("ValidateHost = false, want true")
	}
}

func TestFlagsRuntimeToggle(t *testing.T) {
	f := NewFlags(Config{StreamSubstitutionEnabled: false})
	if f.StreamSubstitution() {
		t.Fatal("flag must start false")
	}

	f.SetStreamSubstitution(true)
	if !f.StreamSubstitution() {
		t.Error("flag must be true after toggle")
	}
}
