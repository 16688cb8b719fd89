// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"strings"
	"testing"
)

func TestBridgeErrorFormat(t *testing.T) {
	cases := []struct {
		desc      string
		sessionID string
		want      string
	}{
		{
			desc:      "with session",
			sessionID: "abc-123",
			want:      "deliver [abc-123] 10.0.0.1:5222: transport closed",
		},
		{
			desc:      "without session",
			sessionID: "",
			want:      "deliver 10.0.0.1:5222: transport closed",
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			err := New("deliver", tc.sessionID, "10.0.0.1:5222", ErrTransportClosed)
			if err.Error() != tc.want {
				t.Errorf("got %q, want %q", err.Error(), tc.want)
			}
		})
	}
}

func TestBridgeErrorUnwrap(t *testing.T) {
	err := New("route", "abc-123", "10.0.0.1:5222", ErrSessionClosed)
	if !Is(err, ErrSessionClosed) {
		t.Errorf("expected chain to match ErrSessionClosed, got %v", err)
	}
	if Is(err, ErrTransportClosed) {
		t.Errorf("chain matched unrelated sentinel: %v", err)
	}
}

func TestNewNilError(t *testing.T) {
	if err := New("deliver", "abc-123", "10.0.0.1:5222", nil); err != nil {
		t.Errorf("expected nil for nil cause, got %v", err)
	}
}

func TestWrap(t *testing.T) {
	err := Wrap(ErrRateLimited, "read frame")
	if !Is(err, ErrRateLimited) {
		t.Errorf("expected chain to match ErrRateLimited, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "read frame: ") {
		t.Errorf("unexpected message %q", err.Error())
	}

	if err := Wrap(nil, "read frame"); err != nil {
		t.Errorf("expected nil for nil cause, got %v", err)
	}
}
