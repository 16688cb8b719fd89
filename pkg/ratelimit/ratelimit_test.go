// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucketAllow(t *testing.T) {
	tb := NewTokenBucket(3, 0)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Fatalf("Allow() = false on token %d, want true", i)
		}
	}
	if tb.Allow() {
		t.Error("Allow() = true after capacity exhausted, want false")
	}
}

func TestTokenBucketAllowN(t *testing.T) {
	tb := NewTokenBucket(10, 0)

	if !tb.AllowN(10) {
		t.Error("AllowN(10) = false with full bucket, want true")
	}
	if tb.AllowN(1) {
		t.Error("AllowN(1) = true with empty bucket, want false")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := NewTokenBucket(2, 100)

	tb.AllowN(2)
	if tb.Allow() {
		t.Fatal("bucket should be empty")
	}

	deadline := time.Now().Add(time.Second)
	for !tb.Allow() {
		if time.Now().After(deadline) {
			t.Fatal("bucket never refilled")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestTokenBucketRefillCap(t *testing.T) {
	tb := NewTokenBucket(5, 1000)
	time.Sleep(50 * time.Millisecond)

	if got := tb.Available(); got > 5 {
		t.Errorf("Available() = %d, must never exceed capacity", got)
	}
}
