package cache

import (
	"strings"
	"testing"
	"time"
)

func TestMemcachedKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "weather:Paris:False", "weather%3AParis%3AFalse"},
		{"space", "weather:New York:True", "weather%3ANew+York%3ATrue"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MemcachedKey(tc.in); got != tc.want {
				t.Errorf("MemcachedKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestMemcachedKey_Long(t *testing.T) {
	long := "weather:" + strings.Repeat("x", 300) + ":False"
	got := MemcachedKey(long)
	if len(got) > maxKeyLength {
		t.Errorf("len(MemcachedKey) = %d, want <= %d", len(got), maxKeyLength)
	}
	if !strings.HasPrefix(got, "sha256:") {
		t.Errorf("MemcachedKey(long) = %q, want sha256 digest", got)
	}
	if got != MemcachedKey(long) {
		t.Error("MemcachedKey is not deterministic")
	}
}

func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{12 * time.Hour, 43200},
		{time.Minute, 60},
		{0, 3600},
		{-time.Second, 3600},
		{31 * 24 * time.Hour, 3600},
	}
	for _, tc := range tests {
		if got := ExpirationSeconds(tc.ttl); got != tc.want {
			t.Errorf("ExpirationSeconds(%v) = %d, want %d", tc.ttl, got, tc.want)
		}
	}
}

func TestParseAddrs(t *testing.T) {
	got := ParseAddrs(" host1:11211, ,host2:11211 ")
	if len(got) != 2 || got[0] != "host1:11211" || got[1] != "host2:11211" {
		t.Errorf("ParseAddrs() = %v", got)
	}
	if got := ParseAddrs(""); len(got) != 0 {
		t.Errorf("ParseAddrs(\"\") = %v, want empty", got)
	}
}
