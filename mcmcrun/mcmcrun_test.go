package main

import (
	"testing"
)

func TestResolveSeed(t *testing.T) {
	now := func() int64 { return 42 }
	for _, c := range []struct {
		flag     string
		cfg      int64
		expected int64
	}{
		{"", 0, 42},
		{"", 7, 7},
		{"0", 7, 0},
		{"-1", 0, -1},
		{"-1", 7, -1},
		{"123", 0, 123},
	} {
		s, err := resolveSeed(c.flag, c.cfg, now)
		if err != nil {
			t.Fatal(err)
		}
		if s != c.expected {
			t.Errorf("resolveSeed(%q, %d) = %d, expected %d", c.flag, c.cfg, s, c.expected)
		}
	}
	if _, err := resolveSeed("abc", 0, now); err == nil {
		t.Error("invalid seed was accepted")
	}
}
