package main

import (
	"strings"
	"testing"

	"github.com/mattjoyce/herald/internal/protocol"
)

func fixed(n int) func(int) int {
	return func(int) int { return n - 1 }
}

func TestRollDefaultsToOneD6(t *testing.T) {
	resp := roll(protocol.Request{Prefix: "."}, fixed(4))
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok (error=%s)", resp.Status, resp.Error)
	}
	if got := resp.Replies[0].Text; got != "🎲 1d6: 4" {
		t.Fatalf("reply = %q", got)
	}
}

func TestRollSumsMultipleDice(t *testing.T) {
	resp := roll(protocol.Request{Args: []string{"3D8"}}, fixed(5))
	if got := resp.Replies[0].Text; got != "🎲 3d8: 5 + 5 + 5 = *15*" {
		t.Fatalf("reply = %q", got)
	}
}

func TestRollRejectsBadSpec(t *testing.T) {
	for _, spec := range []string{"0d6", "2d1", "xd6", "2d5000"} {
		resp := roll(protocol.Request{Args: []string{spec}, Prefix: "."}, fixed(1))
		if resp.Status != "ok" {
			t.Fatalf("%s: status = %q, want ok", spec, resp.Status)
		}
		if !strings.HasPrefix(resp.Replies[0].Text, "❌ invalid") {
			t.Fatalf("%s: reply = %q", spec, resp.Replies[0].Text)
		}
	}
}

func TestRollHonoursMaxDiceConfig(t *testing.T) {
	req := protocol.Request{Args: []string{"5d6"}, Config: map[string]any{"max_dice": float64(4)}}
	resp := roll(req, fixed(1))
	if got := resp.Replies[0].Text; got != "❌ At most 4 dice per roll." {
		t.Fatalf("reply = %q", got)
	}
}

func TestParseSpec(t *testing.T) {
	tests := []struct {
		spec         string
		count, sides int
	}{
		{"d20", 1, 20},
		{"20", 1, 20},
		{"4d", 4, 6},
		{"2d10", 2, 10},
	}
	for _, tt := range tests {
		count, sides, err := parseSpec(tt.spec)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tt.spec, err)
		}
		if count != tt.count || sides != tt.sides {
			t.Fatalf("%s: got %dd%d, want %dd%d", tt.spec, count, sides, tt.count, tt.sides)
		}
	}
}
