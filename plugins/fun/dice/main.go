// Command dice is a herald plugin that rolls dice, e.g. ".dice 2d6".
//
// The manifest runs run.sh, which builds the binary beside it on first use.
// To build ahead of time, run go generate in this directory.
package main

//go:generate go build -o dice .

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"

	"github.com/mattjoyce/herald/internal/protocol"
)

const (
	defaultSides   = 6
	defaultMaxDice = 10
	maxSides       = 1000
)

func main() {
	resp := handle(os.Stdin, rand.IntN)
	_ = json.NewEncoder(os.Stdout).Encode(resp)
}

func handle(in io.Reader, intn func(int) int) protocol.Response {
	var req protocol.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return errResp(fmt.Sprintf("invalid request JSON: %v", err))
	}
	return roll(req, intn)
}

func roll(req protocol.Request, intn func(int) int) protocol.Response {
	spec := "1d6"
	if len(req.Args) > 0 {
		spec = strings.ToLower(req.Args[0])
	}

	count, sides, err := parseSpec(spec)
	if err != nil {
		return reply(fmt.Sprintf("❌ %v\nUsage: %sdice [N]d[S], e.g. %sdice 2d6", err, req.Prefix, req.Prefix))
	}
	if limit := maxDice(req.Config); count > limit {
		return reply(fmt.Sprintf("❌ At most %d dice per roll.", limit))
	}

	rolls := make([]string, count)
	total := 0
	for i := range rolls {
		n := intn(sides) + 1
		total += n
		rolls[i] = strconv.Itoa(n)
	}

	text := fmt.Sprintf("🎲 %s: %s", spec, strings.Join(rolls, " + "))
	if count > 1 {
		text += fmt.Sprintf(" = *%d*", total)
	}
	return protocol.Response{
		Status:  "ok",
		Replies: []protocol.Reply{{Text: text}},
		Logs:    []protocol.LogEntry{{Level: "debug", Message: fmt.Sprintf("rolled %s total=%d", spec, total)}},
	}
}

// parseSpec accepts "NdS", "dS" and a bare side count "S".
func parseSpec(spec string) (count, sides int, err error) {
	countPart, sidesPart, found := strings.Cut(spec, "d")
	if !found {
		countPart, sidesPart = "1", spec
	}
	if countPart == "" {
		countPart = "1"
	}
	if sidesPart == "" {
		sidesPart = strconv.Itoa(defaultSides)
	}

	count, err = strconv.Atoi(countPart)
	if err != nil || count < 1 {
		return 0, 0, fmt.Errorf("invalid dice count %q", countPart)
	}
	sides, err = strconv.Atoi(sidesPart)
	if err != nil || sides < 2 || sides > maxSides {
		return 0, 0, fmt.Errorf("invalid side count %q", sidesPart)
	}
	return count, sides, nil
}

func maxDice(cfg map[string]any) int {
	switch v := cfg["max_dice"].(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case int:
		if v >= 1 {
			return v
		}
	}
	return defaultMaxDice
}

func reply(text string) protocol.Response {
	return protocol.Response{Status: "ok", Replies: []protocol.Reply{{Text: text}}}
}

func errResp(msg string) protocol.Response {
	return protocol.Response{Status: "error", Error: msg}
}
