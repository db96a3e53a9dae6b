package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/zapcore"
	"golang.org/x/text/width"

	"github.com/gearedup/server/internal/diag"
)

// ── Startup display helpers ────────────────────────────────────────

func printBanner(name, appID, mode string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              GearedUp  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m%s:\033[0m %s \033[90m(app id: %s)\033[0m\n\n", mode, name, appID)
}

// displayWidth counts terminal columns, two for East Asian wide runes.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, value any) {
	v := fmt.Sprint(value)
	dots := 42 - displayWidth(label) - len(v)
	if dots < 3 {
		dots = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dots), v)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// runConsole prints diagnostics from stream until ctx is done.
func runConsole(ctx context.Context, stream *diag.Stream) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-stream.C():
			fmt.Println(formatEntry(e))
		}
	}
}

func formatEntry(e diag.Entry) string {
	color := "33"
	if e.Level >= zapcore.ErrorLevel {
		color = "31"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "  \033[%sm!\033[0m %s", color, e.Message)
	if e.Logger != "" {
		fmt.Fprintf(&b, " \033[90m[%s]\033[0m", e.Logger)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}
