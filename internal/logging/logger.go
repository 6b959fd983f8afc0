// Package logging provides leveled, subsystem-prefixed log helpers shared by
// the graph, dedup, and consolidation packages.
package logging

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = os.Getenv("AXON_DEBUG") == "true"

// Info logs an informational message (always shown).
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Warn logs a recoverable problem (always shown).
func Warn(subsystem, format string, args ...any) {
	log.Printf("[%s] WARN "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message, shown only when AXON_DEBUG=true.
func Debug(subsystem, format string, args ...any) {
	if debugEnabled {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Truncate flattens s to a single line and caps it at maxLen runes,
// appending an ellipsis when cut. Safe for multi-byte neuron content.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
