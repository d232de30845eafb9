// Package ui renders kbridge's terminal output.
package ui

import (
	"fmt"
	"strings"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorOK     = 114 // green
	colorWarn   = 179 // amber
	colorError  = 167 // red
	colorMuted  = 245 // medium gray
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return paint(colorOK, s) }

// RenderWarn returns s in amber.
func RenderWarn(s string) string { return paint(colorWarn, s) }

// RenderError returns s in red.
func RenderError(s string) string { return paint(colorError, s) }

// RenderKind colors an audit event kind by severity: errors red, best-effort
// warnings amber, webhook bookkeeping gray, everything else green.
func RenderKind(kind string) string {
	switch {
	case strings.HasPrefix(kind, "error"), kind == "webhook_error":
		return RenderError(kind)
	case strings.HasPrefix(kind, "warning"):
		return RenderWarn(kind)
	case strings.HasPrefix(kind, "webhook"):
		return RenderMuted(kind)
	}
	return RenderOK(kind)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
