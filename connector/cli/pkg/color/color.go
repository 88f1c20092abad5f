// Package color holds the slackctl palette. Escape handling and TTY
// detection come from fatih/color; NO_COLOR and --no-color both disable it.
package color

import (
	"strconv"

	fc "github.com/fatih/color"
)

var (
	Success = fc.New(fc.FgGreen, fc.Bold)
	Failure = fc.New(fc.FgRed, fc.Bold)
	Info    = fc.New(fc.FgCyan)
	Warn    = fc.New(fc.FgYellow)
	Header  = fc.New(fc.FgWhite, fc.Bold)
	Muted   = fc.New(fc.Faint)
)

// Disable turns off color for the rest of the process.
func Disable() {
	fc.NoColor = true
}

// Enabled reports whether escapes are currently emitted.
func Enabled() bool {
	return !fc.NoColor
}

// Kind colors a subscriber kind for table output.
func Kind(kind string) string {
	switch kind {
	case "messages":
		return fc.BlueString(kind)
	case "appMention":
		return fc.MagentaString(kind)
	case "reactions":
		return fc.YellowString(kind)
	case "conversationThread":
		return fc.CyanString(kind)
	default:
		return kind
	}
}

// HTTPStatus colors a status code by class: 2xx green, 4xx yellow, 5xx red.
func HTTPStatus(code int) string {
	s := strconv.Itoa(code)
	switch {
	case code >= 500:
		return Failure.Sprint(s)
	case code >= 400:
		return Warn.Sprint(s)
	case code >= 200 && code < 300:
		return Success.Sprint(s)
	default:
		return s
	}
}
