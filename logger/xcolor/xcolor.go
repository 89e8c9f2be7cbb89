// Package xcolor wraps strings in ANSI color escapes for console log levels.
package xcolor

const (
	reset = "\x1b[0m"
	blue  = "\x1b[34m"
	green = "\x1b[32m"
	yellow = "\x1b[33m"
	red   = "\x1b[31m"
)

// Blue wraps s in the blue ANSI escape, used for debug-level labels.
func Blue(s string) string { return wrap(blue, s) }

// Green wraps s in the green ANSI escape, used for info-level labels.
func Green(s string) string { return wrap(green, s) }

// Yellow wraps s in the yellow ANSI escape, used for warn-level labels.
func Yellow(s string) string { return wrap(yellow, s) }

// Red wraps s in the red ANSI escape, used for error-level labels.
func Red(s string) string { return wrap(red, s) }

func wrap(color, s string) string {
	return color + s + reset
}
