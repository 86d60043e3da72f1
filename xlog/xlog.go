// Package xlog sets up the process-wide zerolog logger used by every other
// package in this module. It is adapted from the console-writer setup the
// teacher framework uses for its own run logs, trimmed to the handful of
// knobs streamcc actually needs (level, colour).
package xlog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	SetConsole(false)
}

var colourDisabled bool

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	_
	_
	_
	_

	colorBold = 1
)

// V formats a value via fmt.Sprintf, kept as a distinct helper (rather than
// inlining fmt.Sprintf at call sites) so log call sites read uniformly.
func V[T any](val T) string {
	return fmt.Sprintf("%v", val)
}

// SetLevel maps a simple 0/1/2+ debug level (as accepted from the CLI's
// -debug flag) onto zerolog's level enum.
func SetLevel(level int) {
	switch {
	case level <= 0:
		log.Logger = log.With().Logger().Level(zerolog.InfoLevel)
	case level == 1:
		log.Logger = log.With().Logger().Level(zerolog.DebugLevel)
	default:
		log.Logger = log.With().Logger().Level(zerolog.TraceLevel)
	}
}

// SetConsole installs a human-readable console writer. Pass noColour=true
// for CI logs or non-TTY redirection.
func SetConsole(noColour bool) {
	colourDisabled = noColour
	zerolog.CallerMarshalFunc = callerMarshal

	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly, NoColor: noColour}
	cw.FormatCaller = consoleFormatCaller
	cw.FormatLevel = consoleFormatLevel
	cw.PartsOrder = []string{
		zerolog.TimestampFieldName,
		zerolog.CallerFieldName,
		zerolog.LevelFieldName,
		zerolog.MessageFieldName,
	}
	log.Logger = log.With().Caller().Logger().Output(cw)
}

func colorize(s interface{}, c int) string {
	if colourDisabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

func callerMarshal(_ uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	file = fmt.Sprintf("%15s.%-4s", short, strconv.Itoa(line))
	if len(file) > 20 {
		file = ".." + file[len(file)-18:]
	}
	return colorize(file, colorBlack)
}

func consoleFormatCaller(i any) string {
	var c string
	if cc, ok := i.(string); ok {
		c = cc
	}
	if len(c) > 0 {
		if cwd, err := os.Getwd(); err == nil {
			if rel, err := filepath.Rel(cwd, c); err == nil {
				c = rel
			}
		}
		c = colorize(c, colorBold)
	}
	return c
}

func consoleFormatLevel(i any) string {
	var l string
	if ll, ok := i.(string); ok {
		switch ll {
		case zerolog.LevelDebugValue:
			l = colorize("| DEBUG |", colorYellow)
		case zerolog.LevelInfoValue:
			l = colorize("| INFO  |", colorGreen)
		case zerolog.LevelWarnValue:
			l = colorize("| WARN  |", colorRed)
		case zerolog.LevelErrorValue:
			l = colorize(colorize("| ERROR |", colorRed), colorBold)
		case zerolog.LevelFatalValue, zerolog.LevelPanicValue:
			l = colorize(colorize("| FATAL |", colorRed), colorBold)
		default:
			l = colorize(ll, colorBold)
		}
	} else {
		l = strings.ToUpper(fmt.Sprintf("| %5v |", i))
	}
	return l
}
