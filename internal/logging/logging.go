// Package logging configures the global zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/configtypes"
	"github.com/bungeeguard/bungeeguard/internal/logutils"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var logLevelMatches = map[string]zerolog.Level{
	"NONE":  zerolog.Disabled,
	"TRACE": zerolog.TraceLevel,
	"DEBUG": zerolog.DebugLevel,
	"INFO":  zerolog.InfoLevel,
	"WARN":  zerolog.WarnLevel,
	"ERROR": zerolog.ErrorLevel,
	"FATAL": zerolog.FatalLevel,
}

// ParseLevel matches a configured level name, case-insensitive. Unknown
// names are reported with ok set to false.
func ParseLevel(level string) (zerolog.Level, bool) {
	l, ok := logLevelMatches[strings.ToUpper(level)]
	return l, ok
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:                 out,
		TimeFormat:          "2006-01-02 15:04:05",
		FormatLevel:         logutils.ConsoleFormatLevel(),
		FormatErrFieldName:  logutils.ConsoleFormatErrFieldName(),
		FormatErrFieldValue: logutils.ConsoleFormatErrFieldValue(),
	}
}

func isTerminalAttached() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) && runtime.GOOS != "windows"
}

// Setup applies c to the global logger. The returned func closes the log
// file, it is never nil.
func Setup(c configtypes.Log) (func(), error) {
	if isTerminalAttached() {
		log.Logger = log.Output(consoleWriter(os.Stdout))
	}
	logLevel, ok := ParseLevel(c.Level)
	if !ok {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	if c.File != "" {
		f, err := os.OpenFile(c.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return func() {}, fmt.Errorf("error opening log file: %w", err)
		}
		log.Logger = log.Output(f)
		return func() {
			_ = f.Close()
		}, nil
	}
	return func() {}, nil
}

// Enabled checks if a specific logging level is enabled
func Enabled(level zerolog.Level) bool {
	return level >= zerolog.GlobalLevel()
}
