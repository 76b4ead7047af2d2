// Package logging provides structured, leveled logging for the simulation
// kernel and its driver, plus testify-backed assertion helpers used to
// enforce the invariants of spec.md §8 at the point they would be violated.
package logging

import (
	"fmt"
	"os"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the logging verbosity, ordered the same way as the kernel's
// severity taxonomy: louder levels are more verbose, not more severe.
type Level int8

const (
	TraceLevel Level = 5
	DebugLevel Level = 4
	InfoLevel  Level = 3
	WarnLevel  Level = 2
	ErrorLevel Level = 1
	OffLevel   Level = 0

	DefaultLevel = InfoLevel
)

var (
	zaplogger    *zap.Logger
	currentLevel = DefaultLevel
)

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "t"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	zaplogger = l
}

// SetLevel sets the minimum level that will be emitted.
func SetLevel(lv Level) { currentLevel = lv }

// ParseLevel maps a command-line flag value to a Level, defaulting to
// DefaultLevel for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "trace":
		return TraceLevel
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "off":
		return OffLevel
	default:
		return DefaultLevel
	}
}

// GetLevel returns the current minimum emitted level.
func GetLevel() Level { return currentLevel }

func logf(level Level, zlevel zapcore.Level, format string, args []interface{}) {
	if level > currentLevel {
		return
	}
	zaplogger.Log(zlevel, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...interface{}) { logf(TraceLevel, zapcore.DebugLevel, format, args) }
func Debugf(format string, args ...interface{}) { logf(DebugLevel, zapcore.DebugLevel, format, args) }
func Infof(format string, args ...interface{})  { logf(InfoLevel, zapcore.InfoLevel, format, args) }
func Warnf(format string, args ...interface{})  { logf(WarnLevel, zapcore.WarnLevel, format, args) }
func Errorf(format string, args ...interface{}) { logf(ErrorLevel, zapcore.ErrorLevel, format, args) }

// Panicf logs at error level and panics with the formatted message. Used to
// surface fatal invariant violations (spec.md §7): an undefined node id, an
// undefined packet type, an undefined experiment tag, or arr > pkts.
func Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	zaplogger.Error(msg)
	panic(msg)
}

// NodeLogger scopes log output to one node id, so a run can be "watched" at
// a single node without drowning in network-wide noise.
type NodeLogger struct {
	id   int
	name string
}

// GetNodeLogger returns a logger prefixed with the given node id.
func GetNodeLogger(id int) *NodeLogger {
	return &NodeLogger{id: id, name: fmt.Sprintf("node%d", id)}
}

func (n *NodeLogger) Debugf(format string, args ...interface{}) {
	Debugf("[%s] "+format, append([]interface{}{n.name}, args...)...)
}

func (n *NodeLogger) Infof(format string, args ...interface{}) {
	Infof("[%s] "+format, append([]interface{}{n.name}, args...)...)
}

func (n *NodeLogger) Warnf(format string, args ...interface{}) {
	Warnf("[%s] "+format, append([]interface{}{n.name}, args...)...)
}

type assertLogger struct{}

func (assertLogger) Errorf(format string, args ...interface{}) {
	Panicf(format, args...)
}

// AssertTrue panics (via Panicf) if value is false. Used at the boundary of
// the invariants listed in spec.md §8 (e.g. arr <= pkts).
func AssertTrue(value bool, msgAndArgs ...interface{}) bool {
	return assert.True(assertLogger{}, value, msgAndArgs...)
}

func AssertFalse(value bool, msgAndArgs ...interface{}) bool {
	return assert.False(assertLogger{}, value, msgAndArgs...)
}

func AssertNotNil(object interface{}, msgAndArgs ...interface{}) bool {
	return assert.NotNil(assertLogger{}, object, msgAndArgs...)
}

func AssertNil(object interface{}, msgAndArgs ...interface{}) bool {
	return assert.Nil(assertLogger{}, object, msgAndArgs...)
}

// FatalIfError logs and exits the process; only used by cmd/lorasim for
// unrecoverable startup errors (bad scenario file, bad flags), never inside
// the kernel.
func FatalIfError(err error) {
	if err != nil {
		zaplogger.Error(err.Error())
		os.Exit(1)
	}
}
