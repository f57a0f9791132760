package logger

import (
	"fmt"
	stdlog "log"
	"os"
	"sort"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel = LevelInfo
	logger       = stdlog.New(os.Stdout, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// Fields are structured key=value attributes appended to a log line,
// for call sites that want to log a task ID, PID, or similar identifier
// alongside a message rather than interpolating it into the format
// string.
type Fields map[string]any

func (f Fields) String() string {
	if len(f) == 0 {
		return ""
	}

	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return " " + strings.Join(parts, " ")
}

func log(level Level, fields Fields, format string, v ...any) {
	if level < currentLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	message := fmt.Sprintf(format, v...)
	logger.Println(prefix + message + fields.String())
}

func Debug(format string, v ...any) {
	log(LevelDebug, nil, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, nil, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, nil, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, nil, format, v...)
}

// DebugFields logs at debug level with structured fields appended, for
// call sites tracking a task ID, PID, or similar identifier.
func DebugFields(fields Fields, format string, v ...any) {
	log(LevelDebug, fields, format, v...)
}

// WarnFields logs at warn level with structured fields appended.
func WarnFields(fields Fields, format string, v ...any) {
	log(LevelWarn, fields, format, v...)
}
