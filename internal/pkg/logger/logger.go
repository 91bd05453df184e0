package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config string ("debug", "info", ...) to a Level.
// Unknown values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with optional PII redaction.
type Logger struct {
	level     Level
	mu        sync.Mutex
	redactPII bool
	out       io.Writer
	component string
}

var defaultLogger = &Logger{level: INFO, redactPII: true, out: os.Stderr}

// New returns a logger that tags every entry with component.
func New(component string) *Logger {
	return &Logger{
		level:     defaultLogger.level,
		redactPII: defaultLogger.redactPII,
		out:       defaultLogger.out,
		component: component,
	}
}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) { defaultLogger.level = l }

// SetRedactPII enables or disables PII redaction for the default logger.
func SetRedactPII(r bool) { defaultLogger.redactPII = r }

// SetOutput redirects the default logger. Used by tests.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

func (l *Logger) Debug(msg string, fields ...interface{}) { l.log(DEBUG, msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.log(INFO, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.log(WARN, msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.log(ERROR, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}

	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactPII {
			val = redactPIIValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	l.mu.Lock()
	out := l.out
	if out == nil {
		out = os.Stderr
	}
	fmt.Fprintln(out, string(data))
	l.mu.Unlock()
}

var emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if strings.Contains(key, "email") {
		return RedactEmail(val)
	}
	if strings.Contains(key, "phone") || isAddressKey(key) {
		return RedactAddress(val)
	}
	return emailRegex.ReplaceAllStringFunc(val, RedactEmail)
}

// isAddressKey matches keys that carry a message endpoint on any channel.
func isAddressKey(key string) bool {
	switch key {
	case "to", "from", "from_number", "to_number", "address":
		return true
	}
	return false
}
