package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
)

// currentLevel is the process-wide log level. It is stored atomically so that
// watcher and indexer Goroutines can log without acquiring a lock.
var currentLevel uint32 = uint32(LevelInfo)

// SetLevel sets the process-wide log level.
func SetLevel(level Level) {
	atomic.StoreUint32(&currentLevel, uint32(level))
}

// CurrentLevel returns the process-wide log level.
func CurrentLevel() Level {
	return Level(atomic.LoadUint32(&currentLevel))
}

func init() {
	// Route the standard logger to standard error so that command output on
	// standard output (search results, paths) stays machine-consumable.
	log.SetOutput(os.Stderr)
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, but it doesn't log anything. It is designed to use the
// standard logger provided by the log package, so it respects any flags set
// for that logger. It is safe for concurrent usage.
type Logger struct {
	// prefix is any prefix specified for the logger.
	prefix string
}

// RootLogger is the root logger from which all other loggers derive.
var RootLogger = &Logger{}

// Sublogger creates a new sublogger with the specified name.
func (l *Logger) Sublogger(name string) *Logger {
	// If the logger is nil, then the sublogger will be as well.
	if l == nil {
		return nil
	}

	// Compute the new prefix.
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}

	// Create the new logger.
	return &Logger{
		prefix: prefix,
	}
}

// output is the internal logging method.
func (l *Logger) output(line string) {
	// Add a prefix if necessary.
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}

	// Log.
	log.Output(3, line)
}

// Error logs a message at error level with a red prefix.
func (l *Logger) Error(v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelError {
		l.output(color.RedString("Error: ") + fmt.Sprint(v...))
	}
}

// Errorf logs a formatted message at error level with a red prefix.
func (l *Logger) Errorf(format string, v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelError {
		l.output(color.RedString("Error: ") + fmt.Sprintf(format, v...))
	}
}

// Warn logs a message at warning level with a yellow prefix.
func (l *Logger) Warn(v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelWarn {
		l.output(color.YellowString("Warning: ") + fmt.Sprint(v...))
	}
}

// Warnf logs a formatted message at warning level with a yellow prefix.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelWarn {
		l.output(color.YellowString("Warning: ") + fmt.Sprintf(format, v...))
	}
}

// Info logs a message at information level.
func (l *Logger) Info(v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelInfo {
		l.output(fmt.Sprint(v...))
	}
}

// Infof logs a formatted message at information level.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelInfo {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Debug logs a message at debug level.
func (l *Logger) Debug(v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelDebug {
		l.output(fmt.Sprint(v...))
	}
}

// Debugf logs a formatted message at debug level.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelDebug {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Trace logs a message at trace level.
func (l *Logger) Trace(v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelTrace {
		l.output(fmt.Sprint(v...))
	}
}

// Tracef logs a formatted message at trace level.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l != nil && CurrentLevel() >= LevelTrace {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that writes lines at the specified level. It is
// used to capture output from external processes (such as the catchup query
// helper) into the log stream.
func (l *Logger) Writer(level Level) io.Writer {
	// If the logger is nil, then we can just discard input since it won't be
	// logged anyway. This saves us the overhead of scanning lines.
	if l == nil {
		return io.Discard
	}

	// Create the writer.
	return &writer{
		callback: func(s string) {
			switch level {
			case LevelError:
				l.Error(s)
			case LevelWarn:
				l.Warn(s)
			case LevelInfo:
				l.Info(s)
			case LevelDebug:
				l.Debug(s)
			case LevelTrace:
				l.Trace(s)
			}
		},
	}
}
