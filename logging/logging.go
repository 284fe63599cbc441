// Package logging provides the driver's logging façade.
//
// It implements dragonboat's logger.ILogger interface so the same
// factory can be registered process-wide with logger.SetLoggerFactory,
// giving every package (executor, session, topology, wire) a named
// logger with a shared format and a shared level.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// driverLogger implements logger.ILogger with a compact, aligned format.
type driverLogger struct {
	name   string
	level  logger.LogLevel
	stdlog *log.Logger
}

func (l *driverLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *driverLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *driverLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *driverLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *driverLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *driverLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *driverLogger) log(levelStr, format string, args ...interface{}) {
	l.stdlog.Printf("%-5s | %-16s | %s", levelStr, l.name, fmt.Sprintf(format, args...))
}

// NewFactory creates a new named logger. It matches logger.Factory so it
// can be passed directly to logger.SetLoggerFactory.
func NewFactory(pkgName string) logger.ILogger {
	return &driverLogger{
		name:   pkgName,
		level:  logger.INFO,
		stdlog: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

// ParseLevel converts a case-insensitive level string into a logger.LogLevel.
func ParseLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s (must be one of debug, info, warn, error)", level)
	}
}

// Init installs the driver's factory and sets the level for every named
// logger the driver's own packages request through Get.
func Init(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	logger.SetLoggerFactory(NewFactory)
	for _, name := range []string{"conventions", "topology", "node", "wire", "executor", "session", "registry", "store", "cli"} {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}

// Get returns the named logger, creating it through the currently
// registered factory (the stdlib default until Init is called).
func Get(name string) logger.ILogger {
	return logger.GetLogger(name)
}
