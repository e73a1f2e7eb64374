package ogn

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// stdLogger prefixes the severity and writes through the standard log package,
// into a rotating file once SetLogger has been called.
type stdLogger struct {
	*lumberjack.Logger
}

// LogConfig is the [logging] section of the TOML configuration.
type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"` // MB before rotation
	MaxAge  int `toml:"max_log_age"`  // days rotated files are kept
}

// SetLogger sends log output to the configured file, or leaves it on stderr if no
// file is configured.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("No log file configured, logging to stderr.\n")
		return
	}
	fmt.Printf("Logging to %s\n", c.Logfile)
	l := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(l)
	logger = stdLogger{l}
}

func (stdLogger) Debugf(format string, args ...interface{}) {
	log.Printf(" DEBUG "+format, args...)
}

func (stdLogger) Infof(format string, args ...interface{}) {
	log.Printf(" INFO "+format, args...)
}

func (stdLogger) Warningf(format string, args ...interface{}) {
	log.Printf(" WARNING "+format, args...)
}

func (stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf(" ERROR "+format, args...)
}

func (stdLogger) Criticalf(format string, args ...interface{}) {
	log.Printf(" CRITICAL "+format, args...)
}

func (l stdLogger) Shutdown() {
	if l.Logger != nil {
		log.Printf("Closing log file %s\n", l.Filename)
		l.Close()
	}
}
