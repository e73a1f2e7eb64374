package ogn

import "time"

// ModeFlag is a log severity.  Messages below the current mode are dropped.
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var (
	// Verbose turns on Debug messages regardless of the mode.
	Verbose bool

	mode = InfoMode

	// logger receives every message that passes the mode check.
	logger Logger = stdLogger{}
)

// Logger writes leveled, printf-style messages.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	// Shutdown flushes and closes any underlying file.
	Shutdown()
}

// SetLogMode sets the lowest severity written.  SilentMode drops everything,
// including Debug messages requested through Verbose.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

func enabled(level ModeFlag) bool {
	if level == DebugMode && Verbose {
		return mode < SilentMode
	}
	return mode <= level
}

func Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		logger.Infof(format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if enabled(WarningMode) {
		logger.Warningf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if enabled(ErrorMode) {
		logger.Errorf(format, args...)
	}
}

func Criticalf(format string, args ...interface{}) {
	if enabled(CriticalMode) {
		logger.Criticalf(format, args...)
	}
}

// Shutdown closes any log file opened through LogConfig.SetLogger.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time since its creation to each message, e.g.,
//
//	timedLog := ogn.NewTimeLog()
//	...
//	timedLog.Infof("Compacted %d grids", n)  // "Compacted 12 grids: 1.3s"
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{logger, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	if enabled(DebugMode) {
		t.logger.Debugf(format+": %s\n", append(args, time.Since(t.start))...)
	}
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	if enabled(InfoMode) {
		t.logger.Infof(format+": %s\n", append(args, time.Since(t.start))...)
	}
}
