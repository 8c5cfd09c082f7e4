package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger writes trading activity to a daily log file. Console output is kept
// to a minimum by the callers; anything worth auditing goes here.
type Logger struct {
	strategy string
	logFile  *os.File
	logger   *log.Logger
	mu       sync.Mutex
	logDir   string
	debug    bool
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelTrade   LogLevel = "TRADE"
	LogLevelStatus  LogLevel = "STATUS"
	LogLevelDebug   LogLevel = "DEBUG"
)

// NewLogger creates a new file logger for the given strategy name.
func NewLogger(strategy string) (*Logger, error) {
	return NewLoggerWithDebug(strategy, false)
}

// NewLoggerWithDebug creates a logger with debug entries enabled.
func NewLoggerWithDebug(strategy string, debug bool) (*Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("engine_%s_%s.log", strategy, timestamp)
	logPath := filepath.Join(logDir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		strategy: strategy,
		logFile:  file,
		logger:   log.New(file, "", 0),
		logDir:   logDir,
		debug:    debug,
	}

	l.writeSessionHeader()

	return l, nil
}

func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
🚀 TRADING ENGINE SESSION STARTED
================================================================================
Strategy: %s
Started: %s
================================================================================
`, l.strategy, time.Now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, message))
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Trade logs a trading action
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs engine status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// Debug logs a debug message when debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.Log(LogLevelDebug, format, args...)
}

// LogError logs an error with operation context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs a warning with operation context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.Warning("%s", fmt.Sprintf(context+": "+message, args...))
}

// LogTradeExecution logs an executed order with its fill details.
func (l *Logger) LogTradeExecution(side, symbol, orderID string, quantity, price, notional float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	tradeLog := fmt.Sprintf(`
[%s] [TRADE] ==================== %s EXECUTED ====================
✅ Order ID: %s
📦 %s %.8f @ $%.4f
💵 Notional: $%.2f
=============================================================`,
		timestamp, side, orderID, symbol, quantity, price, notional)

	l.logger.Println(tradeLog)
}

// LogCycleSummary logs a per-cycle engine summary.
func (l *Logger) LogCycleSummary(symbols, signals, openPositions int, balance, dailyPnL float64, riskLevel string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05")

	statusLog := fmt.Sprintf(`
[%s] [STATUS] ==================== CYCLE SUMMARY ====================
📡 Symbols: %d | Signals: %d | Open Positions: %d
💼 Balance: $%.2f | Daily P&L: $%.2f
⚖️ Risk Level: %s
==========================================================`,
		timestamp, symbols, signals, openPositions, balance, dailyPnL, riskLevel)

	l.logger.Println(statusLog)
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		footer := fmt.Sprintf(`
================================================================================
🛑 TRADING ENGINE SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, timestamp)
		l.logger.Print(footer)

		return l.logFile.Close()
	}
	return nil
}

// GetLogPath returns the current log file path
func (l *Logger) GetLogPath() string {
	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("engine_%s_%s.log", l.strategy, timestamp)
	return filepath.Join(l.logDir, filename)
}
