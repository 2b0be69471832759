package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls where and how verbosely the bot logs.
type Config struct {
	Name    string // file prefix, usually the bot name
	Dir     string // defaults to "logs"
	Level   string // debug | info | warn | error
	Console bool   // mirror to stdout
	NoFile  bool
}

// Logger wraps a zerolog logger with the printf-style helpers used across the bot.
type Logger struct {
	zl      zerolog.Logger
	file    *os.File
	path    string
	mu      sync.Mutex
	closed  bool
	started time.Time
}

// New builds a logger writing to a dated file under cfg.Dir and optionally to the console.
func New(cfg Config) (*Logger, error) {
	if cfg.Name == "" {
		cfg.Name = "futures-bot"
	}
	if cfg.Dir == "" {
		cfg.Dir = "logs"
	}

	var writers []io.Writer
	l := &Logger{started: time.Now()}

	if !cfg.NoFile {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		filename := fmt.Sprintf("%s_%s.log", cfg.Name, time.Now().Format("2006-01-02"))
		l.path = filepath.Join(cfg.Dir, filename)
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	l.zl = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Str("bot", cfg.Name).Logger()

	l.zl.Info().Str("log_file", l.path).Msg("session started")
	return l, nil
}

// NewWithWriter builds a file-less logger on w. Handy for tests and tools.
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{
		zl:      zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger(),
		started: time.Now(),
	}
}

// NewNop returns a logger that drops everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), started: time.Now()}
}

// ParseLevel maps a config string onto a zerolog level. Unknown values mean info.
func ParseLevel(level string) zerolog.Level {
	if strings.EqualFold(os.Getenv("DEBUG"), "true") {
		return zerolog.DebugLevel
	}
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Zerolog exposes the underlying logger for packages that log structurally.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Component returns a child zerolog logger tagged with the component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zl.With().Str("component", name).Logger()
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.zl.Debug().Msgf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.zl.Info().Msgf(format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.zl.Error().Msgf(format, args...)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.zl.Error().Err(err).Str("context", context).Msg(context)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	l.zl.Warn().Str("context", context).Msgf(message, args...)
}

// LogSignal records the outcome of one scoring pass.
func (l *Logger) LogSignal(symbol, direction string, score int, price float64, reasons []string) {
	l.zl.Info().
		Str("symbol", symbol).
		Str("direction", direction).
		Int("score", score).
		Float64("price", price).
		Strs("reasons", reasons).
		Msg("signal scored")
}

// LogTradeOpen logs trade entry details
func (l *Logger) LogTradeOpen(tradeID, symbol, side string, qty, price, takeProfit, stopLoss float64, score int) {
	l.zl.Info().
		Str("event", "trade_open").
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("side", side).
		Float64("qty", qty).
		Float64("entry", price).
		Float64("tp", takeProfit).
		Float64("sl", stopLoss).
		Int("score", score).
		Msg("trade opened")
}

// LogTradeClose logs trade exit details
func (l *Logger) LogTradeClose(tradeID, symbol, side, reason string, entry, exit, pnl float64, held time.Duration) {
	l.zl.Info().
		Str("event", "trade_close").
		Str("trade_id", tradeID).
		Str("symbol", symbol).
		Str("side", side).
		Str("reason", reason).
		Float64("entry", entry).
		Float64("exit", exit).
		Float64("pnl", pnl).
		Dur("held", held).
		Msg("trade closed")
}

// LogMarketStatus logs a periodic status line for a symbol.
func (l *Logger) LogMarketStatus(symbol string, price, balance float64, open bool, unrealizedPct float64) {
	ev := l.zl.Info().
		Str("event", "status").
		Str("symbol", symbol).
		Float64("price", price).
		Float64("balance", balance).
		Bool("position_open", open)
	if open {
		ev = ev.Float64("unrealized_pct", unrealizedPct)
	}
	ev.Msg("market status")
}

// LogBalanceSync logs balance synchronization
func (l *Logger) LogBalanceSync(oldBalance, newBalance float64) {
	l.zl.Info().Float64("old", oldBalance).Float64("new", newBalance).Msg("balance synced")
}

// GetLogPath returns the current log file path, empty when logging to console only.
func (l *Logger) GetLogPath() string {
	return l.path
}

// Close closes the log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.zl.Info().Dur("uptime", time.Since(l.started)).Msg("session ended")
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
