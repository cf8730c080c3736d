package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/relaymcp/meridian/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods for
// upstream-centric events (connects, disconnects, health transitions).
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, t *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: logger, theme: t}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Counts.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithUpstream(upstream, msg string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", sl.theme.Upstream.Sprint(upstream), msg)
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithUpstream(upstream, msg string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", sl.theme.Upstream.Sprint(upstream), msg)
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithUpstream(upstream, msg string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", sl.theme.Upstream.Sprint(upstream), msg)
	sl.logger.Error(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithHealthCheck(upstream, msg string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.HealthCheck.Sprint(upstream))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	formatted := make([]string, 0, len(numbers))
	for _, num := range numbers {
		formatted = append(formatted, sl.theme.Numbers.Sprint(num))
	}
	sl.logger.Info(fmt.Sprintf(msg, toInterfaceSlice(formatted)...))
}

// InfoHealthStatus logs an upstream's health transition with a
// status-coloured label (healthy/unhealthy/unknown).
func (sl *StyledLogger) InfoHealthStatus(msg, upstream string, healthy bool, known bool, args ...any) {
	var style *pterm.Style
	var statusText string
	switch {
	case !known:
		style = sl.theme.HealthUnknown
		statusText = "Unknown"
	case healthy:
		style = sl.theme.HealthHealthy
		statusText = "Healthy"
	default:
		style = sl.theme.HealthUnhealthy
		statusText = "Unhealthy"
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg, sl.theme.Upstream.Sprint(upstream), style.Sprint(statusText))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithHealthStats(msg string, healthy, unhealthy, unknown int, args ...any) {
	allArgs := make([]any, 0, len(args)+6)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs,
		"healthy", sl.theme.HealthHealthy.Sprint(healthy),
		"unhealthy", sl.theme.HealthUnhealthy.Sprint(unhealthy),
		"unknown", sl.theme.HealthUnknown.Sprint(unknown),
	)
	sl.logger.Info(msg, allArgs...)
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

// NewWithTheme creates both a regular slog.Logger and a StyledLogger sharing
// the same handler chain.
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
