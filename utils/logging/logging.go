// Package logging configures slog for the worker binaries.
package logging

import (
	"io"
	"log/slog"
)

// VictoriaLogs has fixed field names for time (_time) and message (_msg).
// This maps time -> _time and msg -> _msg on every record.
func victoriaLogsAttrs(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		return slog.Attr{Key: "_time", Value: slog.StringValue(a.Value.Time().Format("2006-01-02 15:04:05"))}
	}
	if a.Key == slog.MessageKey {
		return slog.Attr{Key: "_msg", Value: a.Value}
	}
	return a
}

func VictoriaLogsOptions(addSource bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		ReplaceAttr: victoriaLogsAttrs,
		AddSource:   addSource,
	}
}

// Setup routes slog through a json handler writing to w. With shipLogs set
// the records carry the VictoriaLogs field names so they can be scraped
// directly from the log file.
func Setup(w io.Writer, shipLogs bool) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if shipLogs {
		opts = VictoriaLogsOptions(false)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(w, opts)))
}
