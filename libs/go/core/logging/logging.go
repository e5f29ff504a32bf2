package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures a global slog logger. JSON if FLOWMESH_JSON_LOG=1/true else text.
// role is attached to every record (e.g. "coordinator", "worker") so logs from a
// mixed fleet of processes can be filtered by role as well as by task/job fields.
func Init(role string) *slog.Logger {
	mode := strings.ToLower(os.Getenv("FLOWMESH_JSON_LOG"))
	jsonMode := mode == "1" || mode == "true" || mode == "json"

	var handler slog.Handler
	opts := &slog.HandlerOptions{AddSource: jsonMode, Level: levelFromEnv()}
	if jsonMode {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With("role", role)
	slog.SetDefault(logger)
	logger.Info("logging initialized", "json", jsonMode, "level", levelFromEnv())
	return logger
}

func levelFromEnv() slog.Leveler {
	switch strings.ToLower(os.Getenv("FLOWMESH_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
