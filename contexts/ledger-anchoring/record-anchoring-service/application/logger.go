package application

import "log/slog"

const (
	ModuleName = "ledger-anchoring/record-anchoring-service"
	sourceName = "record-anchoring-service"
)

func ResolveLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
