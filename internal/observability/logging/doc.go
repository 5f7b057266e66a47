// Package logging provides structured logging on top of log/slog.
//
// The process logger writes JSON to stdout. When a log file is configured,
// records are fanned out with slog-multi: text on stdout for operators and
// JSON in the file for machines.
//
// Example usage:
//
//	logger, closeLog := logging.New(logging.Options{Level: "info", File: "/var/log/sonde.log"})
//	defer func() { _ = closeLog() }()
//	slog.SetDefault(logger)
//
//	func handle(ctx context.Context) {
//	    logger := logging.WithRequestID(ctx, slog.Default())
//	    logger.Info("processing request")
//	}
package logging
