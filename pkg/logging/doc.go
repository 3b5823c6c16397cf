// Package logging provides structured logging for hive, built on the
// standard library's slog package.
//
// Log entries carry a subsystem identifier so that output from the OAuth
// handshake, token verification, HTTP server, and CLI can be filtered
// independently:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("OAuth", "pending login created: id=%s", id)
//	logging.Error("Server", err, "failed to bind listener")
//
// Level filtering happens at the handler, so formatting work is skipped for
// suppressed entries.
package logging
