// Package logging provides structured slog logging with file rotation for
// ragpipe. Logs are JSON lines under ~/.ragpipe/logs/ and can be read back
// with `ragpipe logs`.
//
// MCP stdio mode logs to file only, since stdout carries the protocol.
package logging
