// Package logging provides structured logging for fanlink.
//
// It wraps the standard library's log/slog with configuration-driven
// formatting (JSON or text), level filtering, and default fields
// (service name, version) attached to every record.
//
// Components that accept a logger should declare their own narrow
// interface (Info/Warn/Error/Debug with key-value pairs) so this
// concrete type never leaks into package APIs.
package logging
