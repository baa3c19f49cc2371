// Package logging builds slog loggers with console or JSON output and
// standardized field keys shared across the pipeline. Context annotations
// added by internal/services surface automatically via WithContext.
package logging
