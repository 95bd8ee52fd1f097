// Package logx configures resetbot's structured logging.
//
// Logger wraps zerolog and keeps console output short (timestamp + file:line),
// file output JSON, and an optional chat sink that forwards warnings to an
// ops channel with a minimum level and a rate limit.
package logx
