// Package snapshot persists collected metrics as a JSON file between the
// collect and push stages.
//
// The snapshot is the only hand-off between the two stages, so the file
// format is stable: an array of records with name, value, labels, an
// RFC3339 timestamp and help text. Write creates parent directories as
// needed; Read drops individual malformed records with a warning, so one
// bad entry never discards a whole collection run.
package snapshot
