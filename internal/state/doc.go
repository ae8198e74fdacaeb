// Package state persists patch progress in a SQLite database: the
// watermark (last fully applied patch) per target archive, a history row per
// applied patch, and a summary row per run.
//
// Advancing the watermark and recording its history row happen in one
// transaction, so a crash never leaves a watermark without its history.
package state
