// Package fetch downloads patch files from an ordered set of mirrors into a
// staging directory.
//
// A Fetcher runs a fixed pool of workers. Each worker holds one transfer at
// a time and walks the mirrors in priority order. Retryable failures
// (timeouts, connection resets, 408, 425, 429 and 5xx responses) are retried
// against the same mirror with exponential backoff; any other status moves
// to the next mirror at once.
//
// Bytes land in "<name>.part" and are resumed with a Range request on the
// next attempt. A completed transfer is renamed to "<name>"; a final file
// that already exists is reported as completed without network access.
// Canceling a Job leaves part files in place for a later resume.
package fetch
