// Package engine runs a patch session against one target archive.
//
// A run is an explicit state machine:
//
//	Idle → Discovering → Downloading → Verifying → Applying → Completed
//
// with Failed reachable from every non-terminal state. Verifying and
// Applying alternate once per patch, returning to Downloading while the
// next patch is still in flight.
//
// Discovery fetches the patch manifest, a text list of "filename [digest]"
// lines in application order. Planning compares it with the persisted
// watermark (the last fully applied patch) and selects the patches after
// it. Downloads run concurrently, but patches are verified, decoded,
// applied and saved strictly one at a time in manifest order, and the
// watermark moves only after the archive save succeeds. A crash between
// save and watermark update re-applies that patch on the next run, which
// leaves the archive in the same state.
package engine
