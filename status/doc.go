// Package status reads the small JSON documents a launcher consults
// around a patch run: the version-check document, the server status
// document and the game file manifest.
//
// Both are parsed defensively. Unknown fields are ignored, missing
// optional fields take their zero value, and a missing or mistyped
// required field is reported as a *FieldError naming it.
package status
