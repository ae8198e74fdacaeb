// Package gamefiles checks an installed game directory against a file
// manifest.
//
// Each listed file is streamed through its digest and compared with the
// listed size. Files that are absent are reported as missing. Files that
// cannot be read, differ in size, or hash differently are reported as
// corrupted. Entries without a checksum only need to exist, which covers
// critical files such as the client executable.
package gamefiles
