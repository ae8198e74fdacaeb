// Package archive reads and writes GRF archive containers, the path-keyed
// asset store consumed by the game client.
//
// A container is a 46-byte header, a data region of (optionally
// zlib-compressed) entry payloads, and an entry table. The table layout
// depends on the header's version field:
//
//   - 0x101: plain length-prefixed names, uncompressed table
//   - 0x102, 0x103: as 0x101 with obfuscated names
//   - 0x200: NUL-terminated names in a zlib-compressed table
//   - 0x300: custom encryption; recognized but rejected
//
// The table codec is chosen by a version lookup. There is no autodetection:
// a version without a codec fails with ErrUnsupportedVersion.
//
// Mutations (Put, Remove) are staged in memory. Save commits them with a
// temp-file-and-rename sequence so the container on disk is always either
// the previous or the new state. A Store holds an exclusive lock on the
// container for its lifetime.
package archive
