// Package patchpkg encodes and decodes patch packages: ordered sets of file
// records that are applied to an archive as a unit.
//
// The native transport is the BEAM package:
//
//	header:  "BEAM" | u16 version | u16 flags | u32 record count
//	record:  u16 path length | path | u8 compression | u32 raw length |
//	         u32 stored length | stored payload | digest
//	trailer: sha256 of everything before it (when flags bit 0 is set)
//
// All integers are little endian. Version 1 records carry a 16-byte md5
// digest, version 2 a 32-byte sha256 digest, both over the raw payload.
//
// Decoding is all-or-nothing: every record is decompressed and checked
// against its digest before a Package is returned, and the first failure
// reports the record index.
//
// DecodeTHOR and DecodeRGZ read the two legacy distribution formats into
// the same Package type.
package patchpkg
