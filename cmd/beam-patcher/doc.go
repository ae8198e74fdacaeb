// Command beam-patcher keeps a game data archive up to date from patch
// mirrors and provides tools to inspect archives and build patches.
//
// Usage:
//
//	beam-patcher patch              # download and apply pending patches
//	beam-patcher check              # show what patch would apply
//	beam-patcher apply FILE         # apply a local patch file
//	beam-patcher list [ARCHIVE]     # list archive members
//	beam-patcher extract NAME...    # copy members out of an archive
//	beam-patcher verify FILE...     # check patch files without applying
//	beam-patcher pack DIR OUT.beam  # build a BEAM patch from a directory
//	beam-patcher compact            # reclaim dead space in the archive
//	beam-patcher verify-files       # check game files against the file manifest
//	beam-patcher status             # show launcher version and server status
//	beam-patcher history            # show applied patches and the last run
//	beam-patcher reset              # forget the watermark
//	beam-patcher config init        # write a sample configuration
package main
