// Package beam keeps a game client's data archive up to date from a set
// of patch mirrors.
//
// A [Patcher] ties the pieces together for one target archive: it takes
// the archive's exclusive lock, downloads pending patches from the
// configured mirrors with resume and retry, verifies them, and applies
// them in manifest order. Progress across runs is tracked by a watermark
// stored in a local SQLite database.
//
// # Quick Start
//
//	cfg, _, _, err := beam.LoadConfig("~/.config/beam-patcher/config.toml")
//	if err != nil {
//	    return err
//	}
//	p, err := beam.Open(cfg, beam.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	res, err := p.Run(ctx)
//	fmt.Println(res.Summary())
//
// # Packages
//
// The building blocks are usable on their own:
//   - [github.com/beamguides/beam-patcher/archive]: read and write the
//     archive container
//   - [github.com/beamguides/beam-patcher/patchpkg]: encode and decode
//     patch packages
//   - [github.com/beamguides/beam-patcher/fetch]: mirror-aware resumable
//     downloads
//   - [github.com/beamguides/beam-patcher/engine]: the patch run state
//     machine
//   - [github.com/beamguides/beam-patcher/integrity]: digest parsing and
//     verification
package beam
