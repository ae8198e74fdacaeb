package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/engine"
	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/patchpkg"
)

// openArchive opens path, or the configured target when path is empty,
// for reading.
func (c *commandContext) openArchive(cmd *cobra.Command, path string) (*archive.Store, error) {
	if path == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.TargetPath()
	}
	return archive.Open(path, archive.WithReadOnly(), archive.WithLogger(c.logger(cmd)))
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:     "list [ARCHIVE]",
		Aliases: []string{"ls"},
		Short:   "List archive members",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			store, err := ctx.openArchive(cmd, path)
			if err != nil {
				return err
			}
			defer store.Close()

			needle := strings.ToLower(strings.ReplaceAll(filter, "/", "\\"))
			var entries []archive.Entry
			for _, e := range store.Entries() {
				if needle == "" || strings.Contains(strings.ToLower(e.Path), needle) {
					entries = append(entries, e)
				}
			}
			if jsonOut {
				return writeJSON(cmd, entryViews(entries))
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (version %s)\n", store.Path(), store.Version())
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries")
				return nil
			}
			var total, stored uint64
			t := newTable(textCol("Path"), bytesCol("Size"), bytesCol("Stored"), textCol("Compressed"))
			for _, e := range entries {
				total += uint64(e.Size)
				stored += uint64(e.CompressedSize)
				t.add(e.Path, e.Size, e.CompressedSize, yesNo(e.Compressed()))
			}
			t.total(fmt.Sprintf("%d entries", len(entries)), total, stored)
			fmt.Fprintln(out, t.render())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "Only list paths containing this text")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

type entryJSON struct {
	Path           string `json:"path"`
	Size           uint32 `json:"size"`
	CompressedSize uint32 `json:"compressed_size"`
	Compressed     bool   `json:"compressed"`
}

func entryViews(entries []archive.Entry) []entryJSON {
	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryJSON{
			Path:           e.Path,
			Size:           e.Size,
			CompressedSize: e.CompressedSize,
			Compressed:     e.Compressed(),
		})
	}
	return out
}

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var archivePath, outDir string
	var all bool

	cmd := &cobra.Command{
		Use:   "extract [NAME...]",
		Short: "Copy archive members to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("name at least one member or pass --all")
			}
			store, err := ctx.openArchive(cmd, archivePath)
			if err != nil {
				return err
			}
			defer store.Close()

			names := args
			if all {
				names = names[:0]
				for _, e := range store.Entries() {
					names = append(names, e.Path)
				}
			}
			var written int
			for _, name := range names {
				dest, err := extractPath(outDir, name)
				if err != nil {
					return err
				}
				data, err := store.Get(name)
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return fmt.Errorf("create directory for %s: %w", name, err)
				}
				if err := os.WriteFile(dest, data, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", dest, err)
				}
				written++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d files to %s\n", written, outDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&archivePath, "archive", "a", "", "Archive to read (default: configured target)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "Destination directory")
	cmd.Flags().BoolVar(&all, "all", false, "Extract every member")
	return cmd
}

// extractPath maps an archive member to a path under dir. Names that
// would escape dir are rejected.
func extractPath(dir, name string) (string, error) {
	rel := filepath.FromSlash(strings.ReplaceAll(strings.TrimLeft(name, "\\/"), "\\", "/"))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("refusing to extract %q outside the destination", name)
	}
	return filepath.Join(dir, rel), nil
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var digest string

	cmd := &cobra.Command{
		Use:         "verify FILE...",
		Short:       "Decode and check patch files without applying them",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if digest != "" && len(args) != 1 {
				return errors.New("--digest applies to a single file")
			}
			var failed int
			t := newTable(textCol("File"), textCol("Format"), countCol("Records"), bytesCol("Size"), textCol("Result"))
			for _, path := range args {
				row, err := verifyOne(path, digest)
				result := "ok"
				if err != nil {
					failed++
					result = "FAIL: " + err.Error()
				}
				t.add(row.file, row.format, row.records, row.size, result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.render())
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed verification", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&digest, "digest", "", "Expected digest of the file, e.g. sha256:...")
	return cmd
}

// verifyRow is one line of the verify table. Size is the file size.
// Cells stay "-" until the file decodes.
type verifyRow struct {
	file    string
	format  string
	records any
	size    any
}

// verifyOne checks path against digest, when given, and then decodes it.
// BEAM packages go through patchpkg.VerifyAll so payloads are not kept.
func verifyOne(path, digest string) (verifyRow, error) {
	row := verifyRow{file: filepath.Base(path), format: "-", records: "-", size: "-"}
	if digest != "" {
		ok, err := integrity.VerifyFile(path, digest)
		if err != nil {
			return row, err
		}
		if !ok {
			return row, errors.New("digest mismatch")
		}
	}
	if format, ok := engine.PatchFormat(path); ok && format == patchpkg.FormatBEAM {
		data, err := os.ReadFile(path)
		if err != nil {
			return row, err
		}
		if err := patchpkg.VerifyAll(data); err != nil {
			return row, err
		}
		row.format = format.String()
		row.records = patchpkg.RecordCount(data)
		row.size = len(data)
		return row, nil
	}
	pkg, err := engine.DecodeFile(path)
	if err != nil {
		return row, err
	}
	row.format = pkg.Format.String()
	row.records = len(pkg.Records)
	if info, err := os.Stat(path); err == nil {
		row.size = info.Size()
	}
	return row, nil
}

func newPackCommand(ctx *commandContext) *cobra.Command {
	var (
		version     int
		compression string
		noChecksum  bool
	)

	cmd := &cobra.Command{
		Use:   "pack DIR OUT",
		Short: "Build a patch from a directory",
		Long: "Build a patch from every file under DIR. OUT ending in .beam writes a BEAM " +
			"package; .gpf or .grf writes an archive container.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("version") {
				version = cfg.Pack.Version
			}
			if !cmd.Flags().Changed("compression") {
				compression = cfg.Pack.Compression
			}
			if !cmd.Flags().Changed("no-checksum") {
				noChecksum = !cfg.Pack.Checksum
			}
			if version != int(patchpkg.Version1) && version != int(patchpkg.Version2) {
				return fmt.Errorf("--version must be %d or %d, got %d", patchpkg.Version1, patchpkg.Version2, version)
			}

			records, err := collectRecords(args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return fmt.Errorf("nothing to pack in %s", args[0])
			}

			out := args[1]
			switch strings.ToLower(filepath.Ext(out)) {
			case ".beam":
				comp, err := patchpkg.ParseCompression(compression)
				if err != nil {
					return err
				}
				data, err := patchpkg.Encode(records,
					patchpkg.WithVersion(uint16(version)),
					patchpkg.WithCompression(comp),
					patchpkg.WithChecksum(!noChecksum),
				)
				if err != nil {
					return err
				}
				if err := writeFileAtomic(out, data); err != nil {
					return err
				}
			case ".gpf", ".grf":
				if err := writeContainer(out, cfg.Patcher.ArchiveVersion, records); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unsupported output type %q (want .beam, .gpf or .grf)", filepath.Ext(out))
			}

			sum, err := integrity.ComputeFile(integrity.SHA256, out)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Packed %d records into %s\n", len(records), out)
			fmt.Fprintf(w, "%s %s\n", filepath.Base(out), sum)
			return nil
		},
	}
	cmd.Flags().IntVar(&version, "version", int(patchpkg.DefaultVersion), "BEAM package version (1 or 2)")
	cmd.Flags().StringVar(&compression, "compression", "zstd", "Record compression: none, zlib, zstd or lz4")
	cmd.Flags().BoolVar(&noChecksum, "no-checksum", false, "Omit the whole-package checksum")
	return cmd
}

// collectRecords reads every regular file under dir. Paths use backslash
// separators relative to dir.
func collectRecords(dir string) ([]patchpkg.Record, error) {
	var records []patchpkg.Record
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		records = append(records, patchpkg.Record{
			Path: strings.ReplaceAll(filepath.ToSlash(rel), "/", "\\"),
			Data: data,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	return records, nil
}

func writeContainer(path, versionText string, records []patchpkg.Record) error {
	version, err := archive.ParseVersion(versionText)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("replace %s: %w", path, err)
		}
	}
	store, err := archive.Create(path, version)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := store.Put(r.Path, r.Data); err != nil {
			store.Discard()
			return errors.Join(err, store.Close())
		}
	}
	if err := store.Save(); err != nil {
		return errors.Join(err, store.Close())
	}
	return store.Close()
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	tmpPath = ""
	return nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
