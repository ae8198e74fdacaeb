package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	beam "github.com/beamguides/beam-patcher"
)

// progressRenderer draws run progress as a single percentage bar.
type progressRenderer struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgressRenderer(w io.Writer) *progressRenderer {
	return &progressRenderer{
		bar: progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (r *progressRenderer) update(ev beam.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bar.Describe(describeEvent(ev))
	_ = r.bar.Set(int(ev.Percent))
}

func (r *progressRenderer) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.bar.Finish()
}

func describeEvent(ev beam.ProgressEvent) string {
	switch {
	case ev.Stage == beam.StageDownloading && ev.BytesTotal > 0:
		return fmt.Sprintf("%-11s %s %s/%s", ev.Stage, ev.Path,
			humanize.IBytes(ev.BytesDone), humanize.IBytes(ev.BytesTotal))
	case ev.Stage == beam.StageApplying && ev.FilesTotal > 0:
		return fmt.Sprintf("%-11s %s %d/%d", ev.Stage, ev.Path, ev.FilesDone, ev.FilesTotal)
	case ev.Path != "":
		return fmt.Sprintf("%-11s %s", ev.Stage, ev.Path)
	default:
		return ev.Stage.String()
	}
}
