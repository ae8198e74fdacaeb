package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

var (
	// ErrNoMirrors is returned when a Fetcher has no usable mirror.
	ErrNoMirrors = errors.New("fetch: no mirrors configured")

	// ErrUnknownFile is returned by Job.Wait for a name that was not part
	// of the job.
	ErrUnknownFile = errors.New("fetch: file not in job")

	// ErrInvalidName is returned for file names that would escape the
	// staging directory.
	ErrInvalidName = errors.New("fetch: invalid file name")
)

// Fetcher downloads files from a MirrorSet into a staging directory.
// A Fetcher is safe for concurrent use; each Start returns an independent
// Job.
type Fetcher struct {
	mirrors    *MirrorSet
	stagingDir string

	workers        int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	client         *http.Client
	userAgent      string
	progress       beamtype.ProgressFunc
	logger         *slog.Logger
}

// New creates a Fetcher.
func New(mirrors *MirrorSet, stagingDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		mirrors:        mirrors,
		stagingDir:     stagingDir,
		workers:        DefaultWorkers,
		maxAttempts:    DefaultMaxAttempts,
		initialBackoff: DefaultInitialBackoff,
		maxBackoff:     DefaultMaxBackoff,
		client:         http.DefaultClient,
		userAgent:      DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = http.DefaultClient
	}
	for _, m := range mirrors.Skipped() {
		f.log().Warn("mirror skipped: empty url", slog.String("mirror", m.Name))
	}
	return f
}

// Client returns the HTTP client used for transfers.
func (f *Fetcher) Client() *http.Client { return f.client }

// StagingDir returns the directory files are downloaded into.
func (f *Fetcher) StagingDir() string { return f.stagingDir }

// UserAgent returns the User-Agent sent with every request.
func (f *Fetcher) UserAgent() string { return f.userAgent }

// Job is a running set of downloads.
type Job struct {
	cancel context.CancelFunc
	done   chan struct{}
	files  []File
	slots  map[string]*slot

	mu         sync.Mutex
	tasks      map[string]*Task
	fileBytes  map[string][2]int64
	filesDone  int
	progress   beamtype.ProgressFunc
	bytesDone  int64
	bytesTotal int64
}

type slot struct {
	done chan struct{}
	res  Result
}

// Start begins downloading files with a fixed pool of workers. Duplicate
// names are downloaded once.
func (f *Fetcher) Start(ctx context.Context, files []File) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{
		cancel:    cancel,
		done:      make(chan struct{}),
		slots:     make(map[string]*slot, len(files)),
		tasks:     make(map[string]*Task, len(files)),
		fileBytes: make(map[string][2]int64, len(files)),
		progress:  f.progress,
	}
	for _, file := range files {
		if _, dup := j.slots[file.Name]; dup {
			continue
		}
		j.files = append(j.files, file)
		j.slots[file.Name] = &slot{done: make(chan struct{})}
		j.tasks[file.Name] = &Task{File: file, State: Pending}
		j.fileBytes[file.Name] = [2]int64{0, file.Size}
		j.bytesTotal += file.Size
	}

	queue := make(chan File)
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(queue)
		for _, file := range j.files {
			select {
			case queue <- file:
			case <-egCtx.Done():
				return nil
			}
		}
		return nil
	})

	for range min(f.workers, max(len(j.files), 1)) {
		eg.Go(func() error {
			for file := range queue {
				j.publish(f.download(egCtx, j, file))
			}
			return nil
		})
	}

	go func() {
		_ = eg.Wait() //nolint:errcheck // workers never return errors
		// Files never handed to a worker were canceled.
		for _, file := range j.files {
			s := j.slots[file.Name]
			select {
			case <-s.done:
			default:
				j.publish(Result{
					Name:  file.Name,
					State: FailedRetryable,
					Err:   beamtype.Canceled(context.Cause(ctx)),
				})
			}
		}
		cancel()
		close(j.done)
	}()

	f.log().Debug("fetch job started",
		slog.Int("files", len(j.files)),
		slog.Int("workers", f.workers),
		slog.Int("mirrors", f.mirrors.Len()))
	return j
}

// download runs one file to a terminal result.
func (f *Fetcher) download(ctx context.Context, j *Job, file File) Result {
	res := Result{Name: file.Name}
	final, err := f.stagingPath(file.Name)
	if err != nil {
		res.State = FailedFatal
		res.Err = err
		return res
	}
	part := final + ".part"
	j.update(file.Name, func(t *Task) {
		t.StagingPath = final
		t.State = InProgress
	})

	if info, err := os.Stat(final); err == nil && info.Mode().IsRegular() {
		f.log().Debug("staged file present", slog.String("file", file.Name))
		j.reportBytes(file.Name, info.Size(), info.Size())
		res.State = Completed
		res.Path = final
		res.Size = info.Size()
		res.Cached = true
		return res
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o750); err != nil {
		res.State = FailedFatal
		res.Err = &beamtype.IOError{Op: "create directory", Path: filepath.Dir(final), Err: err}
		return res
	}

	mirrors := f.mirrors.All()
	if len(mirrors) == 0 {
		res.State = FailedFatal
		res.Err = ErrNoMirrors
		return res
	}

	var lastErr error
	for _, m := range mirrors {
		url := m.URL(file.Name)
		err := f.tryMirror(ctx, j, file, m, url, part, &res)
		if err == nil {
			if err := os.Rename(part, final); err != nil {
				res.State = FailedFatal
				res.Err = &beamtype.IOError{Op: "rename", Path: final, Err: err}
				return res
			}
			info, statErr := os.Stat(final)
			if statErr == nil {
				res.Size = info.Size()
			}
			res.State = Completed
			res.Path = final
			f.log().Info("download complete",
				slog.String("file", file.Name),
				slog.String("mirror", m.label()),
				slog.Int64("size", res.Size),
				slog.Bool("resumed", res.Resumed))
			return res
		}
		if ctx.Err() != nil {
			res.State = FailedRetryable
			res.Err = beamtype.Canceled(ctx.Err())
			return res
		}
		var ioErr *beamtype.IOError
		if errors.As(err, &ioErr) {
			res.State = FailedFatal
			res.Err = err
			return res
		}
		lastErr = err
		f.log().Warn("mirror failed",
			slog.String("file", file.Name),
			slog.String("mirror", m.label()),
			slog.Any("error", err))
	}

	res.State = FailedFatal
	res.Err = fmt.Errorf("fetch %s: all %d mirrors failed: %w", file.Name, len(mirrors), lastErr)
	return res
}

// tryMirror attempts one mirror up to maxAttempts times, backing off
// between retryable failures.
func (f *Fetcher) tryMirror(ctx context.Context, j *Job, file File, m Mirror, url, part string, res *Result) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.initialBackoff
	b.MaxInterval = f.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.maxAttempts-1)), ctx)

	op := func() error {
		j.update(file.Name, func(t *Task) { t.URL = url })
		att := f.transfer(ctx, url, part, func(done, total int64) {
			j.reportBytes(file.Name, done, total)
		})
		att.Mirror = m.label()
		res.Attempts = append(res.Attempts, att)
		res.Resumed = att.Err == nil && att.Offset > 0 && att.Status != http.StatusOK
		j.update(file.Name, func(t *Task) {
			t.ResumeOffset = att.Offset
			t.Attempts = append(t.Attempts, att)
		})

		switch {
		case att.Err == nil:
			return nil
		case ctx.Err() != nil, !beamtype.IsRetryable(att.Err):
			return backoff.Permanent(att.Err)
		default:
			j.update(file.Name, func(t *Task) { t.State = FailedRetryable })
			return att.Err
		}
	}
	notify := func(err error, wait time.Duration) {
		f.log().Debug("retrying download",
			slog.String("file", file.Name),
			slog.String("mirror", m.label()),
			slog.Duration("wait", wait),
			slog.Any("error", err))
		j.update(file.Name, func(t *Task) { t.State = InProgress })
	}
	return backoff.RetryNotify(op, policy, notify)
}

// stagingPath maps a file name to its path under the staging directory.
func (f *Fetcher) stagingPath(name string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(f.stagingDir, filepath.FromSlash(name)), nil
}

// log returns the configured logger or a discard logger if none is set.
func (f *Fetcher) log() *slog.Logger {
	if f.logger != nil {
		return f.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Wait blocks until name reaches a terminal state or ctx is done. The
// returned error is the Result's error.
func (j *Job) Wait(ctx context.Context, name string) (Result, error) {
	s, ok := j.slots[name]
	if !ok {
		return Result{Name: name}, fmt.Errorf("%w: %s", ErrUnknownFile, name)
	}
	select {
	case <-s.done:
		return s.res, s.res.Err
	case <-ctx.Done():
		return Result{Name: name}, beamtype.Canceled(ctx.Err())
	}
}

// Results waits for every file and returns their results in start order.
func (j *Job) Results() []Result {
	<-j.done
	out := make([]Result, 0, len(j.files))
	for _, file := range j.files {
		out = append(out, j.slots[file.Name].res)
	}
	return out
}

// Done is closed when every file has a result.
func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops scheduling and aborts running transfers. Part files are
// kept.
func (j *Job) Cancel() { j.cancel() }

// Tasks returns a snapshot of every task in start order.
func (j *Job) Tasks() []Task {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Task, 0, len(j.files))
	for _, file := range j.files {
		t := *j.tasks[file.Name]
		t.Attempts = append([]Attempt(nil), t.Attempts...)
		out = append(out, t)
	}
	return out
}

func (j *Job) update(name string, fn func(*Task)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if t, ok := j.tasks[name]; ok {
		fn(t)
	}
}

func (j *Job) publish(res Result) {
	s := j.slots[res.Name]
	select {
	case <-s.done:
		return
	default:
	}
	j.mu.Lock()
	if t, ok := j.tasks[res.Name]; ok {
		t.State = res.State
	}
	if res.State == Completed {
		j.filesDone++
	}
	j.mu.Unlock()

	s.res = res
	close(s.done)
}

// reportBytes records per-file progress and emits a job-wide event. The
// callback runs under the job lock and must not call back into the Job.
func (j *Job) reportBytes(name string, done, total int64) {
	if j.progress == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	prev := j.fileBytes[name]
	if total < 0 {
		total = prev[1]
	}
	j.bytesDone += done - prev[0]
	j.bytesTotal += total - prev[1]
	j.fileBytes[name] = [2]int64{done, total}

	j.progress(beamtype.ProgressEvent{
		Stage:      beamtype.StageDownloading,
		Path:       name,
		BytesDone:  uint64(max(done, 0)),
		BytesTotal: uint64(max(total, 0)),
		FilesDone:  j.filesDone,
		FilesTotal: len(j.files),
		Percent:    beamtype.Percent(uint64(max(j.bytesDone, 0)), uint64(max(j.bytesTotal, 0))),
	})
}
