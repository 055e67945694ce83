package core

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Skryldev/image-optimizer/config"
	apperrors "github.com/Skryldev/image-optimizer/errors"
	"github.com/Skryldev/image-optimizer/slug"
	"github.com/Skryldev/image-optimizer/utils"
)

// PlanFunc returns the steps that turn raw source bytes into an encoded
// output at the given quality.  See pipeline.RecodePlan.
type PlanFunc func(quality int) []Step

// Processor is the central orchestrator.  It is safe for concurrent use.
type Processor struct {
	cfg      config.Config
	registry Registry
	plan     PlanFunc
	hooks    []Hook
	logger   Logger

	// Worker pool.
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	stopOnce sync.Once
	shutdown chan struct{}

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config.  Call Start() before
// submitting jobs; call Stop() when done.
func New(cfg config.Config, reg Registry, plan PlanFunc) *Processor {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Processor{
		cfg:      cfg,
		registry: reg,
		plan:     plan,
		logger:   nopLogger{},
		jobQueue: make(chan Job, queueSize),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) {
	if l == nil {
		l = nopLogger{}
	}
	p.logger = l
}

// AddHook registers a pipeline hook.
func (p *Processor) AddHook(h Hook) { p.hooks = append(p.hooks, h) }

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Config returns the configuration the processor was built with.
func (p *Processor) Config() config.Config { return p.cfg }

// Start launches the worker pool.  It is idempotent.
func (p *Processor) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workerCount(); i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down all workers.  Queued jobs that no worker picked up are
// dropped.  It is idempotent.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.shutdown) })
	p.wg.Wait()
}

// Process drains src, sniffs its format and runs steps over it.  It returns
// the final ImageData along with per-step timings.
func (p *Processor) Process(ctx context.Context, src Source, steps ...Step) (*ImageData, map[string]time.Duration, error) {
	if len(steps) == 0 {
		return nil, nil, apperrors.New(apperrors.CategoryPipeline, "process", apperrors.ErrEmptyInput)
	}
	if src.Reader == nil {
		return nil, nil, apperrors.New(apperrors.CategoryInput, "process", apperrors.ErrEmptyInput)
	}

	// --- 1. Drain source into memory (respecting max size limit) -------------
	r := src.Reader
	if p.cfg.MaxImageBytes > 0 {
		r = &utils.LimitedReader{R: src.Reader, Max: p.cfg.MaxImageBytes}
	}
	buf, err := utils.DrainReader(ctx, r, p.cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, nil, apperrors.New(apperrors.CategoryValidation, "process.drain", apperrors.ErrTooLarge)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, apperrors.Wrap(apperrors.CategoryPipeline, "process.drain", ctxErr)
		}
		return nil, nil, apperrors.Wrap(apperrors.CategoryInput, "process.drain", err)
	}
	rawBytes := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	// --- 2. Detect format ----------------------------------------------------
	format := Format(utils.DetectFormat(rawBytes))
	if format == FormatUnknown && src.ContentType != "" {
		format = contentTypeToFormat(src.ContentType)
	}

	img := &ImageData{
		Data:         rawBytes,
		Format:       format,
		OriginalSize: int64(len(rawBytes)),
	}

	// --- 3. Run steps --------------------------------------------------------
	timings := make(map[string]time.Duration, len(steps))
	current := img
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, timings, apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)
		}
		p.notifyBefore(ctx, step.Name(), current)
		t := time.Now()
		next, stepErr := step.Execute(ctx, current)
		elapsed := time.Since(t)
		timings[step.Name()] = elapsed
		p.notifyAfter(ctx, step.Name(), next, elapsed, stepErr)
		if stepErr != nil {
			return nil, timings, stepErr
		}
		current = next
	}
	return current, timings, nil
}

// Recode decodes src and re-encodes it with the processor's plan at the
// given quality.  A quality of 0 selects the configured default; anything
// else outside [1,100] is a validation error.  Errors name src.Name.
func (p *Processor) Recode(ctx context.Context, src Source, quality int) (*RecodeResult, error) {
	res, err := p.recode(ctx, src, quality)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		err = apperrors.WithFile(err, src.Name, apperrors.CategoryPipeline)
		p.logger.Warn("recode.failed", "file", src.Name, "error", err.Error())
		return nil, err
	}
	atomic.AddInt64(&p.processedCount, 1)
	p.logger.Debug("recode.done",
		"file", src.Name,
		"output", res.Filename,
		"width", res.Width,
		"height", res.Height,
		"original_bytes", res.OriginalSize,
		"new_bytes", res.NewSize,
	)
	return res, nil
}

func (p *Processor) recode(ctx context.Context, src Source, quality int) (*RecodeResult, error) {
	if quality == 0 {
		quality = p.cfg.Quality
	}
	if err := ValidateQuality(quality); err != nil {
		return nil, err
	}
	if p.plan == nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "recode", errors.New("no recode plan configured"))
	}

	start := time.Now()
	out, timings, err := p.Process(ctx, src, p.plan(quality)...)
	if err != nil {
		return nil, err
	}
	if out.Format != FormatWebP || len(out.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, "recode",
			errors.New("plan did not produce encoded output"))
	}

	return &RecodeResult{
		Blob:           out.Data,
		Filename:       slug.Normalize(src.Name),
		OriginalName:   src.Name,
		OriginalSize:   out.OriginalSize,
		NewSize:        int64(len(out.Data)),
		Width:          out.Meta.Width,
		Height:         out.Meta.Height,
		SourceFormat:   out.Meta.Format,
		ProcessingTime: time.Since(start),
		StepTimings:    timings,
	}, nil
}

// ValidateQuality rejects quality values outside [1,100].
func ValidateQuality(q int) error {
	if q < 1 || q > 100 {
		return apperrors.New(apperrors.CategoryValidation, "quality", apperrors.ErrInvalidQuality)
	}
	return nil
}

// Batch recodes every source independently with bounded parallelism and
// returns results in request order.  A failing file never stops the others
// unless the processor runs in fail-fast mode, in which case the first
// failure cancels the files that have not finished yet and those are
// reported as skipped.
func (p *Processor) Batch(ctx context.Context, sources []Source, quality int) *BatchReport {
	results := make([]*RecodeResult, len(sources))
	errs := make([]error, len(sources))
	var first int64 = -1

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount())
	for i, src := range sources {
		g.Go(func() error {
			if p.cfg.FailFast && gctx.Err() != nil && ctx.Err() == nil {
				errs[i] = skipped(src.Name)
				return nil
			}
			r, err := p.Recode(gctx, src, quality)
			results[i], errs[i] = r, err
			if err != nil && p.cfg.FailFast {
				atomic.CompareAndSwapInt64(&first, -1, int64(i))
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	report := &BatchReport{}
	for i, src := range sources {
		err := errs[i]
		if err == nil {
			if results[i] != nil {
				report.Results = append(report.Results, results[i])
			}
			continue
		}
		if p.cfg.FailFast && int64(i) != atomic.LoadInt64(&first) &&
			ctx.Err() == nil && errors.Is(err, context.Canceled) {
			err = skipped(src.Name)
		}
		report.Failures = append(report.Failures, FileFailure{
			Index:        i,
			OriginalName: src.Name,
			Err:          err,
		})
	}
	report.Summary = Summarize(report.Results)
	return report
}

func skipped(name string) error {
	return apperrors.WithFile(
		apperrors.New(apperrors.CategoryPipeline, "batch", apperrors.ErrSkipped),
		name, apperrors.CategoryPipeline)
}

// Submit enqueues an async job.  Returns ErrWorkerPoolFull if the queue is full.
func (p *Processor) Submit(job Job) error {
	select {
	case p.jobQueue <- job:
		return nil
	default:
		return apperrors.New(apperrors.CategoryPipeline, "submit", apperrors.ErrWorkerPoolFull)
	}
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (p *Processor) workerCount() int {
	if p.cfg.WorkerCount > 0 {
		return p.cfg.WorkerCount
	}
	return runtime.NumCPU()
}

func (p *Processor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.processJob(job)
		}
	}
}

func (p *Processor) processJob(job Job) {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := p.cfg.JobTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := p.Recode(ctx, job.Source, job.Quality)
	if job.ResultCh != nil {
		job.ResultCh <- JobResult{JobID: job.ID, Result: result, Err: err}
	}
}

func (p *Processor) notifyBefore(ctx context.Context, name string, img *ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Processor) notifyAfter(ctx context.Context, name string, img *ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

// contentTypeToFormat maps MIME types to Format values.
func contentTypeToFormat(ct string) Format {
	switch ct {
	case "image/jpeg", "image/jpg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/gif":
		return FormatGIF
	case "image/bmp", "image/x-ms-bmp":
		return FormatBMP
	case "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}

// ProcessedCount returns the total number of successfully recoded images.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of recode failures.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
