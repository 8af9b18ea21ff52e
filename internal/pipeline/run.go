package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	opterrors "github.com/lebinh/s3opt/errors"
	"github.com/lebinh/s3opt/internal/analyser"
	"github.com/lebinh/s3opt/internal/store"
)

// Report summarises one completed scan.
type Report struct {
	Bucket   string
	Prefix   string
	Keys     int64
	Failures int64
	Duration time.Duration
	Verdicts []analyser.Verdict
}

// Run scans every object under target, feeding each key through the
// analysers its rules resolve to. A failing object is logged, counted and
// skipped; the scan itself only fails when it cannot start at all.
func (p *Pipeline) Run(ctx context.Context, target Target) (*Report, error) {
	if len(p.rules) == 0 {
		return nil, opterrors.NewError("run", opterrors.ErrInvalidConfig).
			WithMessage("no analysers registered")
	}

	start := time.Now()
	log := p.cfg.Logger

	for _, r := range p.rules {
		r.analyser.Start()
	}

	// Taking the listing handle up front also validates the store
	// configuration before any worker spawns.
	lister, err := p.pool.Get(ctx)
	if err != nil {
		return nil, opterrors.NewError("run", err).WithBucket(target.Bucket)
	}
	defer p.pool.Put(lister)

	entries := lister.ListAll(ctx, target.Bucket, target.Prefix)

	var keys, failures int64

	var g errgroup.Group
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			var st store.Store
			defer func() {
				if st != nil {
					p.pool.Put(st)
				}
			}()
			for entry := range entries {
				if entry.Err != nil {
					atomic.AddInt64(&failures, 1)
					log.Error().Err(entry.Err).Msg("listing failed")
					continue
				}
				if st == nil {
					handle, err := p.pool.Get(ctx)
					if err != nil {
						atomic.AddInt64(&failures, 1)
						log.Error().Err(err).
							Str("key", entry.Object.Key).
							Msg("no store handle, object skipped")
						continue
					}
					st = handle
				}
				atomic.AddInt64(&keys, 1)
				if err := p.processKey(ctx, st, target.Bucket, entry.Object.Key); err != nil {
					atomic.AddInt64(&failures, 1)
					log.Error().Err(err).
						Str("key", entry.Object.Key).
						Msg("object skipped")
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, opterrors.NewError("run", err).WithBucket(target.Bucket)
	}

	report := &Report{
		Bucket:   target.Bucket,
		Prefix:   target.Prefix,
		Keys:     atomic.LoadInt64(&keys),
		Failures: atomic.LoadInt64(&failures),
		Duration: time.Since(start),
	}
	for _, r := range p.rules {
		v := r.analyser.Finish()
		report.Verdicts = append(report.Verdicts, v)
		logVerdict(log, v)
	}
	return report, nil
}

// processKey runs the resolved analyser chain for one key. The object is
// re-fetched before every analyser so that each one sees the headers and
// size left behind by the previous one.
func (p *Pipeline) processKey(ctx context.Context, st store.Store, bucket, key string) error {
	chain := p.Resolve(key)
	if len(chain) == 0 {
		return nil
	}
	for _, a := range chain {
		obj, err := st.Head(ctx, bucket, key)
		if err != nil {
			return err
		}
		if err := a.Analyse(ctx, st, obj, p.cfg.DryRun); err != nil {
			return err
		}
	}
	return nil
}

func logVerdict(log zerolog.Logger, v analyser.Verdict) {
	switch v.Status {
	case analyser.StatusChanged:
		log.Warn().Str("analyser", v.Analyser).Msg(v.Message)
	case analyser.StatusProblem:
		log.Error().Str("analyser", v.Analyser).Msg(v.Message)
	default:
		log.Info().Str("analyser", v.Analyser).Msg(v.Message)
	}
}
