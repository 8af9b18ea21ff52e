package analyser

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/lebinh/s3opt/internal/store"
)

// GzipAnalyser finds text content that would benefit from transport gzip
// encoding. It trial-compresses in process to measure the saving; on accept
// the ORIGINAL bytes are written back through the store's encoding-aware
// path, which compresses on the way out. The trial output is never stored.
type GzipAnalyser struct {
	name   string
	limits Thresholds
	stats  Stats
	log    zerolog.Logger
}

// NewGzip builds a gzip-encoding analyser.
func NewGzip(name string, limits Thresholds, log zerolog.Logger) *GzipAnalyser {
	return &GzipAnalyser{name: name, limits: limits, log: log}
}

// Name returns the analyser's display name.
func (a *GzipAnalyser) Name() string { return a.name }

// Start resets the counters for a new scan.
func (a *GzipAnalyser) Start() { a.stats.reset() }

// Stats exposes the live counters.
func (a *GzipAnalyser) Stats() *Stats { return &a.stats }

// Finish renders the scan verdict including cumulative bytes saved.
func (a *GzipAnalyser) Finish() Verdict { return a.stats.verdict(a.name, true) }

// Analyse measures the gzip saving for one object and, when it clears the
// thresholds, switches the object to gzip transport encoding. Objects that
// are already gzip-encoded are left alone.
func (a *GzipAnalyser) Analyse(
	ctx context.Context,
	st store.Store,
	obj *store.Object,
	dryRun bool,
) error {
	a.stats.addTotal()

	if obj.Headers.IsGzip() {
		return nil
	}

	content, err := st.Read(ctx, obj)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		a.log.Warn().Str("key", obj.Key).Msg("object has no content")
		return nil
	}

	trial, err := store.GzipEncode(content)
	if err != nil {
		a.log.Warn().
			Str("key", obj.Key).
			Err(err).
			Msg("trial compression failed, keeping object as is")
		return nil
	}

	a.stats.addBytesIn(len(content))
	if !a.limits.Accept(len(content), len(trial)) {
		return nil
	}

	saved := len(content) - len(trial)
	a.stats.addProblematic()
	a.stats.addBytesSaved(saved)
	a.log.Info().
		Str("key", obj.Key).
		Int("from", len(content)).
		Int("to", len(trial)).
		Str("saved", humanize.Bytes(uint64(saved))).
		Msg("content should be gzip encoded")

	if dryRun {
		return nil
	}

	obj.Headers.ContentEncoding = "gzip"
	if err := st.WriteContent(ctx, obj, content); err != nil {
		return err
	}

	a.stats.addChanged()
	return nil
}
