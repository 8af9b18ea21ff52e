package analyser

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/lebinh/s3opt/internal/store"
	"github.com/lebinh/s3opt/internal/transform"
)

// Thresholds is the size-reduction policy for content rewrites. A candidate
// replaces the original only when the saving clears at least one threshold.
type Thresholds struct {
	MinSavedBytes   int
	MinSavedPercent float64
}

// DefaultThresholds returns the stock acceptance policy: a rewrite must
// save more than 1000 bytes or more than 10% to be worth a new version.
func DefaultThresholds() Thresholds {
	return Thresholds{MinSavedBytes: 1000, MinSavedPercent: 10}
}

// Accept reports whether replacing content of originalSize with a candidate
// of candidateSize is worth it. The rewrite is rejected only when both the
// absolute and the relative saving fall at or below their thresholds.
func (t Thresholds) Accept(originalSize, candidateSize int) bool {
	saved := originalSize - candidateSize
	savedPct := float64(saved) / float64(originalSize) * 100
	return saved > t.MinSavedBytes || savedPct > t.MinSavedPercent
}

// ImageAnalyser recompresses image content through an external optimiser
// and keeps the result when it clears the size thresholds. The payload is
// sniffed first so mislabeled keys are never fed to the tool.
type ImageAnalyser struct {
	name   string
	format string
	tool   transform.Tool
	runner transform.Runner
	limits Thresholds
	stats  Stats
	log    zerolog.Logger
}

// NewJPEG builds a lossless jpegoptim analyser. A maxQuality below 100
// additionally allows lossy recompression capped at that quality.
func NewJPEG(
	name string,
	maxQuality int,
	runner transform.Runner,
	limits Thresholds,
	log zerolog.Logger,
) *ImageAnalyser {
	args := []string{"--quiet", "--strip-all", "--all-progressive"}
	if maxQuality < 100 {
		args = append(args, fmt.Sprintf("--max=%d", maxQuality))
	}
	return &ImageAnalyser{
		name:   name,
		format: "image/jpeg",
		tool:   transform.Tool{Path: "jpegoptim", Args: args, Suffix: ".jpg"},
		runner: runner,
		limits: limits,
		log:    log,
	}
}

// NewPNG builds a lossless optipng analyser.
func NewPNG(
	name string,
	runner transform.Runner,
	limits Thresholds,
	log zerolog.Logger,
) *ImageAnalyser {
	return &ImageAnalyser{
		name:   name,
		format: "image/png",
		tool:   transform.Tool{Path: "optipng", Args: []string{"-quiet", "-strip", "all"}, Suffix: ".png"},
		runner: runner,
		limits: limits,
		log:    log,
	}
}

// Name returns the analyser's display name.
func (a *ImageAnalyser) Name() string { return a.name }

// Start resets the counters for a new scan.
func (a *ImageAnalyser) Start() { a.stats.reset() }

// Stats exposes the live counters.
func (a *ImageAnalyser) Stats() *Stats { return &a.stats }

// Tool returns the external optimiser invocation this analyser uses.
func (a *ImageAnalyser) Tool() transform.Tool { return a.tool }

// Finish renders the scan verdict including cumulative bytes saved.
func (a *ImageAnalyser) Finish() Verdict { return a.stats.verdict(a.name, true) }

// Analyse recompresses one object's content and persists the candidate
// when it clears the thresholds. A failed transform means no improvement
// was found; it never aborts the scan.
func (a *ImageAnalyser) Analyse(
	ctx context.Context,
	st store.Store,
	obj *store.Object,
	dryRun bool,
) error {
	a.stats.addTotal()

	content, err := st.Read(ctx, obj)
	if err != nil {
		return err
	}
	if len(content) == 0 {
		a.log.Warn().Str("key", obj.Key).Msg("object has no content")
		return nil
	}

	if mt := mimetype.Detect(content); !mt.Is(a.format) {
		a.log.Warn().
			Str("key", obj.Key).
			Str("detected", mt.String()).
			Str("expected", a.format).
			Msg("content does not match extension, skipping")
		return nil
	}

	candidate, err := a.runner.Optimise(ctx, content, a.tool)
	if err != nil {
		a.log.Warn().
			Str("key", obj.Key).
			Err(err).
			Msg("optimiser failed, keeping object as is")
		return nil
	}

	a.stats.addBytesIn(len(content))
	if !a.limits.Accept(len(content), len(candidate)) {
		return nil
	}

	saved := len(content) - len(candidate)
	a.stats.addProblematic()
	a.stats.addBytesSaved(saved)
	a.log.Info().
		Str("key", obj.Key).
		Int("from", len(content)).
		Int("to", len(candidate)).
		Str("saved", humanize.Bytes(uint64(saved))).
		Msg("content can be optimised")

	if dryRun {
		return nil
	}
	if err := st.WriteContent(ctx, obj, candidate); err != nil {
		return err
	}

	a.stats.addChanged()
	return nil
}
