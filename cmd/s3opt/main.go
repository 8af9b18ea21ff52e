// Command s3opt audits objects on S3 and repairs what it finds: wrong or
// missing headers are rewritten in place and oversized content is
// recompressed, guided by a rule table keyed on object names.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/lebinh/s3opt/internal/analyser"
	"github.com/lebinh/s3opt/internal/pipeline"
	"github.com/lebinh/s3opt/internal/store"
	"github.com/lebinh/s3opt/internal/transform"
)

const (
	defaultImageMaxAge = 604800 // one week
	defaultTextMaxAge  = 86400  // one day
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env file: %v\n", err)
	}

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "s3opt:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "s3opt",
		Usage:     "audit and optimise objects stored on Amazon S3",
		ArgsUsage: "bucket[/prefix] [bucket[/prefix] ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "region",
				Usage:   "AWS region of the target buckets",
				EnvVars: []string{"AWS_REGION"},
			},
			&cli.StringFlag{
				Name:    "profile",
				Usage:   "AWS shared config profile to load",
				EnvVars: []string{"AWS_PROFILE"},
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "custom S3 endpoint, e.g. a LocalStack or MinIO URL",
				EnvVars: []string{"S3OPT_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "access-key",
				Usage:   "static AWS access key, used together with --secret-key",
				EnvVars: []string{"AWS_ACCESS_KEY_ID"},
			},
			&cli.StringFlag{
				Name:    "secret-key",
				Usage:   "static AWS secret key, used together with --access-key",
				EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Aliases: []string{"n"},
				Usage:   "report what would change without writing anything",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of concurrent scan workers (0 means one per CPU)",
			},
			&cli.BoolFlag{
				Name:  "no-content-type",
				Usage: "skip the Content-Type check",
			},
			&cli.BoolFlag{
				Name:  "no-cache-control",
				Usage: "skip the Cache-Control checks",
			},
			&cli.BoolFlag{
				Name:  "no-images",
				Usage: "skip JPEG and PNG recompression",
			},
			&cli.BoolFlag{
				Name:  "gzip",
				Usage: "gzip-encode compressible text objects",
			},
			&cli.IntFlag{
				Name:  "image-max-age",
				Usage: "Cache-Control max-age for images in seconds, negative for no-cache",
				Value: defaultImageMaxAge,
			},
			&cli.IntFlag{
				Name:  "text-max-age",
				Usage: "Cache-Control max-age for text content in seconds, negative for no-cache",
				Value: defaultTextMaxAge,
			},
			&cli.BoolFlag{
				Name:  "cache-private",
				Usage: "mark rewritten Cache-Control headers private instead of public",
			},
			&cli.IntFlag{
				Name:  "max-quality",
				Usage: "cap JPEG quality at this value when recompressing",
				Value: 100,
			},
			&cli.IntFlag{
				Name:  "min-saved-bytes",
				Usage: "keep a recompressed object only above this absolute saving",
				Value: 1000,
			},
			&cli.Float64Flag{
				Name:  "min-saved-percent",
				Usage: "keep a recompressed object only above this relative saving",
				Value: 10,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every examined object",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "log findings and verdicts only",
			},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	log := newLogger(c.Bool("verbose"), c.Bool("quiet"))

	if c.NArg() == 0 {
		return fmt.Errorf("no targets given, want bucket or bucket/prefix")
	}
	targets := make([]pipeline.Target, 0, c.NArg())
	for _, arg := range c.Args().Slice() {
		t, err := pipeline.ParseTarget(arg)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	if q := c.Int("max-quality"); q < 1 || q > 100 {
		return fmt.Errorf("max-quality %d out of range, want 1 to 100", q)
	}
	if p := c.Float64("min-saved-percent"); p < 0 || p > 100 {
		return fmt.Errorf("min-saved-percent %.1f out of range, want 0 to 100", p)
	}

	workers := c.Int("workers")
	if workers < 0 {
		return fmt.Errorf("workers %d out of range, want 0 or more", workers)
	}
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// One extra handle covers the listing alongside the workers.
	pool := store.NewPool(func() (store.Store, error) {
		return newStore(c, log)
	}, workers+1)

	p := pipeline.New(pool, pipeline.Config{
		Workers: workers,
		DryRun:  c.Bool("dry-run"),
		Logger:  log,
	})
	if err := registerRules(c, p, log); err != nil {
		return err
	}

	for _, t := range targets {
		report, err := p.Run(c.Context, t)
		if err != nil {
			return err
		}
		log.Info().
			Str("target", t.String()).
			Int64("keys", report.Keys).
			Int64("failures", report.Failures).
			Dur("took", report.Duration).
			Msg("scan finished")
	}
	return nil
}

// registerRules builds the default rule table. Patterns anchor at the
// start of the key, so each one opens with .* to match anywhere in it.
func registerRules(c *cli.Context, p *pipeline.Pipeline, log zerolog.Logger) error {
	limits := analyser.Thresholds{
		MinSavedBytes:   c.Int("min-saved-bytes"),
		MinSavedPercent: c.Float64("min-saved-percent"),
	}
	visibility := analyser.VisibilityPublic
	if c.Bool("cache-private") {
		visibility = analyser.VisibilityPrivate
	}

	if !c.Bool("no-content-type") {
		if err := p.Register(`.*`, analyser.NewContentType("content-type", log)); err != nil {
			return err
		}
	}
	if !c.Bool("no-cache-control") {
		image := analyser.NewCacheControl("image cache-control", c.Int("image-max-age"), visibility, log)
		if err := p.Register(`.*\.(jpe?g|png|gif)$`, image); err != nil {
			return err
		}
		text := analyser.NewCacheControl("text cache-control", c.Int("text-max-age"), visibility, log)
		if err := p.Register(`.*\.(html?|css|js|json)$`, text); err != nil {
			return err
		}
	}
	if !c.Bool("no-images") {
		runner := transform.NewExec(log)
		jpeg := analyser.NewJPEG("jpeg", c.Int("max-quality"), runner, limits, log)
		if err := p.Register(`.*\.jpe?g$`, jpeg); err != nil {
			return err
		}
		png := analyser.NewPNG("png", runner, limits, log)
		if err := p.Register(`.*\.png$`, png); err != nil {
			return err
		}
	}
	if c.Bool("gzip") {
		gz := analyser.NewGzip("gzip", limits, log)
		if err := p.Register(`.*\.(html?|css|js|json|svg|txt|xml)$`, gz); err != nil {
			return err
		}
	}
	return nil
}

func newStore(c *cli.Context, log zerolog.Logger) (store.Store, error) {
	opts := []store.Option{store.WithLogger(log)}
	if v := c.String("region"); v != "" {
		opts = append(opts, store.WithRegion(v))
	}
	if v := c.String("profile"); v != "" {
		opts = append(opts, store.WithProfile(v))
	}
	if v := c.String("endpoint"); v != "" {
		opts = append(opts, store.WithEndpoint(v))
	}
	if ak, sk := c.String("access-key"), c.String("secret-key"); ak != "" && sk != "" {
		opts = append(opts, store.WithStaticCredentials(ak, sk))
	}
	return store.New(opts...)
}

func newLogger(verbose, quiet bool) zerolog.Logger {
	level := zerolog.InfoLevel
	switch {
	case verbose:
		level = zerolog.DebugLevel
	case quiet:
		level = zerolog.WarnLevel
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05",
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
