package pipeline

import (
	"fmt"
	"regexp"
	"runtime"

	"github.com/rs/zerolog"

	opterrors "github.com/lebinh/s3opt/errors"
	"github.com/lebinh/s3opt/internal/analyser"
	"github.com/lebinh/s3opt/internal/store"
)

// Config drives one Pipeline.
type Config struct {
	// Workers is the scan pool size; zero or below means host parallelism
	Workers int

	// DryRun keeps verification and statistics but suppresses every
	// mutating store operation
	DryRun bool

	// Logger receives per-object findings and final verdicts
	Logger zerolog.Logger
}

// rule binds one compiled key pattern to one analyser. The rule table is
// built before a scan starts and never mutated during it.
type rule struct {
	pattern  *regexp.Regexp
	analyser analyser.Analyser
}

// Pipeline routes object keys through an ordered rule table and drives the
// concurrent scan over a store target.
type Pipeline struct {
	rules []rule
	cfg   Config
	pool  *store.Pool
}

// New creates a pipeline drawing per-worker store handles from pool.
func New(pool *store.Pool, cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Pipeline{cfg: cfg, pool: pool}
}

// Register compiles pattern and appends the rule to the table. Patterns
// are matched case-insensitively and anchor at the start of the key but
// not at its end, so a pattern without a trailing $ is a prefix match.
func (p *Pipeline) Register(pattern string, a analyser.Analyser) error {
	return p.register(pattern, a, true)
}

// RegisterCaseSensitive is Register without case folding.
func (p *Pipeline) RegisterCaseSensitive(pattern string, a analyser.Analyser) error {
	return p.register(pattern, a, false)
}

func (p *Pipeline) register(pattern string, a analyser.Analyser, caseInsensitive bool) error {
	expr := "^(?:" + pattern + ")"
	if caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return opterrors.NewError("register", opterrors.ErrInvalidConfig).
			WithMessage(fmt.Sprintf("bad pattern %q: %v", pattern, err))
	}
	p.rules = append(p.rules, rule{pattern: re, analyser: a})
	return nil
}

// Resolve returns every analyser whose pattern matches key, in
// registration order. All matching rules apply, not just the first.
func (p *Pipeline) Resolve(key string) []analyser.Analyser {
	var matched []analyser.Analyser
	for _, r := range p.rules {
		if r.pattern.MatchString(key) {
			matched = append(matched, r.analyser)
		}
	}
	return matched
}
