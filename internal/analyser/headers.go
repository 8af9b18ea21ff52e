package analyser

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lebinh/s3opt/internal/store"
)

// HeaderCheck computes the desired value of one response header.
type HeaderCheck interface {
	// Desired returns the correct header value for obj. ok is false when no
	// value can be inferred, in which case the object always passes.
	Desired(obj *store.Object) (value string, ok bool)

	// Live returns the header's current value on obj.
	Live(obj *store.Object) string

	// Apply sets the header to value on h.
	Apply(h *store.Headers, value string)
}

// HeaderAnalyser verifies one response header against a HeaderCheck and
// repairs mismatches with a metadata rewrite that leaves every other header
// and the ACL untouched.
type HeaderAnalyser struct {
	name  string
	check HeaderCheck
	stats Stats
	log   zerolog.Logger
}

// NewHeaderAnalyser builds an analyser around a HeaderCheck.
func NewHeaderAnalyser(name string, check HeaderCheck, log zerolog.Logger) *HeaderAnalyser {
	return &HeaderAnalyser{name: name, check: check, log: log}
}

// Name returns the analyser's display name.
func (a *HeaderAnalyser) Name() string { return a.name }

// Start resets the counters for a new scan.
func (a *HeaderAnalyser) Start() { a.stats.reset() }

// Stats exposes the live counters.
func (a *HeaderAnalyser) Stats() *Stats { return &a.stats }

// Finish renders the scan verdict.
func (a *HeaderAnalyser) Finish() Verdict { return a.stats.verdict(a.name, false) }

// Analyse checks the header on one object and rewrites it when it differs
// from the desired value. Redirect markers are reported but never rewritten.
func (a *HeaderAnalyser) Analyse(
	ctx context.Context,
	st store.Store,
	obj *store.Object,
	dryRun bool,
) error {
	a.stats.addTotal()

	desired, ok := a.check.Desired(obj)
	if !ok {
		return nil
	}
	live := a.check.Live(obj)
	if live == desired {
		return nil
	}

	a.stats.addProblematic()
	a.log.Info().
		Str("key", obj.Key).
		Str("have", live).
		Str("want", desired).
		Msg(a.name + " mismatch")

	if dryRun {
		return nil
	}
	if obj.IsRedirect() {
		a.log.Debug().
			Str("key", obj.Key).
			Msg("redirect object, leaving headers untouched")
		return nil
	}

	headers := obj.Headers.Clone()
	a.check.Apply(&headers, desired)
	if err := st.RewriteHeaders(ctx, obj, headers); err != nil {
		return err
	}

	a.stats.addChanged()
	return nil
}

// Visibility is the cache audience of a Cache-Control directive.
type Visibility string

const (
	// VisibilityPublic allows shared caches to store the response
	VisibilityPublic Visibility = "public"

	// VisibilityPrivate restricts caching to the end client
	VisibilityPrivate Visibility = "private"
)

// CacheControlCheck computes the desired Cache-Control header from a
// configured max-age and visibility. A negative max-age means the object
// must not be cached.
type CacheControlCheck struct {
	MaxAge     int
	Visibility Visibility
}

// Desired implements HeaderCheck.
func (c CacheControlCheck) Desired(_ *store.Object) (string, bool) {
	if c.MaxAge >= 0 {
		return fmt.Sprintf("%s, max-age=%d", c.Visibility, c.MaxAge), true
	}
	return string(c.Visibility) + ", no-cache", true
}

// Live implements HeaderCheck.
func (c CacheControlCheck) Live(obj *store.Object) string { return obj.Headers.CacheControl }

// Apply implements HeaderCheck.
func (c CacheControlCheck) Apply(h *store.Headers, value string) { h.CacheControl = value }

// NewCacheControl builds a Cache-Control analyser for one content class.
func NewCacheControl(name string, maxAge int, vis Visibility, log zerolog.Logger) *HeaderAnalyser {
	return NewHeaderAnalyser(name, CacheControlCheck{MaxAge: maxAge, Visibility: vis}, log)
}

// ContentTypeCheck infers the desired Content-Type from the key's file
// extension. Keys whose extension yields no known MIME type always pass.
type ContentTypeCheck struct{}

// Desired implements HeaderCheck.
func (ContentTypeCheck) Desired(obj *store.Object) (string, bool) {
	ext := strings.ToLower(path.Ext(obj.Key))
	if ext == "" {
		return "", false
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return "", false
	}
	// TypeByExtension may attach parameters ("text/css; charset=utf-8");
	// the stored header carries the bare media type.
	mediatype, _, err := mime.ParseMediaType(t)
	if err != nil {
		return "", false
	}
	return mediatype, true
}

// Live implements HeaderCheck.
func (ContentTypeCheck) Live(obj *store.Object) string { return obj.Headers.ContentType }

// Apply implements HeaderCheck.
func (ContentTypeCheck) Apply(h *store.Headers, value string) { h.ContentType = value }

// NewContentType builds a Content-Type analyser.
func NewContentType(name string, log zerolog.Logger) *HeaderAnalyser {
	return NewHeaderAnalyser(name, ContentTypeCheck{}, log)
}
