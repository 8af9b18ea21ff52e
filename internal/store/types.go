package store

import (
	"context"
	"time"
)

// Headers is the replicable header set of an object. It carries every
// header that a metadata rewrite must preserve.
type Headers struct {
	ContentType        string
	CacheControl       string
	ContentEncoding    string
	ContentDisposition string
	ContentLanguage    string

	// Metadata holds user-defined metadata (x-amz-meta-*)
	Metadata map[string]string
}

// Clone returns a deep copy of the header set, safe to mutate independently.
func (h Headers) Clone() Headers {
	c := h
	if h.Metadata != nil {
		c.Metadata = make(map[string]string, len(h.Metadata))
		for k, v := range h.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// IsGzip reports whether the object's content is transport-gzip-encoded.
func (h Headers) IsGzip() bool {
	return h.ContentEncoding == "gzip"
}

// Object is a transient handle to a stored object. The store owns the
// object; a handle is only valid until the next mutating operation on the
// same key, after which it must be re-fetched with Head.
type Object struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time

	// RedirectLocation is the website redirect target, empty for regular objects
	RedirectLocation string

	Headers Headers
}

// IsRedirect reports whether the object is a website redirect marker rather
// than regular content.
func (o *Object) IsRedirect() bool {
	return o.RedirectLocation != ""
}

// ListEntry is one result of a streaming listing. Either Object carries the
// listed key summary or Err carries a listing failure.
type ListEntry struct {
	Object Object
	Err    error
}

// Store is the gateway analysers and the scan engine go through for all
// object access. Implementations must be safe for use from a single
// goroutine; callers obtain one Store per worker.
type Store interface {
	// ListAll streams object summaries under prefix, handling pagination.
	// The channel is closed after the last page or on context cancellation.
	ListAll(ctx context.Context, bucket, prefix string) <-chan ListEntry

	// Head fetches the authoritative current header set for key.
	Head(ctx context.Context, bucket, key string) (*Object, error)

	// Read returns the object's decoded content, inflating it when the
	// handle's content-encoding is gzip.
	Read(ctx context.Context, obj *Object) ([]byte, error)

	// WriteContent replaces the object's content, preserving the handle's
	// full header set and the object ACL. When the handle's content-encoding
	// is gzip the body is gzip-compressed on the way out.
	WriteContent(ctx context.Context, obj *Object, body []byte) error

	// RewriteHeaders replaces the object's header set with h via a
	// copy-with-metadata operation, preserving content and ACL. The handle
	// is stale afterwards.
	RewriteHeaders(ctx context.Context, obj *Object, h Headers) error
}
