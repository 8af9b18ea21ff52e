package pipeline

import (
	"fmt"
	"strings"

	opterrors "github.com/lebinh/s3opt/errors"
)

// Target identifies one bucket and key prefix to scan.
type Target struct {
	Bucket string
	Prefix string
}

// ParseTarget parses a "bucket" or "bucket/prefix" argument.
func ParseTarget(s string) (Target, error) {
	bucket, prefix, _ := strings.Cut(s, "/")
	if bucket == "" {
		return Target{}, opterrors.NewError("target", opterrors.ErrInvalidConfig).
			WithMessage(fmt.Sprintf("malformed target %q, want bucket or bucket/prefix", s))
	}
	return Target{Bucket: bucket, Prefix: prefix}, nil
}

func (t Target) String() string {
	if t.Prefix == "" {
		return t.Bucket
	}
	return t.Bucket + "/" + t.Prefix
}
