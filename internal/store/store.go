package store

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	opterrors "github.com/lebinh/s3opt/errors"
)

// listBuffer is the channel depth for streaming listings.
const listBuffer = 100

// ListAll streams all object summaries under prefix using channel-based
// pagination. It never materializes the full listing in memory; the channel
// is closed when the last page has been sent, a listing error has been
// delivered, or the context is cancelled.
//
// Always consume the channel completely or cancel the context to avoid
// goroutine leaks.
func (c *Client) ListAll(ctx context.Context, bucket, prefix string) <-chan ListEntry {
	entries := make(chan ListEntry, listBuffer)

	go func() {
		defer close(entries)

		var continuationToken *string

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			input := &s3.ListObjectsV2Input{
				Bucket:  aws.String(bucket),
				Prefix:  aws.String(prefix),
				MaxKeys: aws.Int32(1000), // maximum page size
			}
			if continuationToken != nil {
				input.ContinuationToken = continuationToken
			}

			result, err := c.s3.ListObjectsV2(ctx, input)
			if err != nil {
				entry := ListEntry{
					Err: opterrors.NewError("list", classifyError(err)).WithBucket(bucket),
				}
				select {
				case entries <- entry:
				case <-ctx.Done():
				}
				return
			}

			c.log.Debug().
				Str("bucket", bucket).
				Str("prefix", prefix).
				Int("count", len(result.Contents)).
				Msg("listed page")

			for _, obj := range result.Contents {
				entry := ListEntry{Object: Object{
					Bucket:       bucket,
					Key:          aws.ToString(obj.Key),
					Size:         aws.ToInt64(obj.Size),
					ETag:         aws.ToString(obj.ETag),
					LastModified: aws.ToTime(obj.LastModified),
				}}

				select {
				case entries <- entry:
				case <-ctx.Done():
					return
				}
			}

			if !aws.ToBool(result.IsTruncated) {
				break
			}
			continuationToken = result.NextContinuationToken
		}
	}()

	return entries
}

// Head fetches the authoritative current state of an object: its size,
// full header set and website redirect marker.
func (c *Client) Head(ctx context.Context, bucket, key string) (*Object, error) {
	if bucket == "" {
		return nil, opterrors.NewError("head", opterrors.ErrInvalidInput).
			WithKey(key).
			WithMessage("bucket name cannot be empty")
	}

	out, err := c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, opterrors.NewObjectError("head", bucket, key, classifyError(err))
	}

	obj := &Object{
		Bucket:           bucket,
		Key:              key,
		Size:             aws.ToInt64(out.ContentLength),
		ETag:             aws.ToString(out.ETag),
		LastModified:     aws.ToTime(out.LastModified),
		RedirectLocation: aws.ToString(out.WebsiteRedirectLocation),
		Headers: Headers{
			ContentType:        aws.ToString(out.ContentType),
			CacheControl:       aws.ToString(out.CacheControl),
			ContentEncoding:    aws.ToString(out.ContentEncoding),
			ContentDisposition: aws.ToString(out.ContentDisposition),
			ContentLanguage:    aws.ToString(out.ContentLanguage),
		},
	}
	if len(out.Metadata) > 0 {
		obj.Headers.Metadata = make(map[string]string, len(out.Metadata))
		for k, v := range out.Metadata {
			obj.Headers.Metadata[k] = v
		}
	}

	return obj, nil
}

// Read returns the object's decoded content. When the stored content is
// transport-gzip-encoded the bytes are inflated before being returned.
func (c *Client) Read(ctx context.Context, obj *Object) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		return nil, opterrors.NewObjectError("read", obj.Bucket, obj.Key, classifyError(err))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, opterrors.NewObjectError("read", obj.Bucket, obj.Key, err).
			WithMessage("reading object body")
	}

	// The response header is authoritative for how the bytes are stored.
	if aws.ToString(out.ContentEncoding) == "gzip" {
		inflated, err := GzipDecode(data)
		if err != nil {
			return nil, opterrors.NewObjectError("read", obj.Bucket, obj.Key, err).
				WithMessage("inflating gzip content")
		}
		return inflated, nil
	}

	return data, nil
}

// WriteContent replaces the object's content with body, carrying over the
// handle's full header set and re-applying the object's ACL. When the
// handle's content-encoding is gzip, body is compressed on the way out.
func (c *Client) WriteContent(ctx context.Context, obj *Object, body []byte) error {
	acl, err := c.captureACL(ctx, "write", obj.Bucket, obj.Key)
	if err != nil {
		return err
	}

	payload := body
	if obj.Headers.IsGzip() {
		payload, err = GzipEncode(body)
		if err != nil {
			return opterrors.NewObjectError("write", obj.Bucket, obj.Key, err).
				WithMessage("gzip encoding content")
		}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
		Body:   bytes.NewReader(payload),
	}
	h := obj.Headers
	if h.ContentType != "" {
		input.ContentType = aws.String(h.ContentType)
	}
	if h.CacheControl != "" {
		input.CacheControl = aws.String(h.CacheControl)
	}
	if h.ContentEncoding != "" {
		input.ContentEncoding = aws.String(h.ContentEncoding)
	}
	if h.ContentDisposition != "" {
		input.ContentDisposition = aws.String(h.ContentDisposition)
	}
	if h.ContentLanguage != "" {
		input.ContentLanguage = aws.String(h.ContentLanguage)
	}
	if len(h.Metadata) > 0 {
		input.Metadata = h.Metadata
	}
	if obj.RedirectLocation != "" {
		input.WebsiteRedirectLocation = aws.String(obj.RedirectLocation)
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return opterrors.NewObjectError("write", obj.Bucket, obj.Key, classifyError(err))
	}

	c.log.Debug().
		Str("bucket", obj.Bucket).
		Str("key", obj.Key).
		Int("bytes", len(payload)).
		Msg("wrote content")

	return c.restoreACL(ctx, "write", obj.Bucket, obj.Key, acl)
}

// RewriteHeaders replaces the object's header set with h through a
// copy-with-metadata operation onto itself, preserving content and ACL.
// The object handle is stale afterwards and must be re-fetched.
func (c *Client) RewriteHeaders(ctx context.Context, obj *Object, h Headers) error {
	acl, err := c.captureACL(ctx, "rewrite", obj.Bucket, obj.Key)
	if err != nil {
		return err
	}

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(obj.Bucket),
		Key:               aws.String(obj.Key),
		CopySource:        aws.String(obj.Bucket + "/" + obj.Key),
		MetadataDirective: types.MetadataDirectiveReplace,
	}
	if h.ContentType != "" {
		input.ContentType = aws.String(h.ContentType)
	}
	if h.CacheControl != "" {
		input.CacheControl = aws.String(h.CacheControl)
	}
	if h.ContentEncoding != "" {
		input.ContentEncoding = aws.String(h.ContentEncoding)
	}
	if h.ContentDisposition != "" {
		input.ContentDisposition = aws.String(h.ContentDisposition)
	}
	if h.ContentLanguage != "" {
		input.ContentLanguage = aws.String(h.ContentLanguage)
	}
	if len(h.Metadata) > 0 {
		input.Metadata = h.Metadata
	}
	// A replace-directive copy drops the redirect marker unless re-sent.
	if obj.RedirectLocation != "" {
		input.WebsiteRedirectLocation = aws.String(obj.RedirectLocation)
	}

	if _, err := c.s3.CopyObject(ctx, input); err != nil {
		return opterrors.NewObjectError("rewrite", obj.Bucket, obj.Key, classifyError(err))
	}

	c.log.Debug().
		Str("bucket", obj.Bucket).
		Str("key", obj.Key).
		Msg("rewrote headers")

	return c.restoreACL(ctx, "rewrite", obj.Bucket, obj.Key, acl)
}

// captureACL reads the object's ACL ahead of a mutating operation so it can
// be re-applied afterwards. On buckets with ACLs disabled there is nothing
// to preserve and a nil policy is returned.
func (c *Client) captureACL(
	ctx context.Context,
	op, bucket, key string,
) (*types.AccessControlPolicy, error) {
	out, err := c.s3.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isACLNotSupported(err) {
			c.log.Debug().
				Str("bucket", bucket).
				Str("key", key).
				Msg("bucket has ACLs disabled, nothing to preserve")
			return nil, nil
		}
		return nil, opterrors.NewObjectError(op, bucket, key, classifyError(err)).
			WithMessage("reading object acl")
	}
	return &types.AccessControlPolicy{
		Grants: out.Grants,
		Owner:  out.Owner,
	}, nil
}

// restoreACL re-applies a previously captured ACL after a mutating
// operation. A nil policy means the bucket has ACLs disabled.
func (c *Client) restoreACL(
	ctx context.Context,
	op, bucket, key string,
	acl *types.AccessControlPolicy,
) error {
	if acl == nil {
		return nil
	}
	_, err := c.s3.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		AccessControlPolicy: acl,
	})
	if err != nil {
		return opterrors.NewObjectError(op, bucket, key, classifyError(err)).
			WithMessage("restoring object acl")
	}
	return nil
}

// classifyError maps AWS API error codes onto the package's sentinel errors.
// Errors that do not correspond to a sentinel are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return opterrors.ErrObjectNotFound
		case "NoSuchBucket":
			return opterrors.ErrBucketNotFound
		case "AccessDenied":
			return opterrors.ErrAccessDenied
		}
	}
	return err
}

// isACLNotSupported reports whether err is S3 telling us the bucket has
// ACLs disabled (bucket-owner-enforced object ownership).
func isACLNotSupported(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessControlListNotSupported"
}
