// Package store implements the metadata/content gateway over AWS S3.
//
// It exposes the handful of object operations the scan engine needs:
// streaming listings, authoritative header fetches, content reads that
// transparently inflate gzip transport encoding, and the two mutating
// operations (content replace, header rewrite) that preserve the rest of
// the object's headers and its ACL.
//
// A Client wraps one aws-sdk-go-v2 S3 client. Workers obtain their own
// Client through a Pool so handles are never shared across goroutines.
package store
