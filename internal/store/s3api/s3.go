// Package s3api defines interfaces for S3 operations to enable testing and mocking.
package s3api

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API defines the interface for S3 operations used by the store.
// This interface allows for mocking in tests and potential future implementations.
type S3API interface {
	// ListObjectsV2 lists objects in an S3 bucket
	ListObjectsV2(
		ctx context.Context,
		params *s3.ListObjectsV2Input,
		optFns ...func(*s3.Options),
	) (*s3.ListObjectsV2Output, error)

	// HeadObject retrieves metadata about an object without retrieving the object itself
	HeadObject(
		ctx context.Context,
		params *s3.HeadObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.HeadObjectOutput, error)

	// GetObject retrieves an object from S3
	GetObject(
		ctx context.Context,
		params *s3.GetObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectOutput, error)

	// PutObject uploads an object to S3
	PutObject(
		ctx context.Context,
		params *s3.PutObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectOutput, error)

	// CopyObject copies an object within S3
	CopyObject(
		ctx context.Context,
		params *s3.CopyObjectInput,
		optFns ...func(*s3.Options),
	) (*s3.CopyObjectOutput, error)

	// GetObjectAcl retrieves the access control list of an object
	GetObjectAcl(
		ctx context.Context,
		params *s3.GetObjectAclInput,
		optFns ...func(*s3.Options),
	) (*s3.GetObjectAclOutput, error)

	// PutObjectAcl sets the access control list of an object
	PutObjectAcl(
		ctx context.Context,
		params *s3.PutObjectAclInput,
		optFns ...func(*s3.Options),
	) (*s3.PutObjectAclOutput, error)
}

// Verify that the AWS S3 client implements our interface
var _ S3API = (*s3.Client)(nil)
