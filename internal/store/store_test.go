package store_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opterrors "github.com/lebinh/s3opt/errors"
	"github.com/lebinh/s3opt/internal/store"
	"github.com/lebinh/s3opt/internal/testutil"
)

// TestClient_Head_WithMock tests header fetching with a mocked S3 client.
func TestClient_Head_WithMock(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	tests := []struct {
		name        string
		bucket      string
		key         string
		setupMock   func(*testutil.MockS3Client)
		wantErr     bool
		errContains string
		errIs       func(error) bool
		check       func(*testing.T, *store.Object)
	}{
		{
			name:   "maps the full header set",
			bucket: "test-bucket",
			key:    "assets/style.css",
			setupMock: func(m *testutil.MockS3Client) {
				m.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
					assert.Equal(t, "assets/style.css", aws.ToString(params.Key))

					return &s3.HeadObjectOutput{
						ContentLength:      aws.Int64(2048),
						ETag:               aws.String(`"etag-1"`),
						LastModified:       aws.Time(now),
						ContentType:        aws.String("text/css"),
						CacheControl:       aws.String("public, max-age=86400"),
						ContentEncoding:    aws.String("gzip"),
						ContentDisposition: aws.String("inline"),
						ContentLanguage:    aws.String("en"),
						Metadata:           map[string]string{"origin": "deploy-42"},
					}, nil
				}
			},
			check: func(t *testing.T, obj *store.Object) {
				assert.Equal(t, int64(2048), obj.Size)
				assert.Equal(t, `"etag-1"`, obj.ETag)
				assert.Equal(t, now, obj.LastModified)
				assert.Equal(t, "text/css", obj.Headers.ContentType)
				assert.Equal(t, "public, max-age=86400", obj.Headers.CacheControl)
				assert.Equal(t, "gzip", obj.Headers.ContentEncoding)
				assert.Equal(t, "inline", obj.Headers.ContentDisposition)
				assert.Equal(t, "en", obj.Headers.ContentLanguage)
				assert.Equal(t, "deploy-42", obj.Headers.Metadata["origin"])
				assert.True(t, obj.Headers.IsGzip())
				assert.False(t, obj.IsRedirect())
			},
		},
		{
			name:   "redirect marker",
			bucket: "test-bucket",
			key:    "old/page.html",
			setupMock: func(m *testutil.MockS3Client) {
				m.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return &s3.HeadObjectOutput{
						ContentLength:           aws.Int64(0),
						WebsiteRedirectLocation: aws.String("/new/page.html"),
					}, nil
				}
			},
			check: func(t *testing.T, obj *store.Object) {
				assert.Equal(t, "/new/page.html", obj.RedirectLocation)
				assert.True(t, obj.IsRedirect())
			},
		},
		{
			name:   "object not found",
			bucket: "test-bucket",
			key:    "missing",
			setupMock: func(m *testutil.MockS3Client) {
				m.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
				}
			},
			wantErr: true,
			errIs:   opterrors.IsObjectNotFound,
		},
		{
			name:   "access denied",
			bucket: "test-bucket",
			key:    "secret",
			setupMock: func(m *testutil.MockS3Client) {
				m.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
				}
			},
			wantErr: true,
			errIs:   opterrors.IsAccessDenied,
		},
		{
			name:   "empty bucket name",
			bucket: "",
			key:    "some-key",
			setupMock: func(m *testutil.MockS3Client) {
				m.HeadObjectFunc = func(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
					t.Error("HeadObject should not be called for an empty bucket")
					return &s3.HeadObjectOutput{}, nil
				}
			},
			wantErr:     true,
			errContains: "bucket name cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &testutil.MockS3Client{}
			if tt.setupMock != nil {
				tt.setupMock(mockClient)
			}
			client := store.NewWithClient(mockClient)

			obj, err := client.Head(context.Background(), tt.bucket, tt.key)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				if tt.errIs != nil {
					assert.True(t, tt.errIs(err), "unexpected error class: %v", err)
				}
				assert.Nil(t, obj)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, obj)
			assert.Equal(t, tt.bucket, obj.Bucket)
			assert.Equal(t, tt.key, obj.Key)
			if tt.check != nil {
				tt.check(t, obj)
			}
		})
	}
}

// TestClient_Read_WithMock tests content fetching and transport decoding.
func TestClient_Read_WithMock(t *testing.T) {
	plain := []byte("body { color: red }")

	packed, err := store.GzipEncode(plain)
	require.NoError(t, err)

	tests := []struct {
		name      string
		setupMock func(*testutil.MockS3Client)
		want      []byte
		wantErr   bool
		errIs     func(error) bool
	}{
		{
			name: "plain content",
			setupMock: func(m *testutil.MockS3Client) {
				m.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
					assert.Equal(t, "style.css", aws.ToString(params.Key))
					return &s3.GetObjectOutput{
						Body: io.NopCloser(bytes.NewReader(plain)),
					}, nil
				}
			},
			want: plain,
		},
		{
			name: "gzip content is inflated",
			setupMock: func(m *testutil.MockS3Client) {
				m.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return &s3.GetObjectOutput{
						Body:            io.NopCloser(bytes.NewReader(packed)),
						ContentEncoding: aws.String("gzip"),
					}, nil
				}
			},
			want: plain,
		},
		{
			name: "missing object",
			setupMock: func(m *testutil.MockS3Client) {
				m.GetObjectFunc = func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
					return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
				}
			},
			wantErr: true,
			errIs:   opterrors.IsObjectNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockClient := &testutil.MockS3Client{}
			tt.setupMock(mockClient)
			client := store.NewWithClient(mockClient)

			obj := &store.Object{Bucket: "test-bucket", Key: "style.css"}
			got, err := client.Read(context.Background(), obj)

			if tt.wantErr {
				require.Error(t, err)
				if tt.errIs != nil {
					assert.True(t, tt.errIs(err), "unexpected error class: %v", err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestClient_WriteContent_WithMock tests the content replacement path,
// including header carry-over, transport encoding and ACL preservation.
func TestClient_WriteContent_WithMock(t *testing.T) {
	grants := []types.Grant{{
		Grantee:    &types.Grantee{Type: types.TypeCanonicalUser, ID: aws.String("owner-id")},
		Permission: types.PermissionFullControl,
	}}
	owner := &types.Owner{ID: aws.String("owner-id")}

	t.Run("carries headers and restores the acl", func(t *testing.T) {
		body := []byte("optimised bytes")
		aclRestored := false

		mockClient := &testutil.MockS3Client{
			GetObjectAclFunc: func(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
				return &s3.GetObjectAclOutput{Grants: grants, Owner: owner}, nil
			},
			PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				got, err := io.ReadAll(params.Body)
				require.NoError(t, err)
				assert.Equal(t, body, got)

				assert.Equal(t, "image/jpeg", aws.ToString(params.ContentType))
				assert.Equal(t, "public, max-age=604800", aws.ToString(params.CacheControl))
				assert.Nil(t, params.ContentEncoding)
				assert.Equal(t, "deploy-42", params.Metadata["origin"])
				return &s3.PutObjectOutput{}, nil
			},
			PutObjectAclFunc: func(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
				require.NotNil(t, params.AccessControlPolicy)
				assert.Equal(t, grants, params.AccessControlPolicy.Grants)
				assert.Equal(t, owner, params.AccessControlPolicy.Owner)
				aclRestored = true
				return &s3.PutObjectAclOutput{}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{
			Bucket: "test-bucket",
			Key:    "photos/cat.jpg",
			Headers: store.Headers{
				ContentType:  "image/jpeg",
				CacheControl: "public, max-age=604800",
				Metadata:     map[string]string{"origin": "deploy-42"},
			},
		}
		err := client.WriteContent(context.Background(), obj, body)

		require.NoError(t, err)
		assert.True(t, aclRestored, "acl should be restored after the write")
	})

	t.Run("gzip handle compresses on the way out", func(t *testing.T) {
		body := []byte("<html>lots of text</html>")

		mockClient := &testutil.MockS3Client{
			GetObjectAclFunc: func(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
				return &s3.GetObjectAclOutput{}, nil
			},
			PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				assert.Equal(t, "gzip", aws.ToString(params.ContentEncoding))

				stored, err := io.ReadAll(params.Body)
				require.NoError(t, err)
				inflated, err := store.GzipDecode(stored)
				require.NoError(t, err)
				assert.Equal(t, body, inflated)
				return &s3.PutObjectOutput{}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{
			Bucket:  "test-bucket",
			Key:     "index.html",
			Headers: store.Headers{ContentType: "text/html", ContentEncoding: "gzip"},
		}
		require.NoError(t, client.WriteContent(context.Background(), obj, body))
	})

	t.Run("bucket with acls disabled", func(t *testing.T) {
		aclWritten := false

		mockClient := &testutil.MockS3Client{
			GetObjectAclFunc: func(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "AccessControlListNotSupported"}
			},
			PutObjectAclFunc: func(ctx context.Context, params *s3.PutObjectAclInput, optFns ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
				aclWritten = true
				return &s3.PutObjectAclOutput{}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{Bucket: "test-bucket", Key: "file.txt"}
		err := client.WriteContent(context.Background(), obj, []byte("x"))

		require.NoError(t, err)
		assert.False(t, aclWritten, "no acl to restore on acl-disabled buckets")
	})

	t.Run("put failure surfaces", func(t *testing.T) {
		mockClient := &testutil.MockS3Client{
			PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{Bucket: "test-bucket", Key: "file.txt"}
		err := client.WriteContent(context.Background(), obj, []byte("x"))

		require.Error(t, err)
		assert.True(t, opterrors.IsAccessDenied(err))
	})
}

// TestClient_RewriteHeaders_WithMock tests the metadata rewrite path.
func TestClient_RewriteHeaders_WithMock(t *testing.T) {
	t.Run("copies onto itself with replaced metadata", func(t *testing.T) {
		copied := false

		mockClient := &testutil.MockS3Client{
			GetObjectAclFunc: func(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
				return &s3.GetObjectAclOutput{}, nil
			},
			CopyObjectFunc: func(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
				assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
				assert.Equal(t, "assets/style.css", aws.ToString(params.Key))
				assert.Equal(t, "test-bucket/assets/style.css", aws.ToString(params.CopySource))
				assert.Equal(t, types.MetadataDirectiveReplace, params.MetadataDirective)

				assert.Equal(t, "text/css", aws.ToString(params.ContentType))
				assert.Equal(t, "public, max-age=86400", aws.ToString(params.CacheControl))
				assert.Nil(t, params.ContentEncoding)
				assert.Nil(t, params.ContentLanguage)
				assert.Equal(t, "deploy-42", params.Metadata["origin"])

				copied = true
				return &s3.CopyObjectOutput{}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{
			Bucket:  "test-bucket",
			Key:     "assets/style.css",
			Headers: store.Headers{ContentType: "binary/octet-stream"},
		}
		h := store.Headers{
			ContentType:  "text/css",
			CacheControl: "public, max-age=86400",
			Metadata:     map[string]string{"origin": "deploy-42"},
		}
		err := client.RewriteHeaders(context.Background(), obj, h)

		require.NoError(t, err)
		assert.True(t, copied)
	})

	t.Run("redirect marker is re-sent", func(t *testing.T) {
		mockClient := &testutil.MockS3Client{
			GetObjectAclFunc: func(ctx context.Context, params *s3.GetObjectAclInput, optFns ...func(*s3.Options)) (*s3.GetObjectAclOutput, error) {
				return &s3.GetObjectAclOutput{}, nil
			},
			CopyObjectFunc: func(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
				assert.Equal(t, "/new/page.html", aws.ToString(params.WebsiteRedirectLocation))
				return &s3.CopyObjectOutput{}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{
			Bucket:           "test-bucket",
			Key:              "old/page.html",
			RedirectLocation: "/new/page.html",
		}
		err := client.RewriteHeaders(context.Background(), obj, store.Headers{ContentType: "text/html"})

		require.NoError(t, err)
	})

	t.Run("copy failure surfaces", func(t *testing.T) {
		mockClient := &testutil.MockS3Client{
			CopyObjectFunc: func(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
				return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "no such key"}
			},
		}
		client := store.NewWithClient(mockClient)

		obj := &store.Object{Bucket: "test-bucket", Key: "gone.css"}
		err := client.RewriteHeaders(context.Background(), obj, store.Headers{ContentType: "text/css"})

		require.Error(t, err)
		assert.True(t, opterrors.IsObjectNotFound(err))
	})
}

// TestClient_ListAll_WithMock tests streaming pagination.
func TestClient_ListAll_WithMock(t *testing.T) {
	t.Run("walks continuation tokens", func(t *testing.T) {
		pages := 0

		mockClient := &testutil.MockS3Client{
			ListObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				assert.Equal(t, "test-bucket", aws.ToString(params.Bucket))
				assert.Equal(t, "assets/", aws.ToString(params.Prefix))

				pages++
				switch pages {
				case 1:
					assert.Nil(t, params.ContinuationToken)
					return &s3.ListObjectsV2Output{
						Contents: []types.Object{
							{Key: aws.String("assets/a.css"), Size: aws.Int64(10)},
							{Key: aws.String("assets/b.js"), Size: aws.Int64(20)},
						},
						IsTruncated:           aws.Bool(true),
						NextContinuationToken: aws.String("page-2"),
					}, nil
				default:
					assert.Equal(t, "page-2", aws.ToString(params.ContinuationToken))
					return &s3.ListObjectsV2Output{
						Contents: []types.Object{
							{Key: aws.String("assets/c.png"), Size: aws.Int64(30)},
						},
						IsTruncated: aws.Bool(false),
					}, nil
				}
			},
		}
		client := store.NewWithClient(mockClient)

		var keys []string
		for entry := range client.ListAll(context.Background(), "test-bucket", "assets/") {
			require.NoError(t, entry.Err)
			keys = append(keys, entry.Object.Key)
		}

		assert.Equal(t, []string{"assets/a.css", "assets/b.js", "assets/c.png"}, keys)
		assert.Equal(t, 2, pages)
	})

	t.Run("listing failure is delivered as an entry", func(t *testing.T) {
		mockClient := &testutil.MockS3Client{
			ListObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
			},
		}
		client := store.NewWithClient(mockClient)

		var entries []store.ListEntry
		for entry := range client.ListAll(context.Background(), "test-bucket", "") {
			entries = append(entries, entry)
		}

		require.Len(t, entries, 1)
		require.Error(t, entries[0].Err)
		assert.True(t, opterrors.IsAccessDenied(entries[0].Err))
	})

	t.Run("cancellation closes the stream", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())

		mockClient := &testutil.MockS3Client{
			ListObjectsV2Func: func(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
				// Every page claims more results so only cancellation ends it.
				return &s3.ListObjectsV2Output{
					Contents: []types.Object{
						{Key: aws.String("k"), Size: aws.Int64(1)},
					},
					IsTruncated:           aws.Bool(true),
					NextContinuationToken: aws.String("next"),
				}, nil
			},
		}
		client := store.NewWithClient(mockClient)

		entries := client.ListAll(ctx, "test-bucket", "")
		<-entries
		cancel()

		// The channel must close shortly after cancellation.
		for range entries {
		}
	})
}
