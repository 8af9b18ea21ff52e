package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	opterrors "github.com/lebinh/s3opt/errors"
	"github.com/lebinh/s3opt/internal/store"
)

// MemStore is an in-memory store.Store for exercising analysers and the
// pipeline without a network. Bodies are held at rest exactly as the real
// store persists them, so gzip-encoded objects live compressed and are
// inflated again on Read. The operation counters are guarded by the same
// mutex as the objects and are safe to read once a scan has finished.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]*memObject
	errs    map[string]error
	listErr error

	Heads    int
	Reads    int
	Writes   int
	Rewrites int
}

type memObject struct {
	headers  store.Headers
	body     []byte
	redirect string
}

func NewMemStore() *MemStore {
	return &MemStore{
		objects: make(map[string]*memObject),
		errs:    make(map[string]error),
	}
}

var _ store.Store = (*MemStore)(nil)

func memKey(bucket, key string) string { return bucket + "/" + key }

// Put seeds an object. Content arrives plain and is stored compressed
// when the headers declare gzip encoding, mirroring WriteContent.
func (m *MemStore) Put(bucket, key string, content []byte, h store.Headers) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = &memObject{headers: h.Clone(), body: atRest(content, h)}
}

// SetRedirect marks a seeded object as a website redirect.
func (m *MemStore) SetRedirect(bucket, key, location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[memKey(bucket, key)]; ok {
		o.redirect = location
	}
}

// FailWith makes every operation touching bucket/key return err.
func (m *MemStore) FailWith(bucket, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[memKey(bucket, key)] = err
}

// FailListing makes ListAll emit a single error entry and stop.
func (m *MemStore) FailListing(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// Headers returns a copy of the currently stored headers.
func (m *MemStore) Headers(bucket, key string) (store.Headers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return store.Headers{}, false
	}
	return o.headers.Clone(), true
}

// Body returns the at-rest bytes of an object.
func (m *MemStore) Body(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.body...), true
}

func (m *MemStore) ListAll(ctx context.Context, bucket, prefix string) <-chan store.ListEntry {
	m.mu.Lock()
	listErr := m.listErr
	var objs []store.Object
	for k, o := range m.objects {
		b, key, _ := strings.Cut(k, "/")
		if b != bucket || !strings.HasPrefix(key, prefix) {
			continue
		}
		objs = append(objs, store.Object{Bucket: bucket, Key: key, Size: int64(len(o.body))})
	}
	m.mu.Unlock()
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })

	out := make(chan store.ListEntry, len(objs)+1)
	go func() {
		defer close(out)
		if listErr != nil {
			out <- store.ListEntry{Err: listErr}
			return
		}
		for _, o := range objs {
			select {
			case out <- store.ListEntry{Object: o}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (m *MemStore) Head(ctx context.Context, bucket, key string) (*store.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Heads++
	if err := m.errs[memKey(bucket, key)]; err != nil {
		return nil, err
	}
	o, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, opterrors.NewObjectError("head", bucket, key, opterrors.ErrObjectNotFound)
	}
	return &store.Object{
		Bucket:           bucket,
		Key:              key,
		Size:             int64(len(o.body)),
		RedirectLocation: o.redirect,
		Headers:          o.headers.Clone(),
	}, nil
}

func (m *MemStore) Read(ctx context.Context, obj *store.Object) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if err := m.errs[memKey(obj.Bucket, obj.Key)]; err != nil {
		return nil, err
	}
	o, ok := m.objects[memKey(obj.Bucket, obj.Key)]
	if !ok {
		return nil, opterrors.NewObjectError("read", obj.Bucket, obj.Key, opterrors.ErrObjectNotFound)
	}
	if o.headers.IsGzip() {
		return store.GzipDecode(o.body)
	}
	return append([]byte(nil), o.body...), nil
}

func (m *MemStore) WriteContent(ctx context.Context, obj *store.Object, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if err := m.errs[memKey(obj.Bucket, obj.Key)]; err != nil {
		return err
	}
	m.objects[memKey(obj.Bucket, obj.Key)] = &memObject{
		headers:  obj.Headers.Clone(),
		body:     atRest(body, obj.Headers),
		redirect: obj.RedirectLocation,
	}
	return nil
}

func (m *MemStore) RewriteHeaders(ctx context.Context, obj *store.Object, h store.Headers) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Rewrites++
	if err := m.errs[memKey(obj.Bucket, obj.Key)]; err != nil {
		return err
	}
	o, ok := m.objects[memKey(obj.Bucket, obj.Key)]
	if !ok {
		return opterrors.NewObjectError("rewrite", obj.Bucket, obj.Key, opterrors.ErrObjectNotFound)
	}
	o.headers = h.Clone()
	return nil
}

func atRest(content []byte, h store.Headers) []byte {
	if !h.IsGzip() {
		return content
	}
	packed, err := store.GzipEncode(content)
	if err != nil {
		// compressing into memory cannot fail
		panic(err)
	}
	return packed
}
