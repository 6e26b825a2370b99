package version

import (
	"context"
	"io"
	"io/ioutil"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/imagevault/imagevault/blob"
	blobmock "github.com/imagevault/imagevault/blob/mock"
	"github.com/imagevault/imagevault/image"
	"github.com/imagevault/imagevault/keys"
	"github.com/imagevault/imagevault/lock"
	"github.com/imagevault/imagevault/store"
	"github.com/imagevault/imagevault/store/inmem"
	"github.com/imagevault/imagevault/transform"
	transformmock "github.com/imagevault/imagevault/transform/mock"
)

var testArtifact = image.Artifact{
	Dir:     "a",
	File:    "b.jpg",
	Options: image.Options{Action: "resize", Width: 100, Height: 50},
}

// countingTransformer produces a real temporary file, since the
// coordinator uploads from disk, and counts invocations.
func countingTransformer(count *int32, delay time.Duration) *transformmock.Transformer {
	return &transformmock.Transformer{
		TransformFn: func(req transform.Request, src io.Reader) (transform.Result, error) {
			atomic.AddInt32(count, 1)
			if delay > 0 {
				time.Sleep(delay)
			}
			f, err := ioutil.TempFile("", "imagevault-test-*")
			if err != nil {
				return transform.Result{}, err
			}
			if _, err := f.Write([]byte("generated")); err != nil {
				return transform.Result{}, err
			}
			f.Close()
			return transform.Result{Path: f.Name(), Size: 9}, nil
		},
	}
}

func newTestCoordinator(t transform.Transformer) (*Coordinator, *inmem.Store, *blobmock.Store) {
	s := inmem.New()
	blobs := &blobmock.Store{
		Objects: map[string][]byte{
			"a/b.jpg": []byte("original"),
		},
	}
	c := &Coordinator{
		Store: s,
		Locks: lock.New(s, lock.Config{
			PollInterval: 5 * time.Millisecond,
			WaitTimeout:  500 * time.Millisecond,
		}),
		Blobs:       blobs,
		Transformer: t,
		Keys:        keys.Deriver{Namespace: "iv", Env: "t"},
		Logger:      log.NewNopLogger(),
	}
	return c, s, blobs
}

func TestGenerateVersion_BuildsAndCaches(t *testing.T) {
	var count int32
	c, s, blobs := newTestCoordinator(countingTransformer(&count, 0))

	meta, err := c.GenerateVersion(context.Background(), testArtifact)
	if err != nil {
		t.Fatal(err)
	}
	if meta.MimeType != "image/jpeg" || meta.Size != 9 {
		t.Fatalf("Unexpected metadata: %+v", meta)
	}

	// The generated version was uploaded to its canonical path.
	if _, ok := blobs.Objects["a/b_ar_w100_h50.jpg"]; !ok {
		t.Fatalf("Expected upload at canonical version path, have %v", blobs.Objects)
	}
	// The version record exists, and the lock does not.
	if _, err := s.Get(c.Keys.Version(testArtifact)); err != nil {
		t.Fatalf("Expected version record, got %v", err)
	}
	if _, err := s.Get(c.Keys.Lock(testArtifact)); err != store.ErrNotFound {
		t.Fatalf("Expected no lock after build, got %v", err)
	}

	// A second request is a cache hit: no transform.
	if _, err := c.GenerateVersion(context.Background(), testArtifact); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Fatalf("Expected exactly one transform, got %d", n)
	}
}

func TestGenerateVersion_SingleFlight(t *testing.T) {
	var count int32
	c, _, _ := newTestCoordinator(countingTransformer(&count, 50*time.Millisecond))

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			meta, err := c.GenerateVersion(context.Background(), testArtifact)
			if err != nil {
				return err
			}
			if meta.Size != 9 {
				return errors.Errorf("unexpected metadata: %+v", meta)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Fatalf("Expected exactly one transform across concurrent requests, got %d", n)
	}
}

func TestGenerateVersion_SourceMissing(t *testing.T) {
	var count int32
	c, s, blobs := newTestCoordinator(countingTransformer(&count, 0))
	delete(blobs.Objects, "a/b.jpg")

	_, err := c.GenerateVersion(context.Background(), testArtifact)
	if ErrorKind(err) != KindNoSuchSource {
		t.Fatalf("Expected %s, got %v", KindNoSuchSource, err)
	}
	if n := atomic.LoadInt32(&count); n != 0 {
		t.Fatalf("Expected no transform, got %d", n)
	}
	// The failed build must not leave a dangling lock.
	if _, err := s.Get(c.Keys.Lock(testArtifact)); err != store.ErrNotFound {
		t.Fatalf("Expected no lock after failed build, got %v", err)
	}
}

func TestGenerateVersion_TransformFailure(t *testing.T) {
	c, s, _ := newTestCoordinator(&transformmock.Transformer{
		TransformFn: func(req transform.Request, src io.Reader) (transform.Result, error) {
			return transform.Result{}, errors.New("corrupt input")
		},
	})

	_, err := c.GenerateVersion(context.Background(), testArtifact)
	if ErrorKind(err) != KindTransform {
		t.Fatalf("Expected %s, got %v", KindTransform, err)
	}
	if _, err := s.Get(c.Keys.Lock(testArtifact)); err != store.ErrNotFound {
		t.Fatalf("Expected no lock after failed build, got %v", err)
	}
}

func TestGenerateVersion_UploadFailure(t *testing.T) {
	var count int32
	c, s, blobs := newTestCoordinator(countingTransformer(&count, 0))
	blobs.PutFn = func(req blob.PutRequest) error {
		return errors.New("503 slow down")
	}

	_, err := c.GenerateVersion(context.Background(), testArtifact)
	if ErrorKind(err) != KindUpload {
		t.Fatalf("Expected %s, got %v", KindUpload, err)
	}
	if _, err := s.Get(c.Keys.Lock(testArtifact)); err != store.ErrNotFound {
		t.Fatalf("Expected no lock after failed build, got %v", err)
	}
	// No version record either: existence means success.
	if _, err := s.Get(c.Keys.Version(testArtifact)); err != store.ErrNotFound {
		t.Fatalf("Expected no version record after failed build, got %v", err)
	}
}

func TestGenerateVersion_RetryAfterFailedBuildIsPrompt(t *testing.T) {
	var count int32
	c, _, blobs := newTestCoordinator(countingTransformer(&count, 0))
	original := blobs.Objects["a/b.jpg"]
	delete(blobs.Objects, "a/b.jpg")

	if _, err := c.GenerateVersion(context.Background(), testArtifact); ErrorKind(err) != KindNoSuchSource {
		t.Fatalf("Expected %s, got %v", KindNoSuchSource, err)
	}

	// The lock was released with the failure, so a retry proceeds
	// immediately instead of waiting out the lease window.
	blobs.Objects["a/b.jpg"] = original
	begin := time.Now()
	if _, err := c.GenerateVersion(context.Background(), testArtifact); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Fatalf("Retry should not wait for the lease window, took %v", elapsed)
	}
}

func TestGenerateVersion_ReclaimsReleasedLockWithoutVersion(t *testing.T) {
	// A previous builder took the lock, failed, and released it
	// without writing a version record. A waiter must rebuild rather
	// than report the version missing.
	var count int32
	c, _, _ := newTestCoordinator(countingTransformer(&count, 0))
	lockKey := c.Keys.Lock(testArtifact)

	if claimed, err := c.Locks.Acquire(lockKey); err != nil || !claimed {
		t.Fatalf("claimed=%t err=%v", claimed, err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		c.Locks.Release(lockKey)
	}()

	meta, err := c.GenerateVersion(context.Background(), testArtifact)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Size != 9 {
		t.Fatalf("Unexpected metadata: %+v", meta)
	}
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Fatalf("Expected the waiter to rebuild once, got %d", n)
	}
}

func TestGenerateVersion_ReclaimsExpiredLease(t *testing.T) {
	var count int32
	c, s, _ := newTestCoordinator(countingTransformer(&count, 0))

	// A dead worker's lease, long past its expiry.
	past := time.Now().Add(-time.Minute).UnixNano() / int64(time.Millisecond)
	s.Set(c.Keys.Lock(testArtifact), []byte(strconv.FormatInt(past, 10)))

	begin := time.Now()
	if _, err := c.GenerateVersion(context.Background(), testArtifact); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(begin); elapsed > 100*time.Millisecond {
		t.Fatalf("Expired lease should be reclaimed without polling, took %v", elapsed)
	}
	if n := atomic.LoadInt32(&count); n != 1 {
		t.Fatalf("Expected one transform, got %d", n)
	}
}

func TestFindOriginal_CachesIdentification(t *testing.T) {
	var identifies int32
	c, s, _ := newTestCoordinator(nil)
	c.Transformer = &transformmock.Transformer{
		IdentifyFn: func(src io.Reader) (image.OriginalParams, error) {
			atomic.AddInt32(&identifies, 1)
			return image.OriginalParams{Width: 800, Height: 600, Animated: true}, nil
		},
	}

	params, err := c.FindOriginal(context.Background(), testArtifact)
	if err != nil {
		t.Fatal(err)
	}
	if params.Width != 800 || params.Height != 600 || !params.Animated {
		t.Fatalf("Unexpected params: %+v", params)
	}
	if _, err := s.Get(c.Keys.Original(testArtifact)); err != nil {
		t.Fatalf("Expected original record cached, got %v", err)
	}

	// Second lookup is served from the cache.
	if _, err := c.FindOriginal(context.Background(), testArtifact); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&identifies); n != 1 {
		t.Fatalf("Expected exactly one identification, got %d", n)
	}
}

func TestFindOriginal_SourceMissing(t *testing.T) {
	c, _, blobs := newTestCoordinator(&transformmock.Transformer{})
	delete(blobs.Objects, "a/b.jpg")

	_, err := c.FindOriginal(context.Background(), testArtifact)
	if ErrorKind(err) != KindNoSuchSource {
		t.Fatalf("Expected %s, got %v", KindNoSuchSource, err)
	}
}
