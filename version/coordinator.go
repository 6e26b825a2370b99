package version

import (
	"context"
	"encoding/json"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/imagevault/imagevault/blob"
	"github.com/imagevault/imagevault/image"
	"github.com/imagevault/imagevault/keys"
	"github.com/imagevault/imagevault/lock"
	"github.com/imagevault/imagevault/store"
	"github.com/imagevault/imagevault/transform"
)

// maxClaimAttempts bounds the wait/claim loop. Each failed claim
// means another worker held the lock for a full wait window, so
// anything past a handful of rounds is a stuck key, not contention.
const maxClaimAttempts = 3

// Service produces (or finds) versions of artifacts, and identifies
// originals.
type Service interface {
	GenerateVersion(ctx context.Context, a image.Artifact) (image.Metadata, error)
	FindOriginal(ctx context.Context, a image.Artifact) (image.OriginalParams, error)
}

// Coordinator is a stateless per-request orchestrator: all
// coordination state lives in the store, so any number of processes
// holding equivalent Coordinators observe the same locks and cache.
type Coordinator struct {
	Store       store.Client
	Locks       *lock.Lock
	Blobs       blob.Store
	Transformer transform.Transformer
	Keys        keys.Deriver
	Logger      log.Logger
}

// GenerateVersion ensures the requested version exists, building it
// at most once across all workers. The single-flight guarantee rests
// entirely on the store's atomic insert-if-absent: two racers both
// try to claim the lock key, exactly one wins the insert, and the
// loser falls back to polling.
func (c *Coordinator) GenerateVersion(ctx context.Context, a image.Artifact) (image.Metadata, error) {
	meta, found, err := c.findVersion(a)
	if err != nil {
		return image.Metadata{}, err
	}
	if found {
		return meta, nil
	}

	lockKey := c.Keys.Lock(a)
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err := c.Locks.Wait(ctx, lockKey)
		switch err {
		case nil:
			// The holder finished and released; the version should
			// be cached now.
			meta, found, ferr := c.findVersion(a)
			if ferr != nil {
				return image.Metadata{}, ferr
			}
			if found {
				return meta, nil
			}
			// The holder released without writing a version record:
			// its build failed. Claim and rebuild.
		case lock.ErrNoLock, lock.ErrExpired, lock.ErrTimeout:
			// No build in progress (or the holder is presumed
			// dead); claim below.
		default:
			if err == ctx.Err() {
				return image.Metadata{}, err
			}
			return image.Metadata{}, failure(KindStore, err)
		}

		claimed, err := c.Locks.Acquire(lockKey)
		if err != nil {
			return image.Metadata{}, failure(KindStore, err)
		}
		if !claimed {
			// Lost the claim race; the winner is building. Wait
			// again.
			continue
		}
		return c.processVersion(ctx, a, lockKey)
	}
	return image.Metadata{}, failure(KindLockTimeout, errors.Errorf("gave up claiming %s after %d attempts", lockKey, maxClaimAttempts))
}

// processVersion runs one build attempt with the lock held. The lock
// is released on every exit, success or failure, so a failed build
// never wedges the key: the next requester retries after at most one
// poll cycle rather than the full lease window.
func (c *Coordinator) processVersion(ctx context.Context, a image.Artifact, lockKey string) (_ image.Metadata, err error) {
	defer func() {
		if rerr := c.Locks.Release(lockKey); rerr != nil {
			c.Logger.Log("err", errors.Wrap(rerr, "releasing build lock"), "key", lockKey)
		}
	}()

	// Another worker may have finished between our cache miss and
	// our claim; don't rebuild what's already there.
	meta, found, err := c.findVersion(a)
	if err != nil {
		return image.Metadata{}, err
	}
	if found {
		return meta, nil
	}

	src, err := c.Blobs.Get(ctx, a.SourcePath())
	if err != nil {
		if err == blob.ErrNoSuchObject {
			return image.Metadata{}, failure(KindNoSuchSource, errors.Errorf("source %s does not exist", a.SourcePath()))
		}
		return image.Metadata{}, failure(KindNoSuchSource, err)
	}
	defer src.Close()

	result, err := c.Transformer.Transform(ctx, transform.Request{Ext: a.Ext(), Options: a.Options}, src)
	if err != nil {
		return image.Metadata{}, failure(KindTransform, err)
	}
	defer os.Remove(result.Path)

	generated, err := os.Open(result.Path)
	if err != nil {
		return image.Metadata{}, failure(KindTransform, err)
	}
	defer generated.Close()

	if err := c.Blobs.Put(ctx, blob.PutRequest{
		Path:     a.VersionPath(),
		Body:     generated,
		Size:     result.Size,
		MimeType: a.MimeType(),
	}); err != nil {
		return image.Metadata{}, failure(KindUpload, err)
	}

	meta = image.Metadata{MimeType: a.MimeType(), Size: result.Size}
	record, err := json.Marshal(meta)
	if err != nil {
		return image.Metadata{}, failure(KindStore, err)
	}
	// Plain Set: overwriting a stale record is fine, the write is
	// idempotent by key.
	if err := c.Store.Set(c.Keys.Version(a), record); err != nil {
		return image.Metadata{}, failure(KindStore, err)
	}
	return meta, nil
}

// findVersion is a pure cache lookup; the record's existence, not its
// content, is the signal that generation completed.
func (c *Coordinator) findVersion(a image.Artifact) (image.Metadata, bool, error) {
	value, err := c.Store.Get(c.Keys.Version(a))
	if err == store.ErrNotFound {
		return image.Metadata{}, false, nil
	}
	if err != nil {
		return image.Metadata{}, false, failure(KindStore, err)
	}
	var meta image.Metadata
	if err := json.Unmarshal(value, &meta); err != nil {
		return image.Metadata{}, false, failure(KindStore, errors.Wrap(err, "decoding version record"))
	}
	return meta, true, nil
}

// FindOriginal returns the source object's identification results,
// fetching and inspecting the source only on a cache miss. Concurrent
// identical writes race on SetNX; the first writer wins and a lost
// race is harmless, both wrote the same thing.
func (c *Coordinator) FindOriginal(ctx context.Context, a image.Artifact) (image.OriginalParams, error) {
	key := c.Keys.Original(a)
	value, err := c.Store.Get(key)
	if err == nil {
		var params image.OriginalParams
		if uerr := json.Unmarshal(value, &params); uerr != nil {
			return image.OriginalParams{}, failure(KindStore, errors.Wrap(uerr, "decoding original record"))
		}
		return params, nil
	}
	if err != store.ErrNotFound {
		return image.OriginalParams{}, failure(KindStore, err)
	}

	src, err := c.Blobs.Get(ctx, a.SourcePath())
	if err != nil {
		if err == blob.ErrNoSuchObject {
			return image.OriginalParams{}, failure(KindNoSuchSource, errors.Errorf("source %s does not exist", a.SourcePath()))
		}
		return image.OriginalParams{}, failure(KindNoSuchSource, err)
	}
	defer src.Close()

	params, err := c.Transformer.Identify(ctx, src)
	if err != nil {
		return image.OriginalParams{}, failure(KindTransform, err)
	}
	record, err := json.Marshal(params)
	if err != nil {
		return image.OriginalParams{}, failure(KindStore, err)
	}
	if _, err := c.Store.SetNX(key, record); err != nil {
		return image.OriginalParams{}, failure(KindStore, err)
	}
	return params, nil
}

var _ Service = &Coordinator{}
