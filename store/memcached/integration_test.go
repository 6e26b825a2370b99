// +build integration

package memcached

import (
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/imagevault/imagevault/store"
)

var (
	memcachedIPs = flag.String("memcached-ips", "127.0.0.1:11211", "space-separated host:port values for memcached to connect to")
)

func newClient() *MemcacheClient {
	return NewFixedServerMemcacheClient(MemcacheConfig{
		Timeout:        time.Second,
		UpdateInterval: 1 * time.Minute,
		Logger:         log.With(log.NewLogfmtLogger(os.Stderr), "component", "memcached"),
	}, strings.Fields(*memcachedIPs)...)
}

func TestMemcache_ReadWrite(t *testing.T) {
	mc := newClient()

	key := "imagevault-test:rw"
	defer mc.Delete(key)

	if err := mc.Set(key, []byte("test bytes")); err != nil {
		t.Fatal(err)
	}
	v, err := mc.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "test bytes" {
		t.Fatalf("Should have returned %q, but got %q", "test bytes", string(v))
	}

	if _, err := mc.Get("imagevault-test:absent"); err != store.ErrNotFound {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestMemcache_SetNXAtomicity(t *testing.T) {
	mc := newClient()

	key := "imagevault-test:setnx"
	defer mc.Delete(key)

	inserted, err := mc.SetNX(key, []byte("first"))
	if err != nil {
		t.Fatal(err)
	}
	if !inserted {
		t.Fatal("Expected first insert to win")
	}
	inserted, err = mc.SetNX(key, []byte("second"))
	if err != nil {
		t.Fatal(err)
	}
	if inserted {
		t.Fatal("Expected second insert to observe the existing row")
	}
	v, err := mc.Get(key)
	if err != nil {
		t.Fatal(err)
	}
	if string(v) != "first" {
		t.Fatalf("Existing row was modified: %q", string(v))
	}
}

func TestMemcache_DeleteAbsent(t *testing.T) {
	mc := newClient()
	if err := mc.Delete("imagevault-test:never-set"); err != nil {
		t.Fatal(err)
	}
}
