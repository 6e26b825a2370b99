package memcached

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/imagevault/imagevault/store"
)

// MemcacheClient is a store.Client backed by memcached. It gets its
// server list from SRV records, and periodically updates that
// ServerList.
//
// memcached's Add command is the atomic insert-if-absent the lock
// depends on. Entries are stored without a memcached-level TTL: lease
// expiry is encoded in the value and judged by the reader.
type MemcacheClient struct {
	client     *memcache.Client
	serverList *memcache.ServerList
	hostname   string
	service    string
	logger     log.Logger

	quit chan struct{}
	wait sync.WaitGroup
}

// MemcacheConfig defines how a MemcacheClient should be constructed.
type MemcacheConfig struct {
	Host           string
	Service        string
	Timeout        time.Duration
	UpdateInterval time.Duration
	Logger         log.Logger
	MaxIdleConns   int
}

func NewMemcacheClient(config MemcacheConfig) *MemcacheClient {
	var servers memcache.ServerList
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout
	client.MaxIdleConns = config.MaxIdleConns

	newClient := &MemcacheClient{
		client:     client,
		serverList: &servers,
		hostname:   config.Host,
		service:    config.Service,
		logger:     config.Logger,
		quit:       make(chan struct{}),
	}

	err := newClient.updateMemcacheServers()
	if err != nil {
		config.Logger.Log("err", errors.Wrapf(err, "Error setting memcache servers to '%v'", config.Host))
	}

	newClient.wait.Add(1)
	go newClient.updateLoop(config.UpdateInterval)
	return newClient
}

// Does not use DNS, accepts static list of servers.
func NewFixedServerMemcacheClient(config MemcacheConfig, addresses ...string) *MemcacheClient {
	var servers memcache.ServerList
	servers.SetServers(addresses...)
	client := memcache.NewFromSelector(&servers)
	client.Timeout = config.Timeout

	newClient := &MemcacheClient{
		client:     client,
		serverList: &servers,
		hostname:   config.Host,
		service:    config.Service,
		logger:     config.Logger,
		quit:       make(chan struct{}),
	}

	return newClient
}

func (c *MemcacheClient) Get(key string) ([]byte, error) {
	item, err := c.client.Get(key)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			// Don't log on cache miss
			return nil, store.ErrNotFound
		}
		c.logger.Log("err", errors.Wrap(err, "fetching from memcache"))
		return nil, errors.Wrap(err, "fetching from memcache")
	}
	return item.Value, nil
}

func (c *MemcacheClient) Set(key string, value []byte) error {
	if err := c.client.Set(&memcache.Item{
		Key:   key,
		Value: value,
	}); err != nil {
		c.logger.Log("err", errors.Wrap(err, "storing in memcache"))
		return errors.Wrap(err, "storing in memcache")
	}
	return nil
}

func (c *MemcacheClient) SetNX(key string, value []byte) (bool, error) {
	err := c.client.Add(&memcache.Item{
		Key:   key,
		Value: value,
	})
	switch err {
	case nil:
		return true, nil
	case memcache.ErrNotStored:
		// Someone else inserted first; their row stands.
		return false, nil
	default:
		c.logger.Log("err", errors.Wrap(err, "adding to memcache"))
		return false, errors.Wrap(err, "adding to memcache")
	}
}

func (c *MemcacheClient) Delete(keys ...string) error {
	for _, k := range keys {
		if err := c.client.Delete(k); err != nil && err != memcache.ErrCacheMiss {
			c.logger.Log("err", errors.Wrap(err, "deleting from memcache"))
			return errors.Wrap(err, "deleting from memcache")
		}
	}
	return nil
}

func (c *MemcacheClient) Ping() error {
	return c.client.Ping()
}

// Stop the memcache client.
func (c *MemcacheClient) Stop() {
	close(c.quit)
	c.wait.Wait()
}

func (c *MemcacheClient) updateLoop(updateInterval time.Duration) {
	defer c.wait.Done()
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.updateMemcacheServers(); err != nil {
				c.logger.Log("err", errors.Wrap(err, "error updating memcache servers"))
			}
		case <-c.quit:
			return
		}
	}
}

// updateMemcacheServers sets a memcache server list from SRV records. SRV
// priority & weight are ignored.
func (c *MemcacheClient) updateMemcacheServers() error {
	_, addrs, err := net.LookupSRV(c.service, "tcp", c.hostname)
	if err != nil {
		return err
	}
	var servers []string
	for _, srv := range addrs {
		servers = append(servers, fmt.Sprintf("%s:%d", srv.Target, srv.Port))
	}
	// ServerList deterministically maps keys to _index_ of the server list.
	// Since DNS returns records in different order each time, we sort to
	// guarantee best possible match between nodes.
	sort.Strings(servers)
	return c.serverList.SetServers(servers...)
}

var _ store.Client = &MemcacheClient{}
