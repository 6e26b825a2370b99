package inmem

import (
	"sync"

	"github.com/imagevault/imagevault/store"
)

// Store is an in-process store.Client. It is used in tests and in
// standalone deployments where coordination across processes is not
// needed; the mutex gives SetNX the same atomicity the production
// backend provides.
type Store struct {
	mtx  sync.Mutex
	data map[string][]byte
}

func New() *Store {
	return &Store{
		data: map[string][]byte{},
	}
}

func (s *Store) Get(key string) ([]byte, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	// Copy so callers can't mutate the stored value.
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Set(key string, value []byte) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) SetNX(key string, value []byte) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = append([]byte(nil), value...)
	return true, nil
}

func (s *Store) Delete(keys ...string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *Store) Ping() error {
	return nil
}

var _ store.Client = &Store{}
