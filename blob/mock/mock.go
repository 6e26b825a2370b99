package mock

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"

	"github.com/imagevault/imagevault/blob"
)

// Store is a blob.Store whose behaviour is given by function fields;
// unset fields fall back to the in-memory object map.
type Store struct {
	GetFn func(path string) (io.ReadCloser, error)
	PutFn func(req blob.PutRequest) error

	mtx     sync.Mutex
	Objects map[string][]byte
}

func (m *Store) Get(_ context.Context, path string) (io.ReadCloser, error) {
	if m.GetFn != nil {
		return m.GetFn(path)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	b, ok := m.Objects[path]
	if !ok {
		return nil, blob.ErrNoSuchObject
	}
	return ioutil.NopCloser(bytes.NewReader(b)), nil
}

func (m *Store) Put(_ context.Context, req blob.PutRequest) error {
	if m.PutFn != nil {
		return m.PutFn(req)
	}
	b, err := ioutil.ReadAll(req.Body)
	if err != nil {
		return err
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.Objects == nil {
		m.Objects = map[string][]byte{}
	}
	m.Objects[req.Path] = b
	return nil
}

var _ blob.Store = &Store{}
