package mock

import (
	"context"
	"io"

	"github.com/imagevault/imagevault/image"
	"github.com/imagevault/imagevault/transform"
)

// Transformer is a transform.Transformer with function fields, in the
// manner of the blob store mock.
type Transformer struct {
	TransformFn func(req transform.Request, src io.Reader) (transform.Result, error)
	IdentifyFn  func(src io.Reader) (image.OriginalParams, error)
}

func (m *Transformer) Transform(_ context.Context, req transform.Request, src io.Reader) (transform.Result, error) {
	return m.TransformFn(req, src)
}

func (m *Transformer) Identify(_ context.Context, src io.Reader) (image.OriginalParams, error) {
	return m.IdentifyFn(src)
}

var _ transform.Transformer = &Transformer{}
