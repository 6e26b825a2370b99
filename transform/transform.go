package transform

import (
	"context"
	"io"

	"github.com/imagevault/imagevault/image"
)

// Request describes one transform: the artifact's options plus the
// output extension, which decides the encoded format.
type Request struct {
	Ext     string
	Options image.Options
}

// Result points at the generated file on local disk; the caller owns
// it (uploads it, then removes it).
type Result struct {
	Path string
	Size int64
}

// Transformer is the image-processing collaborator.
type Transformer interface {
	// Transform applies the requested options to the source bytes,
	// producing a local temporary artifact.
	Transform(ctx context.Context, req Request, src io.Reader) (Result, error)
	// Identify inspects the source bytes for its dimensions and
	// whether it is an animated format.
	Identify(ctx context.Context, src io.Reader) (image.OriginalParams, error)
}
