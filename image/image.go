package image

import (
	"fmt"
	"strings"
)

// Options is the canonical set of transform options for one artifact.
// A zero Action means no transform was requested. Width and Height of
// zero mean unspecified; crop offsets are pointers because an offset
// of zero is meaningful.
type Options struct {
	Action string `json:"action,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	CropX  *int   `json:"cx,omitempty"`
	CropY  *int   `json:"cy,omitempty"`
}

// Suffix renders the options as the version/lock key suffix:
// `_a<actionFirstChar>[_w<width>][_h<height>][_cx<cropX>][_cy<cropY>]`,
// fields present only if specified, in that fixed order. An empty
// action yields an empty suffix.
func (o Options) Suffix() string {
	if o.Action == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "_a%c", o.Action[0])
	if o.Width > 0 {
		fmt.Fprintf(&b, "_w%d", o.Width)
	}
	if o.Height > 0 {
		fmt.Fprintf(&b, "_h%d", o.Height)
	}
	if o.CropX != nil {
		fmt.Fprintf(&b, "_cx%d", *o.CropX)
	}
	if o.CropY != nil {
		fmt.Fprintf(&b, "_cy%d", *o.CropY)
	}
	return b.String()
}

// Artifact identifies one requested version of a source image: where
// the source lives, and how it is to be transformed. Equal artifacts
// always derive equal cache keys.
type Artifact struct {
	Dir     string
	File    string
	Options Options
}

// Ext returns the lower-cased file extension without the dot, or ""
// if the file has none.
func (a Artifact) Ext() string {
	i := strings.LastIndex(a.File, ".")
	if i < 0 || i == len(a.File)-1 {
		return ""
	}
	return strings.ToLower(a.File[i+1:])
}

// MetadataOnly reports whether this is a metadata (JSON) request, for
// which no transform suffix is ever derived.
func (a Artifact) MetadataOnly() bool {
	return a.Ext() == "json"
}

// SourcePath is the blob-store path of the original object.
func (a Artifact) SourcePath() string {
	return a.Dir + "/" + a.File
}

// VersionPath is the canonical blob-store path for the generated
// version; the options suffix goes before the extension, so
// ("a", "b.jpg", resize 100x50) uploads to "a/b_ar_w100_h50.jpg".
func (a Artifact) VersionPath() string {
	suffix := a.Options.Suffix()
	if a.MetadataOnly() || suffix == "" {
		return a.SourcePath()
	}
	if i := strings.LastIndex(a.File, "."); i >= 0 {
		return a.Dir + "/" + a.File[:i] + suffix + a.File[i:]
	}
	return a.Dir + "/" + a.File + suffix
}

// MimeType returns the MIME type the generated version will carry,
// judged by extension.
func (a Artifact) MimeType() string {
	switch a.Ext() {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// Metadata is the version record persisted against the version key.
// Its existence is the signal that generation completed.
type Metadata struct {
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size,omitempty"`
}

// OriginalParams caches expensive source-identification results so
// the source object doesn't have to be fetched and inspected on every
// request.
type OriginalParams struct {
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	Animated bool `json:"animated"`
}
