package keys

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/imagevault/imagevault/image"
)

// Deriver maps artifacts to the cache and lock keys under which their
// state lives. The mapping is pure: equal inputs always yield equal
// keys, whatever order the options were given in. Key formats are
// load-bearing — existing caches depend on them — so don't change
// them without versioning the namespace.
type Deriver struct {
	// Namespace prefixes every key, e.g. "iv".
	Namespace string
	// Env is the single-character environment tag, e.g. "p".
	Env string
}

// contentHash identifies the source object by its directory and
// filename.
func contentHash(dir, file string) string {
	sum := md5.Sum([]byte(dir + "/" + file))
	return hex.EncodeToString(sum[:])
}

// Base returns `<namespace>:<envChar>:<contentHash>`.
func (d Deriver) Base(a image.Artifact) string {
	return d.Namespace + ":" + d.Env + ":" + contentHash(a.Dir, a.File)
}

// Original returns the key caching the source object's identification
// results.
func (d Deriver) Original(a image.Artifact) string {
	return d.Base(a) + ":orig"
}

// Version returns the key whose presence means "this version has been
// generated". It is the base key when no transform was requested.
func (d Deriver) Version(a image.Artifact) string {
	return d.Base(a) + d.suffix(a)
}

// Lock returns the build-lock key for the version,
// `<namespace>:lock:<envChar>:<contentHash>[<optionsSuffix>]`.
func (d Deriver) Lock(a image.Artifact) string {
	return d.Namespace + ":lock:" + d.Env + ":" + contentHash(a.Dir, a.File) + d.suffix(a)
}

func (d Deriver) suffix(a image.Artifact) string {
	if a.MetadataOnly() {
		return ""
	}
	return a.Options.Suffix()
}
