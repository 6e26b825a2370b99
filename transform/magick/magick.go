package magick

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/imagevault/imagevault/image"
	"github.com/imagevault/imagevault/transform"
)

// Transformer shells out to ImageMagick. The binaries are looked up
// on PATH unless explicit paths are given.
type Transformer struct {
	ConvertPath  string
	IdentifyPath string
	TempDir      string
}

func (t *Transformer) convert() string {
	if t.ConvertPath != "" {
		return t.ConvertPath
	}
	return "convert"
}

func (t *Transformer) identify() string {
	if t.IdentifyPath != "" {
		return t.IdentifyPath
	}
	return "identify"
}

func (t *Transformer) Transform(ctx context.Context, req transform.Request, src io.Reader) (transform.Result, error) {
	pattern := "imagevault-*"
	if req.Ext != "" {
		pattern += "." + req.Ext
	}
	out, err := ioutil.TempFile(t.TempDir, pattern)
	if err != nil {
		return transform.Result{}, errors.Wrap(err, "creating temporary artifact")
	}
	out.Close()

	args := []string{"-"}
	switch req.Options.Action {
	case "resize":
		args = append(args, "-resize", geometry(req.Options.Width, req.Options.Height))
	case "crop":
		args = append(args, "-crop", cropGeometry(req.Options))
	}
	args = append(args, out.Name())

	cmd := exec.CommandContext(ctx, t.convert(), args...)
	cmd.Stdin = src
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out.Name())
		return transform.Result{}, errors.Wrapf(err, "convert: %s", strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(out.Name())
	if err != nil {
		return transform.Result{}, errors.Wrap(err, "sizing generated artifact")
	}
	return transform.Result{Path: out.Name(), Size: info.Size()}, nil
}

func (t *Transformer) Identify(ctx context.Context, src io.Reader) (image.OriginalParams, error) {
	// %n repeats per frame; one line per frame keeps parsing simple.
	cmd := exec.CommandContext(ctx, t.identify(), "-format", "%w %h\n", "-")
	cmd.Stdin = src
	out, err := cmd.Output()
	if err != nil {
		return image.OriginalParams{}, errors.Wrap(err, "identify")
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return image.OriginalParams{}, errors.New("identify: no output")
	}
	fields := strings.Fields(lines[0])
	if len(fields) != 2 {
		return image.OriginalParams{}, errors.Errorf("identify: unexpected output %q", lines[0])
	}
	w, err := strconv.Atoi(fields[0])
	if err != nil {
		return image.OriginalParams{}, errors.Wrap(err, "identify: parsing width")
	}
	h, err := strconv.Atoi(fields[1])
	if err != nil {
		return image.OriginalParams{}, errors.Wrap(err, "identify: parsing height")
	}
	return image.OriginalParams{
		Width:    w,
		Height:   h,
		Animated: len(lines) > 1,
	}, nil
}

func geometry(w, h int) string {
	switch {
	case w > 0 && h > 0:
		return fmt.Sprintf("%dx%d", w, h)
	case w > 0:
		return fmt.Sprintf("%d", w)
	default:
		return fmt.Sprintf("x%d", h)
	}
}

func cropGeometry(o image.Options) string {
	g := geometry(o.Width, o.Height)
	x, y := 0, 0
	if o.CropX != nil {
		x = *o.CropX
	}
	if o.CropY != nil {
		y = *o.CropY
	}
	return fmt.Sprintf("%s+%d+%d", g, x, y)
}

var _ transform.Transformer = &Transformer{}
