// Package structio reads and writes structure files (extended XYZ and PDB,
// optionally gzip or zstd compressed) as asedb.Atoms frames.
package structio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/steenlysgaard/texase/internal/asedb"
)

var (
	ErrUnknownFormat = errors.New("unknown file format")
	ErrMalformed     = errors.New("malformed structure file")
	ErrBadIndex      = errors.New("bad frame index")
)

type format int

const (
	formatXYZ format = iota
	formatPDB
)

type compression int

const (
	compressNone compression = iota
	compressGzip
	compressZstd
)

var extensions = map[string]format{
	".xyz":    formatXYZ,
	".extxyz": formatXYZ,
	".pdb":    formatPDB,
}

func detect(path string) (format, compression, error) {
	name := strings.ToLower(filepath.Base(path))
	comp := compressNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		comp = compressGzip
		name = strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		comp = compressZstd
		name = strings.TrimSuffix(name, ".zst")
	}
	f, ok := extensions[filepath.Ext(name)]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return f, comp, nil
}

// CanRead reports whether the extension of path is a readable format.
func CanRead(path string) bool {
	_, _, err := detect(path)
	return err == nil
}

// CanWrite reports whether the extension of path is a writable format.
func CanWrite(path string) bool {
	return CanRead(path)
}

// ReadableExtensions lists the file suffixes Read understands.
func ReadableExtensions() []string {
	var out []string
	for _, ext := range []string{".extxyz", ".pdb", ".xyz"} {
		out = append(out, ext, ext+".gz", ext+".zst")
	}
	return out
}

var indexRe = regexp.MustCompile(`^(-?\d*)(:(-?\d*)(:(-?\d*))?)?$`)

// SplitIndex splits "traj.xyz@1:5" into the path and the frame index. A
// trailing @ part that is not an index is kept as part of the path.
func SplitIndex(s string) (path, index string) {
	i := strings.LastIndex(s, "@")
	if i < 0 || !indexRe.MatchString(s[i+1:]) {
		return s, ""
	}
	return s[:i], s[i+1:]
}

// selectFrames resolves an index against n frames: "" and "-1" select the
// last frame, ":" all of them, "N" one frame and "a:b:step" a slice.
func selectFrames(index string, n int) ([]int, error) {
	index = strings.TrimSpace(index)
	if index == "" {
		index = "-1"
	}
	m := indexRe.FindStringSubmatch(index)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadIndex, index)
	}
	if m[2] == "" {
		i, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadIndex, index)
		}
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("%w: frame %s of %d", ErrBadIndex, index, n)
		}
		return []int{i}, nil
	}
	step := 1
	if m[5] != "" {
		step, _ = strconv.Atoi(m[5])
		if step == 0 {
			return nil, fmt.Errorf("%w: zero step", ErrBadIndex)
		}
	}
	start, stop := 0, n
	if step < 0 {
		start, stop = n-1, -n-1
	}
	if m[1] != "" {
		start = clampIndex(m[1], n, step)
	}
	if m[3] != "" {
		stop = clampIndex(m[3], n, step)
	}
	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		if i >= 0 && i < n {
			out = append(out, i)
		}
	}
	return out, nil
}

func clampIndex(s string, n, step int) int {
	i, _ := strconv.Atoi(s)
	if i < 0 {
		i += n
	}
	lo, hi := 0, n
	if step < 0 {
		lo, hi = -1, n-1
	}
	return max(lo, min(i, hi))
}

// Read returns the frames of path selected by index.
func Read(path, index string) ([]*asedb.Atoms, error) {
	f, comp, err := detect(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r, err := decompress(file, comp)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	defer r.Close()

	var frames []*asedb.Atoms
	switch f {
	case formatXYZ:
		frames, err = readXYZ(r)
	case formatPDB:
		frames, err = readPDB(r)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: %s holds no structures", ErrMalformed, path)
	}
	sel, err := selectFrames(index, len(frames))
	if err != nil {
		return nil, err
	}
	if len(sel) == 0 {
		return nil, fmt.Errorf("%w: %q selects none of %d frames", ErrBadIndex, index, len(frames))
	}
	out := make([]*asedb.Atoms, len(sel))
	for i, j := range sel {
		out[i] = frames[j]
	}
	return out, nil
}

// Write writes frames to path, replacing the file unless appendTo is set.
func Write(path string, frames []*asedb.Atoms, appendTo bool) (err error) {
	f, comp, err := detect(path)
	if err != nil {
		return err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendTo {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	w, err := compress(file, comp)
	if err != nil {
		return err
	}
	switch f {
	case formatXYZ:
		err = writeXYZ(w, frames)
	case formatPDB:
		err = writePDB(w, frames)
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// zstd.Decoder has Close() without an error return.
type zstdReadCloser struct{ *zstd.Decoder }

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}

func decompress(r io.Reader, comp compression) (io.ReadCloser, error) {
	switch comp {
	case compressGzip:
		return gzip.NewReader(r)
	case compressZstd:
		d, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReadCloser{d}, nil
	}
	return io.NopCloser(r), nil
}

func compress(w io.Writer, comp compression) (io.WriteCloser, error) {
	switch comp {
	case compressGzip:
		return gzip.NewWriter(w), nil
	case compressZstd:
		return zstd.NewWriter(w)
	}
	return nopWriteCloser{w}, nil
}
