package compression

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Type is a stream compression format.
type Type string

const (
	None Type = "none"
	Gzip Type = "gz"
	Zstd Type = "zstd"
	Xz   Type = "xz"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

// Detect identifies the compression of a stream from its leading bytes.
func Detect(head []byte) Type {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, xzMagic):
		return Xz
	default:
		return None
	}
}

// FromExtension maps a file name to its compression type.
func FromExtension(name string) Type {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".tgz":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".xz":
		return Xz
	default:
		return None
	}
}

// NewReader returns a decompressing reader for r using the given type.
func NewReader(r io.Reader, typ Type) (io.ReadCloser, error) {
	switch typ {
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return zr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case Xz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case None:
		return io.NopCloser(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", typ)
	}
}

// NewAutoReader sniffs the compression of r and returns a decompressing
// reader along with the detected type. Uncompressed input is returned as is.
func NewAutoReader(r io.Reader) (io.ReadCloser, Type, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, None, fmt.Errorf("reading stream header: %w", err)
	}
	typ := Detect(head)
	rc, err := NewReader(br, typ)
	if err != nil {
		return nil, typ, err
	}
	return rc, typ, nil
}
