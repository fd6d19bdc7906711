// Package archive unpacks package archives in memory.
package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/compression"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/sassoftware/go-rpmutils"
)

// SharedObjectSuffix marks the archive members Unpack keeps.
const SharedObjectSuffix = ".so"

// maxEntrySize bounds a single member read into memory.
const maxEntrySize = 1 << 30

var rpmMagic = []byte{0xed, 0xab, 0xee, 0xdb}

// ErrEntryTooLarge is returned when a member exceeds the in-memory limit.
var ErrEntryTooLarge = errors.New("archive entry too large")

// Kind is the type of an archive member.
type Kind int

const (
	Regular Kind = iota
	Symlink
	Dir
	Other
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular file"
	case Symlink:
		return "symlink"
	case Dir:
		return "directory"
	default:
		return "special file"
	}
}

// Entry is a shared object found by Unpack.
type Entry struct {
	Path string
	Data []byte
}

// File is any member kept by UnpackAll.
type File struct {
	Path     string
	Kind     Kind
	Mode     os.FileMode
	Linkname string
	Data     []byte
}

type member struct {
	name     string
	kind     Kind
	mode     os.FileMode
	linkname string
}

// walkFunc receives each member; body is only readable for Regular members.
type walkFunc func(m member, body io.Reader) error

// Unpack returns every regular member whose name ends in ".so". Non-regular
// members are skipped with a warning, other regular files silently.
func Unpack(data []byte) ([]Entry, error) {
	log := logger.Logger()
	var entries []Entry
	err := walk(data, func(m member, body io.Reader) error {
		if m.kind != Regular {
			log.Warnf("skipping %s entry %s", m.kind, m.name)
			return nil
		}
		if !strings.HasSuffix(m.name, SharedObjectSuffix) {
			return nil
		}
		content, err := readBody(m.name, body)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: m.name, Data: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// UnpackAll returns every regular file and symlink in the archive.
// Directories are dropped; device nodes and fifos are skipped with a warning.
func UnpackAll(data []byte) ([]File, error) {
	log := logger.Logger()
	var files []File
	err := walk(data, func(m member, body io.Reader) error {
		switch m.kind {
		case Regular:
			content, err := readBody(m.name, body)
			if err != nil {
				return err
			}
			files = append(files, File{Path: m.name, Kind: Regular, Mode: m.mode, Data: content})
		case Symlink:
			files = append(files, File{Path: m.name, Kind: Symlink, Mode: m.mode, Linkname: m.linkname})
		case Dir:
		default:
			log.Warnf("skipping %s entry %s", m.kind, m.name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func walk(data []byte, fn walkFunc) error {
	if bytes.HasPrefix(data, rpmMagic) {
		return walkRpm(data, fn)
	}
	rc, typ, err := compression.NewAutoReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer rc.Close()
	if typ == compression.None {
		return fmt.Errorf("decompressing archive: unrecognized compression")
	}
	if err := walkTar(rc, fn); err != nil {
		return err
	}
	// The stream trailer (gzip CRC32/ISIZE, xz and zstd checksums) is only
	// verified once the decompressor reaches EOF.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	return nil
}

func walkTar(r io.Reader, fn walkFunc) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar header: %w", err)
		}
		m := member{
			name:     CleanName(hdr.Name),
			mode:     hdr.FileInfo().Mode().Perm(),
			linkname: hdr.Linkname,
		}
		switch hdr.Typeflag {
		case tar.TypeReg:
			m.kind = Regular
		case tar.TypeSymlink:
			m.kind = Symlink
		case tar.TypeDir:
			m.kind = Dir
		default:
			m.kind = Other
		}
		if err := fn(m, tr); err != nil {
			return err
		}
	}
}

func walkRpm(data []byte, fn walkFunc) error {
	rpm, err := rpmutils.ReadRpm(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("reading rpm: %w", err)
	}
	pr, err := rpm.PayloadReaderExtended()
	if err != nil {
		return fmt.Errorf("opening rpm payload: %w", err)
	}
	for {
		fi, err := pr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading rpm payload: %w", err)
		}
		mode := fi.Mode()
		m := member{
			name:     CleanName(fi.Name()),
			mode:     os.FileMode(mode) & os.ModePerm,
			linkname: fi.Linkname(),
		}
		switch mode & 0o170000 {
		case 0o100000:
			m.kind = Regular
		case 0o120000:
			m.kind = Symlink
		case 0o040000:
			m.kind = Dir
		default:
			m.kind = Other
		}
		if err := fn(m, pr); err != nil {
			return err
		}
	}
}

func readBody(name string, body io.Reader) ([]byte, error) {
	content, err := io.ReadAll(io.LimitReader(body, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(content) > maxEntrySize {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, name)
	}
	return content, nil
}

// CleanName strips leading "./" and "/" so tar, rpm and digest paths compare equal.
func CleanName(name string) string {
	return strings.TrimLeft(path.Clean("/"+name), "/")
}
