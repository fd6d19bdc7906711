package fixture

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// File is one archive member. Type defaults to a regular file.
type File struct {
	Name     string
	Body     []byte
	Type     byte
	Linkname string
	Mode     int64
}

// Tar returns an uncompressed tar stream of files.
func Tar(t testing.TB, files ...File) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.Name,
			Typeflag: f.Type,
			Linkname: f.Linkname,
			Mode:     f.Mode,
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
			if hdr.Typeflag == tar.TypeDir {
				hdr.Mode = 0o755
			}
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(f.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing tar header %s: %v", f.Name, err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write(f.Body); err != nil {
				t.Fatalf("writing tar body %s: %v", f.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return buf.Bytes()
}

// Gzip compresses data.
func Gzip(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

// TarGz returns a gzip-compressed tar stream of files.
func TarGz(t testing.TB, files ...File) []byte {
	t.Helper()
	return Gzip(t, Tar(t, files...))
}

// TarZst returns a zstd-compressed tar stream of files.
func TarZst(t testing.TB, files ...File) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("creating zstd encoder: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(Tar(t, files...), nil)
}

// Xz compresses data.
func Xz(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("creating xz writer: %v", err)
	}
	if _, err := xw.Write(data); err != nil {
		t.Fatalf("xz write: %v", err)
	}
	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}
	return buf.Bytes()
}

// TarXz returns an xz-compressed tar stream of files.
func TarXz(t testing.TB, files ...File) []byte {
	t.Helper()
	return Xz(t, Tar(t, files...))
}

// Package returns a gzip tar holding one shared object per entry of libs,
// keyed by archive path, plus a control file that must be ignored.
func Package(t testing.TB, libs map[string][]string) []byte {
	t.Helper()
	files := []File{{Name: "trunk.toml", Body: []byte("[extension]\nname = \"fixture\"\n")}}
	for path, needed := range libs {
		files = append(files, File{Name: path, Body: SharedObject(t, needed...)})
	}
	return TarGz(t, files...)
}
