// Package elfdeps reads the shared libraries an object file requires at load time.
package elfdeps

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for recognized object formats other than ELF.
var ErrUnsupportedFormat = errors.New("unsupported object format")

// Format names the object format found in a byte buffer.
type Format string

const (
	FormatELF     Format = "ELF"
	FormatPE      Format = "PE"
	FormatMachO   Format = "Mach-O"
	FormatArchive Format = "ar archive"
	FormatUnknown Format = "unknown"
)

// Detect identifies the object format of data from its leading magic.
func Detect(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		return FormatELF
	case bytes.HasPrefix(data, []byte("!<arch>\n")):
		return FormatArchive
	case bytes.HasPrefix(data, []byte("MZ")):
		return FormatPE
	}
	if len(data) >= 4 {
		switch binary.BigEndian.Uint32(data) {
		case 0xfeedface, 0xfeedfacf, 0xcefaedfe, 0xcffaedfe, 0xcafebabe:
			return FormatMachO
		}
	}
	return FormatUnknown
}

// Extract returns the DT_NEEDED entries of the ELF object in data, in the
// order the dynamic section records them. Objects without a dynamic section
// need nothing.
func Extract(data []byte) ([]string, error) {
	switch format := Detect(data); format {
	case FormatELF:
	case FormatUnknown:
		return nil, fmt.Errorf("parsing object: unrecognized format")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing ELF object: %w", err)
	}
	defer f.Close()

	libs, err := f.ImportedLibraries()
	if err != nil {
		return nil, fmt.Errorf("reading needed libraries: %w", err)
	}
	return libs, nil
}
