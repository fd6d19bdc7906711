package installer

import (
	"bufio"
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/open-edge-platform/trunk-libdeps/internal/archive"
)

const (
	digestsFile   = "digests"
	signatureFile = "digests.sig"
	configFile    = "tembox.cfg"
)

var (
	// ErrDigestMismatch is returned when a bundle member fails its SHA-512 check.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrConfigMismatch is returned when tembox.cfg describes another package, os or arch.
	ErrConfigMismatch = errors.New("tembox.cfg mismatch")
)

// ParseDigests reads "SHA512 (<path>) = <hex>" lines keyed by cleaned path.
// Blank lines are ignored; anything else malformed is an error.
func ParseDigests(data []byte) (map[string][]byte, error) {
	digests := make(map[string][]byte)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		rest, ok := strings.CutPrefix(line, "SHA512 (")
		if !ok {
			return nil, fmt.Errorf("digests line %d: missing SHA512 prefix", n)
		}
		file, rest, ok := strings.Cut(rest, ")")
		if !ok {
			return nil, fmt.Errorf("digests line %d: missing enclosing parentheses", n)
		}
		_, sum, ok := strings.Cut(rest, " = ")
		if !ok {
			return nil, fmt.Errorf("digests line %d: missing = separator", n)
		}
		raw, err := hex.DecodeString(sum)
		if err != nil {
			return nil, fmt.Errorf("digests line %d: %w", n, err)
		}
		if len(raw) != sha512.Size {
			return nil, fmt.Errorf("digests line %d: expected %d byte digest, got %d", n, sha512.Size, len(raw))
		}
		digests[archive.CleanName(file)] = raw
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading digests: %w", err)
	}
	return digests, nil
}

// ParseConfig reads key=value lines. Lines without '=' are ignored and
// later keys override earlier ones.
func ParseConfig(content string) map[string]string {
	cfg := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		key, val, ok := strings.Cut(strings.TrimRight(line, "\r"), "=")
		if !ok {
			continue
		}
		cfg[key] = val
	}
	return cfg
}

// bundle is an unpacked dependency archive split into its parts.
type bundle struct {
	files     []archive.File
	digests   []byte
	signature []byte
	config    []byte
}

func splitBundle(files []archive.File) (*bundle, error) {
	b := &bundle{}
	var haveDigests, haveConfig bool
	for _, f := range files {
		switch {
		case f.Path == digestsFile && f.Kind == archive.Regular:
			b.digests, haveDigests = f.Data, true
			continue
		case f.Path == signatureFile && f.Kind == archive.Regular:
			b.signature = f.Data
			continue
		case f.Path == configFile && f.Kind == archive.Regular:
			b.config, haveConfig = f.Data, true
		}
		b.files = append(b.files, f)
	}
	if !haveDigests {
		return nil, fmt.Errorf("no digests file found")
	}
	if !haveConfig {
		return nil, fmt.Errorf("%s not found", configFile)
	}
	return b, nil
}

// checkDigests requires a matching digest for every regular member.
func checkDigests(files []archive.File, digests map[string][]byte) error {
	for _, f := range files {
		if f.Kind != archive.Regular {
			continue
		}
		want, ok := digests[f.Path]
		if !ok {
			return fmt.Errorf("no digest found for %s", f.Path)
		}
		got := sha512.Sum512(f.Data)
		if !bytes.Equal(got[:], want) {
			return fmt.Errorf("%w for %s", ErrDigestMismatch, f.Path)
		}
	}
	return nil
}

func checkConfig(content []byte, pkg, codename, arch string) error {
	cfg := ParseConfig(string(content))
	for _, kv := range [][2]string{
		{"tembox_package", pkg},
		{"tembox_os", codename},
		{"tembox_arch", arch},
	} {
		if got := cfg[kv[0]]; got != kv[1] {
			return fmt.Errorf("%w: wrong %s: expected %q but got %q", ErrConfigMismatch, kv[0], kv[1], got)
		}
	}
	return nil
}
