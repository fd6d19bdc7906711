// Package contents builds library->package tables from Debian-style
// Contents-<arch> indexes.
package contents

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/compression"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"golang.org/x/sync/errgroup"
)

// linePattern matches "<dir>/<lib>.so[.N...]<ws><section/package[,...]>".
var linePattern = regexp.MustCompile(`.*/(?P<library>[^/\s]+\.so(?:\.\d+(?:\.\d+)*)?)\s+(?P<package>.*)`)

var (
	libraryIdx = linePattern.SubexpIndex("library")
	packageIdx = linePattern.SubexpIndex("package")
)

// maxLineSize bounds one index line.
const maxLineSize = 1 << 20

// Options selects the mirror and architecture indexes are read from.
type Options struct {
	MirrorURL string
	Arch      string
	OutDir    string
}

// IndexURL returns the Contents index location of dist's updates pocket.
func IndexURL(mirrorURL, dist, arch string) string {
	return fmt.Sprintf("%s/dists/%s-updates/Contents-%s.gz", strings.TrimRight(mirrorURL, "/"), dist, arch)
}

// TableFileName is the file GenerateAll writes for dist.
func TableFileName(dist string) string {
	return fmt.Sprintf("library_mapping_%s.json", dist)
}

// Parse reads a Contents index and returns, for every shared-library
// basename, the package that ships it. When several packages ship the same
// library the shortest qualified name wins, so main-archive packages beat
// universe ones and libc6 beats libc6-i386. The section path is stripped
// from the winner.
func Parse(r io.Reader) (map[string]string, error) {
	best := make(map[string]string)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		m := linePattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		library := m[libraryIdx]
		for _, candidate := range strings.Split(m[packageIdx], ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if current, ok := best[library]; !ok || len(candidate) < len(current) {
				best[library] = candidate
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading contents index: %w", err)
	}

	table := make(map[string]string, len(best))
	for library, qualified := range best {
		table[library] = qualified[strings.LastIndex(qualified, "/")+1:]
	}
	return table, nil
}

// Generate streams the index at url, decompressing gzip or xz, and parses it.
func Generate(ctx context.Context, client *http.Client, url string) (map[string]string, error) {
	resp, err := network.Open(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	rc, typ, err := compression.NewAutoReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", url, err)
	}
	defer rc.Close()
	if typ == compression.None {
		if want := compression.FromExtension(url); want != compression.None {
			return nil, fmt.Errorf("decompressing %s: expected %s stream", url, want)
		}
	}

	table, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", url, err)
	}
	return table, nil
}

// WriteTable writes table as indented JSON to path.
func WriteTable(path string, table map[string]string) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding table: %w", err)
	}
	data = append(data, '\n')
	if err := security.SafeWriteFile(path, data, 0o644, security.RejectSymlinks); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// GenerateAll builds one table per dist concurrently and writes each to
// opts.OutDir. The first failure cancels the rest and is returned.
func GenerateAll(ctx context.Context, client *http.Client, opts Options, dists []string) ([]string, error) {
	log := logger.Logger()
	if len(dists) == 0 {
		return nil, fmt.Errorf("no distributions given")
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = "."
	}

	paths := make([]string, len(dists))
	g, gctx := errgroup.WithContext(ctx)
	for i, dist := range dists {
		i, dist := i, dist
		g.Go(func() error {
			url := IndexURL(opts.MirrorURL, dist, opts.Arch)
			log.Infof("downloading %s; this could take a while", url)
			start := time.Now()

			table, err := Generate(gctx, client, url)
			if err != nil {
				return fmt.Errorf("generating table for %s: %w", dist, err)
			}

			path := filepath.Join(outDir, TableFileName(dist))
			if err := WriteTable(path, table); err != nil {
				return err
			}
			log.Infof("wrote %d libraries for %s to %s in %s", len(table), dist, path, time.Since(start).Round(time.Millisecond))
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
