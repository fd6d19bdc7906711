// Package catalog fetches the registry listing of packages and their downloads.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
)

// ErrCatalog marks a failure to obtain the catalog. It aborts a run.
var ErrCatalog = errors.New("failed to fetch trunk projects")

// Package describes one registry project.
type Package struct {
	Name             string      `json:"name"`
	RepositoryLink   string      `json:"repository_link"`
	Version          string      `json:"version"`
	PostgresVersions []int       `json:"postgres_versions"`
	Extensions       []Extension `json:"extensions"`
	Downloads        []Download  `json:"downloads"`
}

type Extension struct {
	ExtensionName              string   `json:"extension_name"`
	Version                    string   `json:"version"`
	DependenciesExtensionNames []string `json:"dependencies_extension_names,omitempty"`
}

// Download is one prebuilt archive of a package.
type Download struct {
	Link      string `json:"link"`
	PgVersion int    `json:"pg_version"`
	Platform  string `json:"platform"`
	Sha256    string `json:"sha256"`
}

// PrimaryDownload returns the first download location; the rest are informational.
func (p Package) PrimaryDownload() (Download, bool) {
	if len(p.Downloads) == 0 {
		return Download{}, false
	}
	return p.Downloads[0], true
}

// Fetch retrieves and decodes the catalog at url. Any failure wraps ErrCatalog.
func Fetch(ctx context.Context, client *http.Client, url string) ([]Package, error) {
	log := logger.Logger()
	log.Debugf("fetching catalog from %s", url)

	body, err := network.Get(ctx, client, url)
	if err != nil {
		var se *network.StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s %s", ErrCatalog, se.Status, se.Body)
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalog, err)
	}

	var pkgs []Package
	if err := json.Unmarshal(body, &pkgs); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %w", ErrCatalog, err)
	}
	log.Infof("catalog lists %d packages", len(pkgs))
	return pkgs, nil
}
