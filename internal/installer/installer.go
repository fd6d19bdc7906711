// Package installer downloads prebuilt dependency bundles, verifies them and
// copies their shared libraries into the database data directory.
package installer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/open-edge-platform/trunk-libdeps/internal/archive"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/logger"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/network"
	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no bundle exists for the package.
var ErrNotFound = errors.New("dependency bundle not found")

const defaultTimeout = 5 * time.Second

type Options struct {
	BaseURL   string
	LibDir    string
	ConfigDir string
	LSBFile   string
	// PublicKey, when set, names an armored keyring that must have signed
	// every bundle's digests file.
	PublicKey string
	// Arch overrides the architecture derived from the running binary.
	Arch    string
	Client  *http.Client
	Timeout time.Duration
}

type Installer struct {
	opts     Options
	codename string
	arch     string
	keyring  openpgp.EntityList
	client   *http.Client
	log      *zap.SugaredLogger
}

// Result lists what Install placed on disk.
type Result struct {
	Package   string
	Libraries []string
	Config    string
}

// HostArch maps GOARCH to the bundle architecture name.
func HostArch() (string, error) {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return runtime.GOARCH, nil
	default:
		return "", fmt.Errorf("unsupported architecture %s", runtime.GOARCH)
	}
}

// Codename returns DISTRIB_CODENAME from an lsb-release file.
func Codename(lsbFile string) (string, error) {
	data, err := security.SafeReadFile(lsbFile, security.ResolveSymlinks)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", lsbFile, err)
	}
	codename, ok := ParseConfig(string(data))["DISTRIB_CODENAME"]
	if !ok || codename == "" {
		return "", fmt.Errorf("DISTRIB_CODENAME not found in %s", lsbFile)
	}
	return strings.Trim(codename, `"`), nil
}

// BundleURL is the download location of pkg's bundle.
func BundleURL(baseURL, codename, pkg, arch string) string {
	return fmt.Sprintf("%s/%s/tembo-%s_%s.tgz", strings.TrimRight(baseURL, "/"), codename, pkg, arch)
}

// New resolves the host codename and architecture and loads the signing key.
func New(opts Options) (*Installer, error) {
	codename, err := Codename(opts.LSBFile)
	if err != nil {
		return nil, err
	}
	arch := opts.Arch
	if arch == "" {
		if arch, err = HostArch(); err != nil {
			return nil, err
		}
	}
	var keyring openpgp.EntityList
	if opts.PublicKey != "" {
		if keyring, err = loadKeyring(opts.PublicKey); err != nil {
			return nil, err
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = network.NewSecureHTTPClient(opts.Timeout)
	}
	return &Installer{
		opts:     opts,
		codename: codename,
		arch:     arch,
		keyring:  keyring,
		client:   client,
		log:      logger.With("os", codename, "arch", arch),
	}, nil
}

func (i *Installer) Codename() string { return i.codename }

// InstallAll installs packages in order. A failure is logged and the next
// package is still attempted; all failures are returned joined.
func (i *Installer) InstallAll(ctx context.Context, pkgs []string) error {
	for _, dir := range []string{i.opts.LibDir, i.opts.ConfigDir} {
		i.log.Debugf("creating %s", dir)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	var errs []error
	for _, pkg := range pkgs {
		i.log.Infof("installing %s", pkg)
		res, err := i.Install(ctx, pkg)
		if err != nil {
			i.log.Errorf("%s: %v", pkg, err)
			errs = append(errs, fmt.Errorf("%s: %w", pkg, err))
			continue
		}
		i.log.Infof("%s installed (%d libraries)", pkg, len(res.Libraries))
	}
	return errors.Join(errs...)
}

// Install downloads, verifies and installs one package bundle.
func (i *Installer) Install(ctx context.Context, pkg string) (*Result, error) {
	if pkg == "" || strings.ContainsAny(pkg, `/\`) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}
	url := BundleURL(i.opts.BaseURL, i.codename, pkg, i.arch)
	i.log.Debugf("downloading %s", url)

	fetchCtx, cancel := context.WithTimeout(ctx, i.opts.Timeout)
	defer cancel()
	body, err := network.Get(fetchCtx, i.client, url)
	if err != nil {
		if network.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
		}
		return nil, fmt.Errorf("download failed: %w", err)
	}

	files, err := archive.UnpackAll(body)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", url, err)
	}
	b, err := splitBundle(files)
	if err != nil {
		return nil, err
	}

	if i.keyring != nil {
		if err := verifyDigests(i.keyring, b.digests, b.signature); err != nil {
			return nil, err
		}
	}
	digests, err := ParseDigests(b.digests)
	if err != nil {
		return nil, err
	}
	if err := checkDigests(b.files, digests); err != nil {
		return nil, err
	}
	i.log.Debugf("%s: digests OK", pkg)

	if err := checkConfig(b.config, pkg, i.codename, i.arch); err != nil {
		return nil, err
	}

	libs, err := i.copyLibs(b.files)
	if err != nil {
		return nil, err
	}
	cfgPath := filepath.Join(i.opts.ConfigDir, pkg+".cfg")
	if err := security.SafeWriteFile(cfgPath, b.config, 0o644, security.RejectSymlinks); err != nil {
		return nil, fmt.Errorf("writing %s: %w", cfgPath, err)
	}
	i.log.Debugf("%s -> %s", configFile, cfgPath)
	return &Result{Package: pkg, Libraries: libs, Config: cfgPath}, nil
}

// isLibrary matches lib/**/<name>.so[.N...].
func isLibrary(p string) bool {
	return strings.HasPrefix(p, "lib/") && strings.Contains(path.Base(p), ".so")
}

// copyLibs stages every library of the bundle in a scratch directory inside
// LibDir and then renames each into place, so a bad entry or a failed write
// leaves LibDir untouched.
func (i *Installer) copyLibs(files []archive.File) ([]string, error) {
	var order []string
	libs := make(map[string]archive.File)
	for _, f := range files {
		if !isLibrary(f.Path) {
			i.log.Debugf("skipping %s", f.Path)
			continue
		}
		switch f.Kind {
		case archive.Symlink:
			if f.Linkname == "" || strings.Contains(f.Linkname, "/") {
				return nil, fmt.Errorf("refusing symlink %s -> %q outside the library directory", f.Path, f.Linkname)
			}
		case archive.Regular:
		default:
			continue
		}
		name := path.Base(f.Path)
		if _, seen := libs[name]; !seen {
			order = append(order, name)
		}
		libs[name] = f
	}
	if len(order) == 0 {
		return nil, nil
	}

	stage, err := os.MkdirTemp(i.opts.LibDir, ".tembox-stage-*")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	for _, name := range order {
		f := libs[name]
		staged := filepath.Join(stage, name)
		if f.Kind == archive.Symlink {
			if err := os.Symlink(f.Linkname, staged); err != nil {
				return nil, fmt.Errorf("linking %s: %w", name, err)
			}
			continue
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := security.SafeWriteFile(staged, f.Data, mode, security.RejectSymlinks); err != nil {
			return nil, fmt.Errorf("writing %s: %w", name, err)
		}
	}

	var installed []string
	for _, name := range order {
		dest := filepath.Join(i.opts.LibDir, name)
		// Rename replaces an existing file or symlink at dest without following it.
		if err := os.Rename(filepath.Join(stage, name), dest); err != nil {
			if len(installed) > 0 {
				i.log.Warnf("left partially installed in %s: %s", i.opts.LibDir, strings.Join(installed, ", "))
			}
			return nil, fmt.Errorf("installing %s: %w", dest, err)
		}
		i.log.Infof("  %s -> %s", libs[name].Path, dest)
		installed = append(installed, name)
	}
	return installed, nil
}
