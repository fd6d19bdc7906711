package supplier

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/open-edge-platform/trunk-libdeps/internal/utils/security"
)

// Resolver canonicalizes library names and resolves them to suppliers.
// Implementations must be safe for concurrent use.
type Resolver interface {
	Canonicalize(library string) string
	Resolve(library string) Supplier
}

// basicLibs are always shipped with, or aliases of, the C runtime.
var basicLibs = map[string]struct{}{
	"libm.so.6":             {},
	"ld-linux.so.2":         {},
	"ld-linux-x86-64.so.2":  {},
	"ld-linux-aarch64.so.1": {},
}

// builtinSuppliers lists shared objects seen in Trunk extensions and the
// Ubuntu package that ships each one.
var builtinSuppliers = map[string]string{
	"libc.so.6":                        "libc6",
	"libstdc++.so.6":                   "libstdc++6",
	"libR.so":                          "r-base-core",
	"libcrypto.so.3":                   "openssl",
	"liblz4.so.1":                      "liblz4-1",
	"libgeos_c.so.1":                   "libgeos-c1v5",
	"libtcl8.6.so":                     "libtcl8.6",
	"libpcre2-8.so.0":                  "libpcre2-8-0",
	"libhiredis.so.0.14":               "libhiredis0.14",
	"libuuid.so.1":                     "libuuid1",
	"libgroonga.so.0":                  "libgroonga0",
	"libopenblas.so.0":                 "libopenblas0-pthread",
	"libcurl.so.4":                     "libcurl4",
	"libpython3.10.so.1.0":             "libpython3.10",
	"libjson-c.so.5":                   "libjson-c5",
	"libsybdb.so.5":                    "libsybdb5",
	"libsodium.so.23":                  "libsodium23",
	"libboost_serialization.so.1.74.0": "libboost-serialization1.74.0",
	"libgcc_s.so.1":                    "libgcc-s1",
	"libxml2.so.2":                     "libxml2",
	"libselinux.so.1":                  "libselinux1",
	"libprotobuf-c.so.1":               "libprotobuf-c1",
	"librdkafka.so.1":                  "librdkafka1",
	"libgdal.so.30":                    "libgdal30",
	"libcrypt.so.1":                    "libcrypt1",
	"libpq.so.5":                       "libpq5",
	"liburiparser.so.1":                "liburiparser1",
	"libfreetype.so.6":                 "libfreetype6",
	"libzstd.so.1":                     "libzstd1",
	"libz.so.1":                        "zlib1g",
	"libperl.so.5.34":                  "libperl5.34",
	"libgomp.so.1":                     "libgomp1",
	"libssl.so.3":                      "libssl3",
	"libproj.so.22":                    "libproj22",
	"libSFCGAL.so.1":                   "libsfcgal1",
}

// Table is an immutable library->package mapping.
type Table struct {
	suppliers map[string]string
}

var defaultTable = &Table{suppliers: builtinSuppliers}

// Default returns the built-in table.
func Default() *Table {
	return defaultTable
}

// NewTable copies entries into a new Table.
func NewTable(entries map[string]string) *Table {
	return &Table{suppliers: maps.Clone(entries)}
}

// LoadTable reads a JSON object of library basename -> package name, the
// format written by the contents generator.
func LoadTable(path string) (*Table, error) {
	data, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil {
		return nil, fmt.Errorf("reading supplier table %s: %w", path, err)
	}
	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing supplier table %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("supplier table %s is empty", path)
	}
	return &Table{suppliers: entries}, nil
}

// Canonicalize rewrites basic C-runtime aliases to LibcLibrary.
func (t *Table) Canonicalize(library string) string {
	if _, ok := basicLibs[library]; ok {
		return LibcLibrary
	}
	return library
}

// Resolve canonicalizes library and looks it up. It never fails.
func (t *Table) Resolve(library string) Supplier {
	if pkg, ok := t.suppliers[t.Canonicalize(library)]; ok {
		return MetBy(pkg)
	}
	return Unknown()
}

func (t *Table) Len() int {
	return len(t.suppliers)
}
