// Package supplier maps shared-library names to the distribution package
// that installs them.
package supplier

const (
	// LibcLibrary is the canonical name every basic C-runtime alias is rewritten to.
	LibcLibrary = "libc.so.6"
	// LibcPackage supplies LibcLibrary.
	LibcPackage = "libc6"

	unknownName = "(unknown)"
)

// Supplier is either a package that meets a dependency or Unknown.
type Supplier struct {
	pkg string
}

// MetBy returns a Supplier for pkg. An empty pkg is Unknown.
func MetBy(pkg string) Supplier {
	return Supplier{pkg: pkg}
}

// Unknown is the Supplier of a library missing from the table.
func Unknown() Supplier {
	return Supplier{}
}

func (s Supplier) IsMet() bool {
	return s.pkg != ""
}

// IsLibc reports whether the base C runtime package supplies the dependency.
func (s Supplier) IsLibc() bool {
	return s.pkg == LibcPackage
}

// Package returns the supplying package, or "" when unknown.
func (s Supplier) Package() string {
	return s.pkg
}

// String is the display form used in reports.
func (s Supplier) String() string {
	if !s.IsMet() {
		return unknownName
	}
	return s.pkg
}
