package version

// Build metadata; overridden with -ldflags "-X" at release time.
var (
	Version      = "0.1.0"
	Toolname     = "trunk-libdeps"
	Organization = "unknown"
	BuildDate    = "unknown"
	CommitSHA    = "unknown"
)
