package version

var (
	// Version is the release tag of the inventuri binary, injected through -ldflags.
	Version = "dev"
	// Commit is the source revision the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build timestamp.
	BuildDate = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return "inventuri " + Version + " (" + Commit + ", " + BuildDate + ")"
}
