package version

// set via -ldflags at build time
var (
	Version = "dev"
	Commit  = "unknown"
)

func Full() string {
	return Version + " (" + Commit + ")"
}
