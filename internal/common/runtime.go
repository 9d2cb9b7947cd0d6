package common

import "runtime/debug"

var (
	// Git SHA commit (only first few characters)
	BuildCommit string

	// Build date and time
	BuildTime string

	// BuildGoVersion carries Go version the binary was built with
	BuildGoVersion string
)

func init() {
	BuildTime = "N/A"
	BuildCommit = "HEAD"

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	BuildGoVersion = bi.GoVersion
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs.revision":
			if len(bs.Value) > 6 {
				BuildCommit = bs.Value[0:6]
			}
		case "vcs.time":
			BuildTime = bs.Value
		}
	}
}

// Version returns a one line description of the running binary.
func Version() string {
	return BuildCommit + " (" + BuildTime + ", " + BuildGoVersion + ")"
}
