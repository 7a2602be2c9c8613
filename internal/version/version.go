// Package version exposes build metadata stamped at link time, e.g.
//
//	go build -ldflags "-X github.com/linguahub/aui-stream/internal/version.Version=0.3.0"
package version

import "fmt"

// Stamped via -ldflags; plain `go build` leaves these values.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String formats the metadata for logs and -version output.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
