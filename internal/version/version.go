// Package version carries the build version, overridable with
// -ldflags "-X github.com/ickyclip/icky/internal/version.Version=...".
package version

var Version = "0.4.0"

// UserAgent is sent with every request.
func UserAgent() string {
	return "icky/" + Version
}
