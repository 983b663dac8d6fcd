// Package version reports the chatsync build version. Commit and BuildDate
// are set with -ldflags at build time.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var (
	// Commit is the git revision of the build.
	Commit string
	// BuildDate is the build timestamp.
	BuildDate string
)

// allowed characters of a SemVer pre-release identifier.
const preReleaseAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz-."

const (
	major uint = 0
	minor uint = 4
	patch uint = 0

	preRelease = "dev"
)

// Version returns the SemVer string of this build.
func Version() string {
	v := fmt.Sprintf("%d.%d.%d", major, minor, patch)
	if pre := sanitize(preRelease); pre != "" {
		v += "-" + pre
	}
	return v
}

// Full returns Version followed by whatever build metadata is known. The
// module build info fills in the revision when -ldflags did not.
func Full() string {
	commit := strings.TrimSpace(Commit)
	if commit == "" {
		commit = vcsRevision()
	}

	parts := []string{Version()}
	if commit != "" {
		parts = append(parts, "commit="+commit)
	}
	if date := strings.TrimSpace(BuildDate); date != "" {
		parts = append(parts, "built="+date)
	}
	return strings.Join(parts, " ")
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 12 {
			return s.Value[:12]
		}
	}
	return ""
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(preReleaseAlphabet, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
