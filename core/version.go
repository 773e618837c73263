package core

import "fmt"

// Version is the application version, set at build time via ldflags:
//
//	go build -ldflags "-X tflitebridge/core.Version=$(git describe --tags --always)" .
var Version = "dev"

// BuildTime is the build timestamp, set at build time via ldflags.
var BuildTime = "unknown"

// GitCommit is the git commit hash, set at build time via ldflags.
var GitCommit = "unknown"

// GetVersion returns the application version string.
func GetVersion() string {
	return Version
}

// GetFullVersion returns version, commit, build time and the linked
// TensorFlow Lite version. An empty runtime means the library is not linked.
func GetFullVersion(runtime string) string {
	if runtime == "" {
		runtime = "not linked"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s, tflite: %s)", Version, GitCommit, BuildTime, runtime)
}
