package main

import "fmt"

const baseVersion = "0.1.0"

// Set with -ldflags "-X main.gitSHA1=... -X main.gitDirty=1 -X main.buildDate=...".
var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildDate string = "unknown"
)

// Version returns the release with the git commit and working tree status
// when they were stamped into the build.
func Version() string {
	version := baseVersion
	if gitSHA1 != "" && gitSHA1 != "unknown" {
		version = fmt.Sprintf("%s (git:%s", version, gitSHA1)
		if gitDirty == "1" || gitDirty == "true" {
			version = fmt.Sprintf("%s-dirty", version)
		}
		version = fmt.Sprintf("%s)", version)
	}
	if buildDate != "" && buildDate != "unknown" {
		version = fmt.Sprintf("%s built %s", version, buildDate)
	}
	return version
}
