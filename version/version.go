// Copyright 2021, Square, Inc.

// Package version reports the orkestra release and the toolchain that built
// the synth binary.
package version

import (
	"fmt"
	"runtime"
)

// Release is the semver (https://semver.org/) release of orkestra.
const Release = "0.3.0"

// Build is set at link time (-ldflags "-X .../version.Build=sq1") and becomes
// the semver build metadata: 0.3.0+sq1.
var Build string

// Version returns Release with Build metadata, if any.
func Version() string {
	if Build == "" {
		return Release
	}
	return Release + "+" + Build
}

// Banner is what synth version prints: the version plus the Go version and
// platform of the binary, which is also the platform functions are built for.
func Banner(program string) string {
	return fmt.Sprintf("%s v%s (%s %s/%s)", program, Version(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
