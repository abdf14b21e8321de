// Copyright 2021, Square, Inc.

package version_test

import (
	"runtime"
	"strings"
	"testing"

	"github.com/square/orkestra/version"
)

func TestVersion(t *testing.T) {
	if v := version.Version(); v != version.Release {
		t.Errorf("Version() = %s, expected %s", v, version.Release)
	}

	version.Build = "sq1"
	defer func() { version.Build = "" }()
	if v := version.Version(); v != version.Release+"+sq1" {
		t.Errorf("Version() = %s, expected %s+sq1", v, version.Release)
	}
}

func TestBanner(t *testing.T) {
	b := version.Banner("synth")
	if !strings.HasPrefix(b, "synth v"+version.Release+" (") {
		t.Errorf("banner %q does not start with the program and version", b)
	}
	if !strings.Contains(b, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("banner %q has no platform", b)
	}
}
