// Package version reports the wxmem module version a binary was built with.
package version

import (
	"runtime/debug"
	"strings"
)

// Default is the version used when the build info has none, such as in tests.
const Default = "dev"

// version is set with -ldflags "-X github.com/tetratelabs/wxmem/internal/version.version=vX.Y.Z"
var version string

// GetWxmemVersion returns the version of wxmem in the main module's
// dependencies, the main module's version if wxmem is the main module, or
// Default.
func GetWxmemVersion() string {
	if version != "" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionFromBuildInfo(info)
}

func versionFromBuildInfo(info *debug.BuildInfo) (ret string) {
	for _, dep := range info.Deps {
		// Note: here's the assumption that wxmem is imported as github.com/tetratelabs/wxmem.
		if strings.Contains(dep.Path, "github.com/tetratelabs/wxmem") {
			ret = dep.Version
		}
	}
	if ret == "" && info.Main.Path == "github.com/tetratelabs/wxmem" {
		ret = info.Main.Version
	}
	// "(devel)" is the main module's version when built from source.
	if ret == "" || ret == "(devel)" {
		ret = Default
	}
	return
}
