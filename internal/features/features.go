// Package features implements a feature flagging mechanism for wxmem.
//
// Features are intended to control properties of the code that can only be
// enabled globally, such as how code segments are mapped.
package features

import (
	"os"
	"strings"
	"sync"
)

const (
	// EnvVarName is the name of the environment variable which contains the
	// list of feature flags.
	EnvVarName = "WXMEMFEATURES"

	// HugePages backs dual-mapped code segments with huge pages when the
	// segment size is a multiple of a huge page size.
	HugePages = "hugepages"
	// SingleMap maps code segments once, toggling between read-write and
	// read-execute, even where a dual mapping is available.
	SingleMap = "singlemap"
)

var (
	lock sync.RWMutex
	list []string
)

// EnableFromEnvironment extracts the list of wxmem features enabled from the
// WXMEMFEATURES environment variable.
func EnableFromEnvironment() {
	features := os.Getenv(EnvVarName)
	Enable(strings.Split(features, ",")...)
}

// Enable the list of features passed as arguments.
//
// The function is idempotent and atomic, features that are already present are
// skipped.
//
// Unrecognized features are ignored.
func Enable(features ...string) {
	lock.Lock()
	defer lock.Unlock()

	enabled := list

	for _, f := range features {
		f = strings.TrimSpace(f)
		if supported(f) && !have(enabled, f) {
			enabled = append(enabled, f)
		}
	}

	list = enabled
}

// Disable removes the given features. Unknown or disabled features are
// ignored.
func Disable(features ...string) {
	lock.Lock()
	defer lock.Unlock()

	enabled := make([]string, 0, len(list))
	for _, f := range list {
		if !have(features, f) {
			enabled = append(enabled, f)
		}
	}

	list = enabled
}

// List returns the current list of features enabled on wxmem.
//
// The program must treat the returned slice as read-only.
func List() []string {
	lock.RLock()
	defer lock.RUnlock()
	return list
}

// Have returns true if the given feature is enabled.
func Have(feature string) bool {
	lock.RLock()
	features := list
	lock.RUnlock()
	return have(features, feature)
}

func have(list []string, feature string) bool {
	for _, f := range list {
		if f == feature {
			return true
		}
	}
	return false
}

func supported(feature string) bool {
	switch feature {
	case HugePages, SingleMap:
		return true
	default:
		return false
	}
}
