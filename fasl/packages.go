package fasl

import (
	"sync"

	"github.com/daedaluz/scanlisp/value"
)

// packageList is process-wide mutable state (spec.md's Design Notes call
// this out explicitly: "scope it explicitly; do not rely on implicit
// singletons"). It is still a single process-wide list, matching
// interp.fasl_package_list/lset_fasl_package_list in fasl.cpp — a FASL
// PACKAGE name that the Factory's FindPackageByName does not resolve is
// looked up in whatever was last configured here, not in a per-Reader list,
// because the source never threaded one through either. SetFASLPackageList
// exists as the mutator so the scope is at least named and visible rather
// than a bare package var write.
var packageListMu sync.RWMutex
var packageList []value.Value

// SetFASLPackageList replaces the process-wide list of packages PACKAGE
// opcodes resolve names against (spec.md's set_fasl_package_list).
func SetFASLPackageList(packages []value.Value) {
	packageListMu.Lock()
	defer packageListMu.Unlock()
	packageList = append([]value.Value(nil), packages...)
}

// findConfiguredPackage looks up name in the process-wide FASL package
// list, mirroring fasl.cpp's find_package linear scan.
func findConfiguredPackage(name string) (*value.Package, bool) {
	packageListMu.RLock()
	defer packageListMu.RUnlock()
	for _, p := range packageList {
		pkg, ok := p.(*value.Package)
		if !ok {
			continue
		}
		if pkg.Name == name {
			return pkg, true
		}
	}
	return nil, false
}
