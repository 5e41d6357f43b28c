package domain

import (
	"testing"

	"gearcore/testutil"
)

// TestDomainDoesNotImportInternal keeps the domain layer free of implementation
// packages so record gateways and the service can both depend on it.
func TestDomainDoesNotImportInternal(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"domain package must not import internal packages")
}

func TestDomainHasNoTransitiveInternalDependency(t *testing.T) {
	if testing.Short() {
		t.Skip("loads package graph")
	}
	testutil.AssertNoTransitiveDependency(t, "gearcore/pkg/domain", testutil.InternalImportForbidden,
		"domain package must not depend on internal packages")
}
