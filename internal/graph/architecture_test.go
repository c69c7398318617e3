package graph

import (
	"testing"

	"eiscore/testutil"
)

// The entity graph sits below the command layer; history, codec, merge and
// plot build on it, never the other way round.
func TestGraphDoesNotImportUpperLayers(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", "graph must not depend on the layers built on it",
		testutil.PackageImportForbidden("eiscore/internal/core"),
		testutil.PackageImportForbidden("eiscore/internal/history"),
		testutil.PackageImportForbidden("eiscore/internal/codec"),
		testutil.PackageImportForbidden("eiscore/internal/recovery"),
		testutil.PackageImportForbidden("eiscore/internal/infra"),
		testutil.PackageImportForbidden("eiscore/cmd"),
	)
}
