package driver

import (
	"fmt"
	"strings"
)

type (
	// LocatorFeatures is the set of Locator operations a driver
	// implements.
	LocatorFeatures uint

	// SourceArgsFeatures is the set of source-side arguments a driver
	// accepts.
	SourceArgsFeatures uint

	// DestArgsFeatures is the set of destination-side arguments a
	// driver accepts.
	DestArgsFeatures uint

	// Features declares a driver's full capability set. Argument
	// verification checks requested capabilities against this before
	// any data flows.
	Features struct {
		Locator             LocatorFeatures
		WriteSchemaIfExists IfExistsFeatures
		SourceArgs          SourceArgsFeatures
		DestArgs            DestArgsFeatures
		DestIfExists        IfExistsFeatures
		// PreferredChunkSize asks the engine to rechunk incoming
		// streams to approximately this many bytes before
		// WriteLocalData. Zero means any chunking is fine.
		PreferredChunkSize int
		// Unstable marks drivers gated behind --enable-unstable.
		Unstable bool
	}
)

// Locator operations.
const (
	FeatureSchema LocatorFeatures = 1 << iota
	FeatureWriteSchema
	FeatureCount
	FeatureLocalData
	FeatureWriteLocalData
	FeatureWriteRemoteData
)

// Source-side arguments.
const (
	SourceArgDriverArgs SourceArgsFeatures = 1 << iota
	SourceArgWhereClause
)

// Destination-side arguments.
const (
	DestArgDriverArgs DestArgsFeatures = 1 << iota
)

// Has reports whether f includes all bits of want.
func (f LocatorFeatures) Has(want LocatorFeatures) bool { return f&want == want }

// Has reports whether f includes all bits of want.
func (f SourceArgsFeatures) Has(want SourceArgsFeatures) bool { return f&want == want }

// Has reports whether f includes all bits of want.
func (f DestArgsFeatures) Has(want DestArgsFeatures) bool { return f&want == want }

// String renders the capability set in the `features` listing format.
func (f Features) String() string {
	var lines []string
	var ops []string
	for _, e := range []struct {
		bit  LocatorFeatures
		name string
	}{
		{FeatureSchema, "schema"},
		{FeatureWriteSchema, "write-schema"},
		{FeatureCount, "count"},
		{FeatureLocalData, "local-data"},
		{FeatureWriteLocalData, "write-local-data"},
		{FeatureWriteRemoteData, "write-remote-data"},
	} {
		if f.Locator.Has(e.bit) {
			ops = append(ops, e.name)
		}
	}
	lines = append(lines, fmt.Sprintf("  operations: %s", strings.Join(ops, " ")))
	var src []string
	if f.SourceArgs.Has(SourceArgDriverArgs) {
		src = append(src, "--from-arg=$NAME=$VALUE")
	}
	if f.SourceArgs.Has(SourceArgWhereClause) {
		src = append(src, "--where=$SQL_EXPR")
	}
	if len(src) > 0 {
		lines = append(lines, fmt.Sprintf("  source args: %s", strings.Join(src, " ")))
	}
	if f.DestArgs.Has(DestArgDriverArgs) {
		lines = append(lines, "  dest args: --to-arg=$NAME=$VALUE")
	}
	if f.DestIfExists != 0 {
		lines = append(lines, fmt.Sprintf("  --if-exists: %s", f.DestIfExists))
	}
	if f.Unstable {
		lines = append(lines, "  UNSTABLE: requires --enable-unstable")
	}
	return strings.Join(lines, "\n")
}
