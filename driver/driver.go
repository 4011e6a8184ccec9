// Package driver defines the capability contract every backend driver
// implements: locator parsing, schema introspection, local and remote
// data movement, and feature declaration. A global registry maps each
// URL scheme to exactly one driver, in the same way the engine's
// consumers register per-scheme openers.
package driver

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/schema"
)

type (
	// A Locator is a URL-shaped value selecting one driver and one
	// resource within it. Locators are immutable once parsed and own no
	// resources; drivers create transient clients on demand.
	//
	// String must redact any secrets (passwords) the locator carries.
	Locator interface {
		fmt.Stringer

		// Features declares which operations and arguments this driver
		// supports. The engine never exercises an undeclared capability.
		Features() Features

		// Schema introspects the backend, returning nil when this
		// locator has no schema of its own.
		Schema(ctx context.Context, src *VerifiedSourceArgs) (*schema.Schema, error)

		// WriteSchema creates or replaces the backend object that would
		// match the given schema.
		WriteSchema(ctx context.Context, s *schema.Schema, ifExists IfExists, dst *VerifiedDestArgs) error

		// Count returns the number of rows at this locator.
		Count(ctx context.Context, shared *VerifiedSharedArgs, src *VerifiedSourceArgs) (int, error)

		// LocalData produces this locator's data as a stream of CSV
		// streams, or (nil, nil) when the source cannot materialize
		// local data.
		LocalData(ctx context.Context, shared *VerifiedSharedArgs, src *VerifiedSourceArgs) (csvdata.Streams, error)

		// WriteLocalData consumes a stream of CSV streams, yielding one
		// WriteResult per written chunk as it completes.
		WriteLocalData(ctx context.Context, data csvdata.Streams, shared *VerifiedSharedArgs, dst *VerifiedDestArgs) (<-chan WriteResult, error)

		// SupportsWriteRemoteData reports whether data can be copied
		// directly from source without passing through the local
		// machine.
		SupportsWriteRemoteData(source Locator) bool

		// WriteRemoteData performs the remote copy, returning the
		// locators of the objects written.
		WriteRemoteData(ctx context.Context, source Locator, shared *VerifiedSharedArgs, src *VerifiedSourceArgs, dst *VerifiedDestArgs) ([]string, error)
	}

	// A WriteResult reports completion of one written chunk: the
	// locator of the chunk (where meaningful) or the error that
	// stopped it.
	WriteResult struct {
		Locator string
		Err     error
	}

	// ParseFunc parses one locator string for a registered scheme.
	ParseFunc func(s string) (Locator, error)

	// DriverInfo describes one registered driver for the features
	// listing.
	DriverInfo struct {
		Scheme   string
		Features Features
	}

	registered struct {
		scheme   string
		features Features
		parse    ParseFunc
	}
)

var (
	driversMu sync.RWMutex
	drivers   = map[string]registered{}

	schemeRe = regexp.MustCompile(`^[A-Za-z][-A-Za-z0-9+.]*:`)
)

// Register registers a locator parser and its capability set for the
// given scheme (without the trailing colon). It panics if the scheme is
// already taken.
func Register(scheme string, features Features, parse ParseFunc) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if parse == nil {
		panic("driver: Register parse func is nil")
	}
	if _, dup := drivers[scheme]; dup {
		panic("driver: Register called twice for " + scheme)
	}
	drivers[scheme] = registered{scheme: scheme, features: features, parse: parse}
}

// Parse parses a locator string by dispatching on its scheme prefix.
func Parse(s string) (Locator, error) {
	m := schemeRe.FindString(s)
	if m == "" {
		return nil, fmt.Errorf("driver: cannot parse locator %q", s)
	}
	scheme := m[:len(m)-1]
	driversMu.RLock()
	d, ok := drivers[scheme]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("driver: unknown locator scheme in %q", s)
	}
	loc, err := d.parse(s)
	if err != nil {
		return nil, fmt.Errorf("driver: parsing %q: %w", s, err)
	}
	return loc, nil
}

// Drivers returns every registered driver, sorted by scheme, for the
// features listing.
func Drivers() []DriverInfo {
	driversMu.RLock()
	defer driversMu.RUnlock()
	out := make([]DriverInfo, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, DriverInfo{Scheme: d.scheme, Features: d.features})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

// Base provides "not supported" defaults for the optional Locator
// methods, so that schema-only and data-only drivers implement just the
// operations their Features declare. The embedding driver sets Name to
// its scheme for error messages.
type Base struct {
	Name string
}

func (b Base) Schema(context.Context, *VerifiedSourceArgs) (*schema.Schema, error) {
	return nil, nil
}

func (b Base) WriteSchema(context.Context, *schema.Schema, IfExists, *VerifiedDestArgs) error {
	return fmt.Errorf("%s: cannot write schema to this locator", b.Name)
}

func (b Base) Count(context.Context, *VerifiedSharedArgs, *VerifiedSourceArgs) (int, error) {
	return 0, fmt.Errorf("%s: cannot count rows at this locator", b.Name)
}

func (b Base) LocalData(context.Context, *VerifiedSharedArgs, *VerifiedSourceArgs) (csvdata.Streams, error) {
	return nil, nil
}

func (b Base) WriteLocalData(context.Context, csvdata.Streams, *VerifiedSharedArgs, *VerifiedDestArgs) (<-chan WriteResult, error) {
	return nil, fmt.Errorf("%s: cannot write data to this locator", b.Name)
}

func (b Base) SupportsWriteRemoteData(Locator) bool { return false }

func (b Base) WriteRemoteData(context.Context, Locator, *VerifiedSharedArgs, *VerifiedSourceArgs, *VerifiedDestArgs) ([]string, error) {
	return nil, fmt.Errorf("%s: cannot write remote data to this locator", b.Name)
}
