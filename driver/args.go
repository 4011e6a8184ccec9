package driver

import (
	"fmt"

	"github.com/dbcrossbar/dbcrossbar/driver/driverargs"
	"github.com/dbcrossbar/dbcrossbar/schema"
)

// Argument structures come in unverified and verified forms. The
// unverified forms are built by the CLI; Verify checks them against a
// driver's Features and returns the verified form, which is the only
// form driver methods accept. A capability the driver does not
// advertise fails here, before any data flows.

type (
	// SharedArgs are used by both the data source and destination.
	SharedArgs struct {
		// Schema is the portable schema describing the table being
		// transferred.
		Schema *schema.Schema
		// TemporaryStorage lists scratch locations usable during the
		// transfer.
		TemporaryStorage TemporaryStorage
		// MaxStreams bounds how many streams are processed in
		// parallel.
		MaxStreams int
	}

	// VerifiedSharedArgs is SharedArgs after verification.
	VerifiedSharedArgs struct {
		schema           *schema.Schema
		temporaryStorage TemporaryStorage
		maxStreams       int
	}

	// SourceArgs carry data-source arguments.
	SourceArgs struct {
		// DriverArgs holds --from-arg key/value pairs.
		DriverArgs driverargs.Args
		// WhereClause is an optional SQL filter.
		WhereClause string
		// Format overrides the source wire format (--from-format).
		Format string
	}

	// VerifiedSourceArgs is SourceArgs after verification.
	VerifiedSourceArgs struct {
		driverArgs  driverargs.Args
		whereClause string
		format      string
	}

	// DestArgs carry data-destination arguments.
	DestArgs struct {
		// DriverArgs holds --to-arg key/value pairs.
		DriverArgs driverargs.Args
		// IfExists says what to do when the destination exists.
		IfExists IfExists
		// Format overrides the destination wire format (--to-format).
		Format string
	}

	// VerifiedDestArgs is DestArgs after verification.
	VerifiedDestArgs struct {
		driverArgs driverargs.Args
		ifExists   IfExists
		format     string
	}
)

// DefaultMaxStreams bounds parallel stream processing when --max-streams
// is not given. Kept small to limit memory and file descriptors.
const DefaultMaxStreams = 4

// Verify checks the arguments against a driver's feature set.
func (a SharedArgs) Verify(Features) (*VerifiedSharedArgs, error) {
	maxStreams := a.MaxStreams
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	return &VerifiedSharedArgs{
		schema:           a.Schema,
		temporaryStorage: a.TemporaryStorage,
		maxStreams:       maxStreams,
	}, nil
}

// Schema returns the portable schema for this transfer.
func (a *VerifiedSharedArgs) Schema() *schema.Schema { return a.schema }

// TemporaryStorage returns the scratch locations for this transfer.
func (a *VerifiedSharedArgs) TemporaryStorage() TemporaryStorage { return a.temporaryStorage }

// MaxStreams returns the stream parallelism bound.
func (a *VerifiedSharedArgs) MaxStreams() int { return a.maxStreams }

// Verify checks the arguments against a driver's feature set.
func (a SourceArgs) Verify(features Features) (*VerifiedSourceArgs, error) {
	if !features.SourceArgs.Has(SourceArgDriverArgs) && !a.DriverArgs.IsEmpty() {
		return nil, fmt.Errorf("driver: this data source does not support --from-arg")
	}
	if !features.SourceArgs.Has(SourceArgWhereClause) && a.WhereClause != "" {
		return nil, fmt.Errorf("driver: this data source does not support --where")
	}
	return &VerifiedSourceArgs{
		driverArgs:  a.DriverArgs,
		whereClause: a.WhereClause,
		format:      a.Format,
	}, nil
}

// SourceArgsForTemporary returns source arguments suitable for reading
// back a temporary staging location.
func SourceArgsForTemporary() *VerifiedSourceArgs { return &VerifiedSourceArgs{} }

// DriverArgs returns the --from-arg values.
func (a *VerifiedSourceArgs) DriverArgs() driverargs.Args { return a.driverArgs }

// WhereClause returns the --where filter, or "".
func (a *VerifiedSourceArgs) WhereClause() string { return a.whereClause }

// Format returns the --from-format override, or "".
func (a *VerifiedSourceArgs) Format() string { return a.format }

// Verify checks the arguments against a driver's feature set.
func (a DestArgs) Verify(features Features) (*VerifiedDestArgs, error) {
	if !features.DestArgs.Has(DestArgDriverArgs) && !a.DriverArgs.IsEmpty() {
		return nil, fmt.Errorf("driver: this data destination does not support --to-arg")
	}
	if err := a.IfExists.Verify(features.DestIfExists); err != nil {
		return nil, err
	}
	return &VerifiedDestArgs{
		driverArgs: a.DriverArgs,
		ifExists:   a.IfExists,
		format:     a.Format,
	}, nil
}

// DestArgsForTemporary returns destination arguments suitable for a
// temporary staging location.
func DestArgsForTemporary() *VerifiedDestArgs {
	return &VerifiedDestArgs{ifExists: IfExistsOverwrite}
}

// DriverArgs returns the --to-arg values.
func (a *VerifiedDestArgs) DriverArgs() driverargs.Args { return a.driverArgs }

// IfExists returns the destination conflict policy.
func (a *VerifiedDestArgs) IfExists() IfExists { return a.ifExists }

// Format returns the --to-format override, or "".
func (a *VerifiedDestArgs) Format() string { return a.format }
