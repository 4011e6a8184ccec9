// Package engine orchestrates the cp, count and schema verbs: argument
// verification against both drivers' capability sets, remote-copy
// negotiation, and the local streaming pipeline.
package engine

import (
	"context"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/driver/driverargs"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
	"github.com/dbcrossbar/dbcrossbar/schema"
)

// CopyOptions hold everything the cp verb needs.
type CopyOptions struct {
	Source string
	Dest   string
	// SchemaLocator is the --schema locator, or "" to introspect the
	// source (and then the destination).
	SchemaLocator string
	IfExists      driver.IfExists
	// Temporaries are --temporary scratch locators, with the config
	// file's entries appended.
	Temporaries []string
	FromArgs    []string
	ToArgs      []string
	Where       string
	MaxStreams  int
	FromFormat  string
	ToFormat    string
	// EnableUnstable permits unstable drivers.
	EnableUnstable bool
}

// Copy moves a table from Source to Dest, returning the locators of
// everything written.
func Copy(ctx context.Context, opts CopyOptions) ([]string, error) {
	source, dest, err := parsePair(opts.Source, opts.Dest, opts.EnableUnstable)
	if err != nil {
		return nil, err
	}
	s, err := loadSchema(ctx, opts.SchemaLocator, source, opts.EnableUnstable)
	if err != nil {
		return nil, err
	}

	fromArgs, err := driverargs.Parse(opts.FromArgs)
	if err != nil {
		return nil, err
	}
	toArgs, err := driverargs.Parse(opts.ToArgs)
	if err != nil {
		return nil, err
	}

	// Verify every requested capability against both drivers before
	// any data flows.
	shared, err := driver.SharedArgs{
		Schema:           s,
		TemporaryStorage: driver.TemporaryStorage(opts.Temporaries),
		MaxStreams:       opts.MaxStreams,
	}.Verify(dest.Features())
	if err != nil {
		return nil, err
	}
	src, err := driver.SourceArgs{
		DriverArgs:  fromArgs,
		WhereClause: opts.Where,
		Format:      opts.FromFormat,
	}.Verify(source.Features())
	if err != nil {
		return nil, fmt.Errorf("verifying source arguments for %s: %w", source, err)
	}
	dst, err := driver.DestArgs{
		DriverArgs: toArgs,
		IfExists:   opts.IfExists,
		Format:     opts.ToFormat,
	}.Verify(dest.Features())
	if err != nil {
		return nil, fmt.Errorf("verifying destination arguments for %s: %w", dest, err)
	}

	log := logctx.From(ctx)
	if dest.SupportsWriteRemoteData(source) {
		log.Debug("using remote copy", "source", source.String(), "dest", dest.String())
		written, err := dest.WriteRemoteData(ctx, source, shared, src, dst)
		if err != nil {
			return nil, fmt.Errorf("copying rows from %s to %s: %w", source, dest, err)
		}
		return written, nil
	}

	// The generic local pipeline. Cancelling the context tears down
	// the source when the destination fails.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	streams, err := source.LocalData(ctx, shared, src)
	if err != nil {
		return nil, fmt.Errorf("reading data from %s: %w", source, err)
	}
	if streams == nil {
		return nil, fmt.Errorf("%s cannot be used as a data source", source)
	}
	if size := dest.Features().PreferredChunkSize; size > 0 {
		streams = csvdata.Rechunk(ctx, size, streams)
	}
	results, err := dest.WriteLocalData(ctx, streams, shared, dst)
	if err != nil {
		return nil, fmt.Errorf("writing data to %s: %w", dest, err)
	}
	var written []string
	for r := range results {
		if r.Err != nil {
			cancel()
			// Drain so the producer can shut down.
			for range results {
			}
			return nil, fmt.Errorf("copying rows from %s to %s: %w", source, dest, r.Err)
		}
		if r.Locator != "" {
			written = append(written, r.Locator)
		}
	}
	return written, nil
}

// CountOptions hold everything the count verb needs.
type CountOptions struct {
	Source         string
	SchemaLocator  string
	FromArgs       []string
	Where          string
	EnableUnstable bool
}

// Count returns the number of rows at a locator.
func Count(ctx context.Context, opts CountOptions) (int, error) {
	source, err := parseOne(opts.Source, opts.EnableUnstable)
	if err != nil {
		return 0, err
	}
	if !source.Features().Locator.Has(driver.FeatureCount) {
		return 0, fmt.Errorf("%s does not support counting", source)
	}
	s, err := loadSchema(ctx, opts.SchemaLocator, source, opts.EnableUnstable)
	if err != nil {
		return 0, err
	}
	fromArgs, err := driverargs.Parse(opts.FromArgs)
	if err != nil {
		return 0, err
	}
	shared, err := driver.SharedArgs{Schema: s}.Verify(source.Features())
	if err != nil {
		return 0, err
	}
	src, err := driver.SourceArgs{DriverArgs: fromArgs, WhereClause: opts.Where}.Verify(source.Features())
	if err != nil {
		return 0, err
	}
	count, err := source.Count(ctx, shared, src)
	if err != nil {
		return 0, fmt.Errorf("counting rows at %s: %w", source, err)
	}
	return count, nil
}

// SchemaConv reads a schema from one locator and writes it to another.
func SchemaConv(ctx context.Context, sourceStr, destStr string, ifExists driver.IfExists, enableUnstable bool) error {
	source, dest, err := parsePair(sourceStr, destStr, enableUnstable)
	if err != nil {
		return err
	}
	if !source.Features().Locator.Has(driver.FeatureSchema) {
		return fmt.Errorf("%s does not support reading schemas", source)
	}
	if !dest.Features().Locator.Has(driver.FeatureWriteSchema) {
		return fmt.Errorf("%s does not support writing schemas", dest)
	}
	if err := ifExists.Verify(dest.Features().WriteSchemaIfExists); err != nil {
		return err
	}
	s, err := source.Schema(ctx, driver.SourceArgsForTemporary())
	if err != nil {
		return fmt.Errorf("reading schema from %s: %w", source, err)
	}
	if s == nil {
		return fmt.Errorf("%s has no schema", source)
	}
	if err := dest.WriteSchema(ctx, s, ifExists, driver.DestArgsForTemporary()); err != nil {
		return fmt.Errorf("writing schema to %s: %w", dest, err)
	}
	return nil
}

func parsePair(sourceStr, destStr string, enableUnstable bool) (driver.Locator, driver.Locator, error) {
	source, err := parseOne(sourceStr, enableUnstable)
	if err != nil {
		return nil, nil, err
	}
	dest, err := parseOne(destStr, enableUnstable)
	if err != nil {
		return nil, nil, err
	}
	return source, dest, nil
}

func parseOne(s string, enableUnstable bool) (driver.Locator, error) {
	loc, err := driver.Parse(s)
	if err != nil {
		return nil, err
	}
	if loc.Features().Unstable && !enableUnstable {
		return nil, fmt.Errorf("%s is unstable; pass --enable-unstable to use it", loc)
	}
	return loc, nil
}

// loadSchema resolves the portable schema for a transfer: the explicit
// --schema locator if given, otherwise the source's own schema.
func loadSchema(ctx context.Context, schemaLocator string, source driver.Locator, enableUnstable bool) (*schema.Schema, error) {
	if schemaLocator != "" {
		loc, err := parseOne(schemaLocator, enableUnstable)
		if err != nil {
			return nil, err
		}
		s, err := loc.Schema(ctx, driver.SourceArgsForTemporary())
		if err != nil {
			return nil, fmt.Errorf("reading schema from %s: %w", loc, err)
		}
		if s == nil {
			return nil, fmt.Errorf("%s has no schema", loc)
		}
		return s, nil
	}
	s, err := source.Schema(ctx, driver.SourceArgsForTemporary())
	if err != nil {
		return nil, fmt.Errorf("reading schema from %s: %w", source, err)
	}
	// A nil schema is permitted here: drivers that don't need one (CSV
	// to CSV copies) proceed without it, and drivers that do will
	// complain with a pointed error.
	return s, nil
}
