package trino

import (
	"context"
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/clouds/aws"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
	"github.com/dbcrossbar/dbcrossbar/schema"
	trinosql "github.com/dbcrossbar/dbcrossbar/sql/trino"
)

// The S3 fast paths work through Hive CSV wrapper tables: an external
// table whose location is the S3 prefix and whose columns are all
// VARCHAR (the only type Hive's CSV serde supports). Reads cast out of
// the wrapper, writes cast into it. Hive folds identifiers to lower
// case, so mixed-case column names are rejected up front rather than
// silently corrupted.

// UnloadTo exports this table to S3 as interchange CSV, satisfying the
// s3 driver's remote-copy contract.
func (l *Locator) UnloadTo(ctx context.Context, _ *aws.S3Client, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dest aws.S3URL) ([]string, error) {
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return nil, err
	}
	var opts driverOptions
	if err := src.DriverArgs().Decode(&opts); err != nil {
		return nil, err
	}
	opts.fillDefaults()
	client := l.client()
	connector, err := l.connectorType(ctx, client)
	if err != nil {
		return nil, err
	}

	wrapper, err := l.createWrapper(ctx, client, opts, table, dest)
	if err != nil {
		return nil, err
	}
	defer l.dropWrapper(ctx, client, wrapper)

	// Cast every column to VARCHAR on the way into the wrapper, after
	// applying the connector's load expressions to recover portable
	// values from storage.
	loadExprs, err := trinosql.SelectExprs(s, table.Columns, connector)
	if err != nil {
		return nil, err
	}
	casts := make([]string, len(loadExprs))
	for i, col := range table.Columns {
		expr := stripAlias(loadExprs[i])
		casts[i], err = varcharExpr(s, col.DataType, expr)
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", col.Name, err)
		}
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s SELECT %s FROM %s",
		wrapper.Quoted(), strings.Join(casts, ", "), l.table.Quoted())
	if src.WhereClause() != "" {
		insertSQL += fmt.Sprintf(" WHERE (%s)", src.WhereClause())
	}
	if err := client.Exec(ctx, insertSQL); err != nil {
		return nil, fmt.Errorf("trino: exporting %s to %s: %w", l.table, dest, err)
	}
	return []string{dest.String()}, nil
}

// SupportsWriteRemoteData implements driver.Locator: s3:// sources
// load through a wrapper table.
func (l *Locator) SupportsWriteRemoteData(source driver.Locator) bool {
	_, ok := source.(interface{ URL() aws.S3URL })
	return ok
}

// WriteRemoteData implements driver.Locator: read interchange CSV
// straight from S3 through a wrapper table.
func (l *Locator) WriteRemoteData(ctx context.Context, source driver.Locator, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dst *driver.VerifiedDestArgs) ([]string, error) {
	s3src, ok := source.(interface{ URL() aws.S3URL })
	if !ok {
		return nil, fmt.Errorf("trino: cannot copy remote data from %s", source)
	}
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return nil, err
	}
	var opts driverOptions
	if err := dst.DriverArgs().Decode(&opts); err != nil {
		return nil, err
	}
	opts.fillDefaults()
	client := l.client()
	connector, err := l.connectorType(ctx, client)
	if err != nil {
		return nil, err
	}
	ifExists := dst.IfExists()
	if ifExists.UpsertOn() != nil {
		return nil, fmt.Errorf("trino: the S3 fast path does not support upsert; use a local copy")
	}
	if err := l.createDest(ctx, client, connector, s, table, ifExists); err != nil {
		return nil, err
	}

	wrapper, err := l.createWrapper(ctx, client, opts, table, s3src.URL())
	if err != nil {
		return nil, err
	}
	defer l.dropWrapper(ctx, client, wrapper)

	// Cast each VARCHAR wrapper column back to its portable type, then
	// apply the connector's store expressions.
	valueExprs := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		expr, err := fromVarcharExpr(s, col.DataType, trinosql.QuoteIdent(strings.ToLower(col.Name)))
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", col.Name, err)
		}
		valueExprs[i] = expr
	}
	storeExprs, err := trinosql.StoreExprs(s, table.Columns, valueExprs, connector)
	if err != nil {
		return nil, err
	}
	colNames := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		colNames[i] = trinosql.QuoteIdent(c.Name)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		l.table.Quoted(), strings.Join(colNames, ", "), strings.Join(storeExprs, ", "), wrapper.Quoted())
	if err := client.Exec(ctx, insertSQL); err != nil {
		return nil, fmt.Errorf("trino: loading %s from %s: %w", l.table, s3src.URL(), err)
	}
	return []string{l.String()}, nil
}

// createWrapper creates the external Hive CSV table over an S3 prefix.
func (l *Locator) createWrapper(ctx context.Context, client *Client, opts driverOptions, table *schema.Table, location aws.S3URL) (trinosql.TableName, error) {
	for _, c := range table.Columns {
		if err := trinosql.Hive.CheckColumnName(c.Name); err != nil {
			return trinosql.TableName{}, err
		}
	}
	wrapper := trinosql.TableName{
		Catalog: opts.WrapperCatalog,
		Schema:  opts.WrapperSchema,
		Table:   fmt.Sprintf("%s_wrapper_%s", l.table.Table, shortID()),
	}
	columns := make([]trinosql.Column, len(table.Columns))
	for i, c := range table.Columns {
		columns[i] = trinosql.Column{Name: c.Name, Type: trinosql.VarcharType()}
	}
	ct := &trinosql.CreateTable{
		Name:    wrapper,
		Columns: columns,
		With: map[string]string{
			"external_location":      location.String(),
			"format":                 "CSV",
			"skip_header_line_count": "1",
		},
	}
	if err := client.Exec(ctx, ct.String()); err != nil {
		return trinosql.TableName{}, fmt.Errorf("trino: creating wrapper table %s: %w", wrapper, err)
	}
	return wrapper, nil
}

// dropWrapper removes the wrapper table. Best-effort: the wrapper is
// external, so a leak never touches the data, but leaving it around is
// still a defect.
func (l *Locator) dropWrapper(ctx context.Context, client *Client, wrapper trinosql.TableName) {
	if err := client.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+wrapper.Quoted()); err != nil {
		logctx.From(ctx).Warn("failed to drop wrapper table", "table", wrapper.String(), "error", err)
	}
}

// varcharExpr renders a portable value expression as VARCHAR for
// storage in the wrapper.
func varcharExpr(s *schema.Schema, dt schema.DataType, expr string) (string, error) {
	switch dt := dt.(type) {
	case *schema.ArrayType, *schema.StructType:
		return fmt.Sprintf("JSON_FORMAT(CAST(%s AS JSON))", expr), nil
	case *schema.BoolType:
		// Interchange CSV spells booleans t/f.
		return fmt.Sprintf("IF(%s, 't', 'f')", expr), nil
	case *schema.GeoJSONType:
		return fmt.Sprintf("to_geojson_geometry(%s)", expr), nil
	case *schema.JSONType:
		return fmt.Sprintf("JSON_FORMAT(%s)", expr), nil
	case *schema.NamedType:
		def, err := s.ResolveNamed(dt.Name)
		if err != nil {
			return "", err
		}
		return varcharExpr(s, def.DataType, expr)
	default:
		return fmt.Sprintf("CAST(%s AS VARCHAR)", expr), nil
	}
}

// fromVarcharExpr parses a VARCHAR wrapper column back into a portable
// value.
func fromVarcharExpr(s *schema.Schema, dt schema.DataType, expr string) (string, error) {
	switch dt := dt.(type) {
	case *schema.ArrayType, *schema.StructType:
		native, err := trinosql.FromPortable(dt, s)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(JSON_PARSE(%s) AS %s)", expr, native), nil
	case *schema.BoolType:
		return fmt.Sprintf("(%s IN ('t', 'true', '1'))", expr), nil
	case *schema.GeoJSONType:
		return fmt.Sprintf("from_geojson_geometry(%s)", expr), nil
	case *schema.JSONType:
		return fmt.Sprintf("JSON_PARSE(%s)", expr), nil
	case *schema.NamedType:
		def, err := s.ResolveNamed(dt.Name)
		if err != nil {
			return "", err
		}
		return fromVarcharExpr(s, def.DataType, expr)
	case *schema.TextType, *schema.OneOfType:
		return expr, nil
	default:
		native, err := trinosql.FromPortable(dt, s)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("CAST(%s AS %s)", expr, native), nil
	}
}

// stripAlias removes a trailing "AS name" from a load expression so it
// can be nested inside another expression.
func stripAlias(expr string) string {
	if i := strings.LastIndex(expr, " AS "); i >= 0 {
		return expr[:i]
	}
	return expr
}
