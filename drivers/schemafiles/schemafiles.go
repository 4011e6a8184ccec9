// Package schemafiles implements the schema-only locators: files that
// hold a table schema in some format but carry no row data. These are
// used as --schema arguments and as the endpoints of `schema conv`.
//
// Formats: dbcrossbar-schema: (the canonical JSON form), postgres-sql:
// (a PostgreSQL CREATE TABLE), bigquery-schema: (the BigQuery JSON
// schema format), trino-sql: (a Trino CREATE TABLE), and the unstable
// dbcrossbar-ts: (a TypeScript-subset type definition).
package schemafiles

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/schema"
	bqsql "github.com/dbcrossbar/dbcrossbar/sql/bigquery"
	pgsql "github.com/dbcrossbar/dbcrossbar/sql/postgres"
	trinosql "github.com/dbcrossbar/dbcrossbar/sql/trino"
)

// The schema locator schemes.
const (
	SchemeDbcrossbar = "dbcrossbar-schema"
	SchemePostgres   = "postgres-sql"
	SchemeBigQuery   = "bigquery-schema"
	SchemeTrino      = "trino-sql"
	SchemeTypeScript = "dbcrossbar-ts"
)

func init() {
	for _, scheme := range []string{SchemeDbcrossbar, SchemePostgres, SchemeBigQuery, SchemeTrino, SchemeTypeScript} {
		scheme := scheme
		driver.Register(scheme, (&Locator{scheme: scheme}).Features(), func(s string) (driver.Locator, error) { return Parse(scheme, s) })
	}
}

// A Locator is a schema file plus its format (taken from the scheme).
type Locator struct {
	driver.Base
	scheme string
	path   string
	// fragment selects a type within the file (dbcrossbar-ts only).
	fragment string
}

// Parse parses a schema-file locator.
func Parse(scheme, s string) (*Locator, error) {
	rest, ok := strings.CutPrefix(s, scheme+":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("%s: expected %s:PATH, got %q", scheme, scheme, s)
	}
	l := &Locator{Base: driver.Base{Name: scheme}, scheme: scheme, path: rest}
	if scheme == SchemeTypeScript {
		path, fragment, ok := strings.Cut(rest, "#")
		if !ok || fragment == "" {
			return nil, fmt.Errorf("%s: expected %s:FILE#TypeName, got %q", scheme, scheme, s)
		}
		l.path, l.fragment = path, fragment
	}
	return l, nil
}

func (l *Locator) String() string {
	if l.fragment != "" {
		return l.scheme + ":" + l.path + "#" + l.fragment
	}
	return l.scheme + ":" + l.path
}

// Features implements driver.Locator.
func (l *Locator) Features() driver.Features {
	f := driver.Features{
		Locator:             driver.FeatureSchema | driver.FeatureWriteSchema,
		WriteSchemaIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureOverwrite,
	}
	if l.scheme == SchemeTypeScript {
		// Read-only, and gated behind --enable-unstable.
		f.Locator = driver.FeatureSchema
		f.Unstable = true
	}
	return f
}

// Schema implements driver.Locator.
func (l *Locator) Schema(ctx context.Context, _ *driver.VerifiedSourceArgs) (*schema.Schema, error) {
	data, err := l.read()
	if err != nil {
		return nil, err
	}
	switch l.scheme {
	case SchemeDbcrossbar:
		return schema.ParseJSON(data)
	case SchemePostgres:
		ct, err := pgsql.ParseCreateTable(string(data))
		if err != nil {
			return nil, err
		}
		t, err := ct.ToTable()
		if err != nil {
			return nil, err
		}
		return schema.FromSingleTable(t), nil
	case SchemeBigQuery:
		ts, err := bqsql.ParseSchemaJSON(data)
		if err != nil {
			return nil, err
		}
		t, err := ts.ToTable(tableNameFromPath(l.path))
		if err != nil {
			return nil, err
		}
		return schema.FromSingleTable(t), nil
	case SchemeTrino:
		ct, err := trinosql.ParseCreateTable(string(data))
		if err != nil {
			return nil, err
		}
		t, err := ct.ToTable()
		if err != nil {
			return nil, err
		}
		return schema.FromSingleTable(t), nil
	case SchemeTypeScript:
		return parseTypeScript(data, l.fragment)
	default:
		return nil, fmt.Errorf("%s: cannot read schemas", l.scheme)
	}
}

// WriteSchema implements driver.Locator.
func (l *Locator) WriteSchema(ctx context.Context, s *schema.Schema, ifExists driver.IfExists, _ *driver.VerifiedDestArgs) error {
	table, err := s.MainTable()
	if err != nil {
		return err
	}
	var data []byte
	switch l.scheme {
	case SchemeDbcrossbar:
		if data, err = s.ToJSON(); err != nil {
			return err
		}
	case SchemePostgres:
		name, err := pgsql.ParseTableName(table.Name)
		if err != nil {
			name = pgsql.TableName{Table: table.Name}
		}
		ct, err := pgsql.NewCreateTable(name, table.Columns)
		if err != nil {
			return err
		}
		data = []byte(ct.String())
	case SchemeBigQuery:
		ts, err := bqsql.SchemaForTable(s, table, bqsql.UsageFinalTable)
		if err != nil {
			return err
		}
		if data, err = ts.ToJSON(); err != nil {
			return err
		}
	case SchemeTrino:
		name, err := trinosql.ParseTableName(table.Name)
		if err != nil {
			name = trinosql.TableName{Catalog: "memory", Schema: "default", Table: table.Name}
		}
		ct, err := trinosql.NewCreateTable(name, s, table.Columns, trinosql.Memory)
		if err != nil {
			return err
		}
		data = []byte(ct.String())
	default:
		return fmt.Errorf("%s: cannot write schemas", l.scheme)
	}
	return l.write(data, ifExists)
}

func (l *Locator) read() ([]byte, error) {
	if l.path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", l.scheme, l.path, err)
	}
	return data, nil
}

func (l *Locator) write(data []byte, ifExists driver.IfExists) error {
	if l.path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if _, err := os.Stat(l.path); err == nil && !ifExists.IsOverwrite() {
		return fmt.Errorf("%s: file %s already exists (pass --if-exists=overwrite to replace it)", l.scheme, l.path)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("%s: writing %s: %w", l.scheme, l.path, err)
	}
	return nil
}

func tableNameFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "-" {
		return "table"
	}
	return base
}
