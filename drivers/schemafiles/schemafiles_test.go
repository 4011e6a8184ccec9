package schemafiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/schema"
)

func TestParseLocators(t *testing.T) {
	l, err := Parse(SchemeDbcrossbar, "dbcrossbar-schema:schema.json")
	require.NoError(t, err)
	require.Equal(t, "dbcrossbar-schema:schema.json", l.String())

	l, err = Parse(SchemeTypeScript, "dbcrossbar-ts:types.ts#User")
	require.NoError(t, err)
	require.Equal(t, "dbcrossbar-ts:types.ts#User", l.String())
	require.True(t, l.Features().Unstable)

	_, err = Parse(SchemeTypeScript, "dbcrossbar-ts:types.ts")
	require.ErrorContains(t, err, "FILE#TypeName")
}

// Scenario: parse a postgres-sql: file with every portable scalar type
// plus arrays, write it back out, and compare the round trip.
func TestPostgresSQLSchemaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.sql")
	out := filepath.Join(dir, "out.sql")
	require.NoError(t, os.WriteFile(in, []byte(`CREATE TABLE "many_types" (
    "a" boolean,
    "b" date NOT NULL,
    "c" numeric,
    "d" real,
    "e" double precision,
    "f" smallint,
    "g" int,
    "h" bigint,
    "i" jsonb,
    "j" text,
    "k" timestamp without time zone,
    "l" timestamp with time zone,
    "m" uuid,
    "n" text[],
    "o" int[]
);
`), 0o644))

	src, err := Parse(SchemePostgres, "postgres-sql:"+in)
	require.NoError(t, err)
	s1, err := src.Schema(context.Background(), driver.SourceArgsForTemporary())
	require.NoError(t, err)

	dst, err := Parse(SchemePostgres, "postgres-sql:"+out)
	require.NoError(t, err)
	require.NoError(t, dst.WriteSchema(context.Background(), s1, driver.IfExistsError, driver.DestArgsForTemporary()))

	reread, err := dst.Schema(context.Background(), driver.SourceArgsForTemporary())
	require.NoError(t, err)
	t1, err := s1.MainTable()
	require.NoError(t, err)
	t2, err := reread.MainTable()
	require.NoError(t, err)
	require.Equal(t, len(t1.Columns), len(t2.Columns))
	for i := range t1.Columns {
		require.Equal(t, t1.Columns[i].Name, t2.Columns[i].Name)
		require.Equal(t, t1.Columns[i].IsNullable, t2.Columns[i].IsNullable)
		require.True(t, schema.TypesEqual(t1.Columns[i].DataType, t2.Columns[i].DataType),
			"column %q", t1.Columns[i].Name)
	}
}

func TestDbcrossbarSchemaLocator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "name": "example",
  "columns": [
    { "name": "a", "is_nullable": true, "data_type": "text" }
  ]
}`), 0o644))

	l, err := Parse(SchemeDbcrossbar, "dbcrossbar-schema:"+path)
	require.NoError(t, err)
	s, err := l.Schema(context.Background(), driver.SourceArgsForTemporary())
	require.NoError(t, err)
	table, err := s.MainTable()
	require.NoError(t, err)
	require.Equal(t, "example", table.Name)

	// Writing refuses to clobber without overwrite.
	err = l.WriteSchema(context.Background(), s, driver.IfExistsError, driver.DestArgsForTemporary())
	require.ErrorContains(t, err, "already exists")
	require.NoError(t, l.WriteSchema(context.Background(), s, driver.IfExistsOverwrite, driver.DestArgsForTemporary()))
}

func TestBigQuerySchemaLocator(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
  {"name": "id", "type": "INT64", "mode": "REQUIRED"},
  {"name": "name", "type": "STRING", "mode": "NULLABLE"}
]`), 0o644))

	l, err := Parse(SchemeBigQuery, "bigquery-schema:"+path)
	require.NoError(t, err)
	s, err := l.Schema(context.Background(), driver.SourceArgsForTemporary())
	require.NoError(t, err)
	table, err := s.MainTable()
	require.NoError(t, err)
	require.Equal(t, "users", table.Name)
	require.False(t, table.Columns[0].IsNullable)
	require.IsType(t, &schema.Int64Type{}, table.Columns[0].DataType)
}

func TestTypeScriptSchema(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "types.ts")
	require.NoError(t, os.WriteFile(path, []byte(`
export interface Point {
  x: number;
  y: number;
}

export interface User {
  id: string;
  name: string | null;
  age?: number;
  home: Point;
  tags: string[];
}
`), 0o644))

	l, err := Parse(SchemeTypeScript, "dbcrossbar-ts:"+path+"#User")
	require.NoError(t, err)
	s, err := l.Schema(context.Background(), driver.SourceArgsForTemporary())
	require.NoError(t, err)
	table, err := s.MainTable()
	require.NoError(t, err)
	require.Len(t, table.Columns, 5)
	require.False(t, table.Columns[0].IsNullable)
	require.True(t, table.Columns[1].IsNullable)
	require.True(t, table.Columns[2].IsNullable)
	require.IsType(t, &schema.NamedType{}, table.Columns[3].DataType)
	require.IsType(t, &schema.ArrayType{}, table.Columns[4].DataType)

	def, err := s.ResolveNamed("Point")
	require.NoError(t, err)
	require.IsType(t, &schema.StructType{}, def.DataType)
}
