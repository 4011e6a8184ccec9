package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

func TestPortableRoundTrip(t *testing.T) {
	for _, ty := range []schema.DataType{
		&schema.BoolType{},
		&schema.DateType{},
		&schema.DecimalType{},
		&schema.Float32Type{},
		&schema.Float64Type{},
		&schema.GeoJSONType{Srid: schema.WGS84},
		&schema.Int16Type{},
		&schema.Int32Type{},
		&schema.Int64Type{},
		&schema.JSONType{},
		&schema.TextType{},
		&schema.TimestampWithoutTimeZoneType{},
		&schema.TimestampWithTimeZoneType{},
		&schema.UUIDType{},
		&schema.ArrayType{Elem: &schema.TextType{}},
		&schema.ArrayType{Elem: &schema.ArrayType{Elem: &schema.Int32Type{}}},
	} {
		pg, err := FromPortable(ty)
		require.NoError(t, err)
		back, err := pg.ToPortable()
		require.NoError(t, err)
		require.True(t, schema.TypesEqual(ty, back), "round trip of %T via %s", ty, pg)
	}
}

func TestNestedArraysUseDimensionCount(t *testing.T) {
	pg, err := FromPortable(&schema.ArrayType{Elem: &schema.ArrayType{Elem: &schema.Int32Type{}}})
	require.NoError(t, err)
	require.Equal(t, DataType{DimensionCount: 2, Scalar: Int}, pg)
	require.Equal(t, "int[][]", pg.String())
}

func TestParseTypeAliases(t *testing.T) {
	for raw, want := range map[string]DataType{
		"boolean":                         {Scalar: Boolean},
		"bool":                            {Scalar: Boolean},
		"int2":                            {Scalar: Smallint},
		"integer":                         {Scalar: Int},
		"int8":                            {Scalar: Bigint},
		"float4":                          {Scalar: Real},
		"double precision":                {Scalar: DoublePrecision},
		"numeric(10,2)":                   {Scalar: Numeric},
		"character varying(255)":          {Scalar: Text},
		"varchar":                         {Scalar: Text},
		"timestamp":                       {Scalar: TimestampWithoutTimeZone},
		"timestamptz":                     {Scalar: TimestampWithTimeZone},
		"timestamp with time zone":        {Scalar: TimestampWithTimeZone},
		"jsonb":                           {Scalar: Jsonb},
		"json":                            {Scalar: Json},
		"uuid":                            {Scalar: Uuid},
		"text[]":                          {DimensionCount: 1, Scalar: Text},
		"int[][]":                         {DimensionCount: 2, Scalar: Int},
		"public.geometry(Geometry, 4326)": {Scalar: Geometry, Srid: schema.WGS84},
		"geometry(Geometry, 3857)":        {Scalar: Geometry, Srid: 3857},
	} {
		got, err := ParseType(raw)
		require.NoError(t, err, "type %q", raw)
		require.Equal(t, want, got, "type %q", raw)
	}
	_, err := ParseType("circle")
	require.ErrorContains(t, err, `unknown type "circle"`)
}

const manyTypesSQL = `CREATE TABLE "many_types" (
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
`

func TestParseCreateTableRoundTrip(t *testing.T) {
	ct, err := ParseCreateTable(manyTypesSQL)
	require.NoError(t, err)
	require.Equal(t, "many_types", ct.Name.Table)
	require.Len(t, ct.Columns, 15)
	require.False(t, ct.Columns[1].IsNullable)
	require.True(t, ct.Columns[0].IsNullable)

	// Printing and re-parsing must produce an equal declaration.
	printed := ct.String()
	reparsed, err := ParseCreateTable(printed)
	require.NoError(t, err)
	require.Equal(t, ct, reparsed)
}

func TestParseCreateTableQualifiedAndUnquoted(t *testing.T) {
	ct, err := ParseCreateTable(`CREATE TABLE IF NOT EXISTS public.T1 (
  ID uuid PRIMARY KEY,
  "MixedCase" text,
  n numeric(10, 2) NOT NULL
);`)
	require.NoError(t, err)
	require.True(t, ct.IfNotExists)
	require.Equal(t, TableName{Schema: "public", Table: "t1"}, ct.Name)
	// Unquoted identifiers fold to lower case; quoted ones keep case.
	require.Equal(t, "id", ct.Columns[0].Name)
	require.False(t, ct.Columns[0].IsNullable)
	require.Equal(t, "MixedCase", ct.Columns[1].Name)
	require.Equal(t, Numeric, ct.Columns[2].Type.Scalar)
}

func TestCreateTableSQLGeneration(t *testing.T) {
	ct, err := NewCreateTable(TableName{Schema: "public", Table: "t"}, []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "loc", IsNullable: true, DataType: &schema.GeoJSONType{Srid: schema.WGS84}},
		{Name: "tags", IsNullable: true, DataType: &schema.ArrayType{Elem: &schema.TextType{}}},
	})
	require.NoError(t, err)

	require.Equal(t,
		`SELECT "id",ST_AsGeoJSON("loc") AS "loc",array_to_json("tags") AS "tags" FROM "public"."t"`,
		ct.ExportSelectSQL(""))
	require.Contains(t, ct.ExportSQL("id > 10"), `WHERE (id > 10)`)
	require.Equal(t,
		`COPY "public"."t" ("id","loc","tags") FROM STDIN WITH CSV HEADER`,
		ct.CopyInSQL())
}

func TestUpsertSQL(t *testing.T) {
	ct, err := NewCreateTable(TableName{Table: "dest"}, []*schema.Column{
		{Name: "key1", DataType: &schema.Int32Type{}},
		{Name: "key2", DataType: &schema.TextType{}},
		{Name: "value", IsNullable: true, DataType: &schema.TextType{}},
	})
	require.NoError(t, err)
	require.NoError(t, ct.CheckUpsertKeys([]string{"key1", "key2"}))
	require.ErrorContains(t, ct.CheckUpsertKeys([]string{"nope"}), `"nope" does not appear`)

	stmts := ct.UpsertSQL(TableName{Table: "dest_temp_x"}, []string{"key1", "key2"})
	require.Len(t, stmts, 2)
	require.Equal(t,
		`DELETE FROM "dest" USING "dest_temp_x" WHERE "dest"."key1" = "dest_temp_x"."key1" AND "dest"."key2" = "dest_temp_x"."key2"`,
		stmts[0])
	require.Equal(t,
		`INSERT INTO "dest" ("key1","key2","value") SELECT "key1","key2","value" FROM "dest_temp_x"`,
		stmts[1])
}

func TestUpsertRejectsNullableKey(t *testing.T) {
	ct, err := NewCreateTable(TableName{Table: "dest"}, []*schema.Column{
		{Name: "k", IsNullable: true, DataType: &schema.Int32Type{}},
	})
	require.NoError(t, err)
	require.ErrorContains(t, ct.CheckUpsertKeys([]string{"k"}), "must be NOT NULL")
}
