package redshift

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

func TestFormatType(t *testing.T) {
	for ty, want := range map[schema.DataType]string{
		&schema.BoolType{}:                     "BOOLEAN",
		&schema.Int16Type{}:                    "SMALLINT",
		&schema.Int64Type{}:                    "BIGINT",
		&schema.TextType{}:                     "VARCHAR(MAX)",
		&schema.JSONType{}:                     "VARCHAR(MAX)",
		&schema.UUIDType{}:                     "VARCHAR(36)",
		&schema.TimestampWithTimeZoneType{}:    "TIMESTAMPTZ",
		&schema.TimestampWithoutTimeZoneType{}: "TIMESTAMP",
	} {
		got, err := FormatType(ty)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := FormatType(&schema.ArrayType{Elem: &schema.TextType{}})
	require.ErrorContains(t, err, "cannot store")
	_, err = FormatType(&schema.GeoJSONType{Srid: schema.WGS84})
	require.ErrorContains(t, err, "cannot store")
}

func TestParseType(t *testing.T) {
	ty, err := ParseType("character varying(256)")
	require.NoError(t, err)
	require.IsType(t, &schema.TextType{}, ty)

	ty, err = ParseType("timestamptz")
	require.NoError(t, err)
	require.IsType(t, &schema.TimestampWithTimeZoneType{}, ty)

	_, err = ParseType("hllsketch")
	require.Error(t, err)
}

func TestCreateTableSQL(t *testing.T) {
	sql, err := CreateTableSQL("t", []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "name", IsNullable: true, DataType: &schema.TextType{}},
	})
	require.NoError(t, err)
	require.Contains(t, sql, `"id" BIGINT NOT NULL`)
	require.Contains(t, sql, `"name" VARCHAR(MAX)`)
}

func TestCopyAndUnloadSQL(t *testing.T) {
	copySQL := CopySQL("t", "s3://bucket/prefix/", "IAM_ROLE 'arn:aws:iam::123:role/load'")
	require.Contains(t, copySQL, `COPY "t" FROM 's3://bucket/prefix/'`)
	require.Contains(t, copySQL, "IGNOREHEADER 1")

	unloadSQL := UnloadSQL("SELECT * FROM t", "s3://bucket/prefix/", "IAM_ROLE 'arn:aws:iam::123:role/load'")
	require.Contains(t, unloadSQL, "UNLOAD")
	require.Contains(t, unloadSQL, "FORMAT CSV HEADER")
}
