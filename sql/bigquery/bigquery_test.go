package bigquery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

func emptySchema() *schema.Schema {
	return &schema.Schema{Tables: []*schema.Table{{Name: "t"}}}
}

func TestColumnNameValidation(t *testing.T) {
	for _, ok := range []string{"a", "_a", "A1", "column_1"} {
		_, err := NewColumnName(ok)
		require.NoError(t, err, "name %q", ok)
	}
	for _, bad := range []string{"", "1a", "a-b", "naïve", "_TABLE_x", "_FILE_x", "_PARTITIONx"} {
		_, err := NewColumnName(bad)
		require.Error(t, err, "name %q", bad)
	}
}

func TestColumnNamesCompareCaseInsensitively(t *testing.T) {
	a, err := NewColumnName("Column1")
	require.NoError(t, err)
	b, err := NewColumnName("column1")
	require.NoError(t, err)
	require.True(t, a.Equal(b))
	require.Equal(t, "Column1", a.String())

	require.ErrorContains(t, CheckDuplicateColumnNames([]ColumnName{a, b}),
		"duplicate column names")
}

func TestFromPortableUsageModes(t *testing.T) {
	s := emptySchema()
	arr := &schema.ArrayType{Elem: &schema.Int64Type{}}

	final, err := FromPortable(arr, s, UsageFinalTable)
	require.NoError(t, err)
	require.Equal(t, "ARRAY<INT64>", final.String())

	load, err := FromPortable(arr, s, UsageCsvLoad)
	require.NoError(t, err)
	require.Equal(t, "STRING", load.String())

	_, err = FromPortable(&schema.ArrayType{Elem: arr}, s, UsageFinalTable)
	require.ErrorContains(t, err, "nested arrays")
}

func TestTypeRoundTrip(t *testing.T) {
	s := emptySchema()
	for _, ty := range []schema.DataType{
		&schema.BoolType{},
		&schema.DateType{},
		&schema.DecimalType{},
		&schema.Float64Type{},
		&schema.GeoJSONType{Srid: schema.WGS84},
		&schema.Int64Type{},
		&schema.JSONType{},
		&schema.TextType{},
		&schema.TimestampWithoutTimeZoneType{},
		&schema.TimestampWithTimeZoneType{},
		&schema.UUIDType{},
		&schema.ArrayType{Elem: &schema.TextType{}},
		&schema.StructType{Fields: []*schema.StructField{
			{Name: "x", IsNullable: true, DataType: &schema.Float64Type{}},
			{Name: "y", IsNullable: true, DataType: &schema.Float64Type{}},
		}},
	} {
		bq, err := FromPortable(ty, s, UsageFinalTable)
		require.NoError(t, err)
		back, err := bq.ToPortable()
		require.NoError(t, err)
		require.True(t, schema.TypesEqual(ty, back), "round trip of %T via %s", ty, bq)
	}

	// Documented lossy downgrades.
	bq, err := FromPortable(&schema.Int16Type{}, s, UsageFinalTable)
	require.NoError(t, err)
	back, err := bq.ToPortable()
	require.NoError(t, err)
	require.IsType(t, &schema.Int64Type{}, back)
}

func TestParseTableName(t *testing.T) {
	n, err := ParseTableName("my-project:my_dataset.my_table")
	require.NoError(t, err)
	require.Equal(t, TableName{Project: "my-project", Dataset: "my_dataset", Table: "my_table"}, n)
	require.Equal(t, "my-project:my_dataset.my_table", n.String())
	require.Equal(t, "`my-project`.`my_dataset`.`my_table`", n.Quoted())

	for _, bad := range []string{"", "proj", "proj:ds", "proj:.t", ":ds.t"} {
		_, err := ParseTableName(bad)
		require.Error(t, err, "name %q", bad)
	}
}

func TestSchemaForTableAndBack(t *testing.T) {
	s := emptySchema()
	table := &schema.Table{Name: "t", Columns: []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "name", IsNullable: true, DataType: &schema.TextType{}, Comment: "display name"},
		{Name: "tags", IsNullable: true, DataType: &schema.ArrayType{Elem: &schema.TextType{}}},
		{Name: "point", IsNullable: true, DataType: &schema.StructType{Fields: []*schema.StructField{
			{Name: "x", IsNullable: true, DataType: &schema.Float64Type{}},
			{Name: "y", IsNullable: true, DataType: &schema.Float64Type{}},
		}}},
	}}
	ts, err := SchemaForTable(s, table, UsageFinalTable)
	require.NoError(t, err)
	require.Equal(t, "REQUIRED", ts.Fields[0].Mode)
	require.Equal(t, "NULLABLE", ts.Fields[1].Mode)
	require.Equal(t, "REPEATED", ts.Fields[2].Mode)
	require.Equal(t, "RECORD", ts.Fields[3].Type)

	data, err := ts.ToJSON()
	require.NoError(t, err)
	parsed, err := ParseSchemaJSON(data)
	require.NoError(t, err)
	back, err := parsed.ToTable("t")
	require.NoError(t, err)
	require.Len(t, back.Columns, 4)
	require.False(t, back.Columns[0].IsNullable)
	require.True(t, schema.TypesEqual(table.Columns[2].DataType, back.Columns[2].DataType))
	require.True(t, schema.TypesEqual(table.Columns[3].DataType, back.Columns[3].DataType))
}

func TestImportSQLGeneratesUDFsForNestedColumns(t *testing.T) {
	s := emptySchema()
	table := &schema.Table{Name: "t", Columns: []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "tags", IsNullable: true, DataType: &schema.ArrayType{Elem: &schema.TextType{}}},
	}}
	needs, err := NeedsImportSQL(s, table)
	require.NoError(t, err)
	require.True(t, needs)

	temp := TableName{Project: "p", Dataset: "d", Table: "t_temp"}
	dest := TableName{Project: "p", Dataset: "d", Table: "t"}
	sql, err := ImportSQL(s, table, temp, dest)
	require.NoError(t, err)
	require.Contains(t, sql, "CREATE TEMP FUNCTION ImportJson_1(json_string STRING)")
	require.Contains(t, sql, "RETURNS ARRAY<STRING>")
	require.Contains(t, sql, "ImportJson_1(`tags`) AS `tags`")
	require.Contains(t, sql, "INSERT INTO `p`.`d`.`t` (`id`, `tags`)")
}

func TestSimpleTablesLoadDirectly(t *testing.T) {
	s := emptySchema()
	table := &schema.Table{Name: "t", Columns: []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "name", IsNullable: true, DataType: &schema.TextType{}},
	}}
	needs, err := NeedsImportSQL(s, table)
	require.NoError(t, err)
	require.False(t, needs)
}

func TestExportSQL(t *testing.T) {
	s := emptySchema()
	table := &schema.Table{Name: "t", Columns: []*schema.Column{
		{Name: "id", DataType: &schema.Int64Type{}},
		{Name: "tags", IsNullable: true, DataType: &schema.ArrayType{Elem: &schema.TextType{}}},
		{Name: "loc", IsNullable: true, DataType: &schema.GeoJSONType{Srid: schema.WGS84}},
	}}
	sql, err := ExportSQL(s, table, TableName{Project: "p", Dataset: "d", Table: "t"}, "id > 5")
	require.NoError(t, err)
	require.Contains(t, sql, "TO_JSON_STRING(`tags`) AS `tags`")
	require.Contains(t, sql, "ST_ASGEOJSON(`loc`) AS `loc`")
	require.Contains(t, sql, "WHERE (id > 5)")
}

func TestMergeSQL(t *testing.T) {
	table := &schema.Table{Name: "t", Columns: []*schema.Column{
		{Name: "key1", DataType: &schema.Int64Type{}},
		{Name: "key2", DataType: &schema.TextType{}},
		{Name: "value", IsNullable: true, DataType: &schema.TextType{}},
	}}
	temp := TableName{Project: "p", Dataset: "d", Table: "t_temp"}
	dest := TableName{Project: "p", Dataset: "d", Table: "t"}
	sql, err := MergeSQL(table, temp, dest, []string{"key1", "key2"})
	require.NoError(t, err)
	require.Contains(t, sql, "MERGE `p`.`d`.`t` AS D")
	require.Contains(t, sql, "ON D.`key1` = T.`key1` AND D.`key2` = T.`key2`")
	require.Contains(t, sql, "WHEN MATCHED THEN UPDATE SET D.`value` = T.`value`")
	require.Contains(t, sql, "WHEN NOT MATCHED THEN INSERT")

	_, err = MergeSQL(table, temp, dest, []string{"missing"})
	require.ErrorContains(t, err, `"missing" does not appear`)
}
