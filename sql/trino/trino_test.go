package trino

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

func emptySchema() *schema.Schema {
	return &schema.Schema{Tables: []*schema.Table{{Name: "t"}}}
}

func TestDataTypePrinting(t *testing.T) {
	for _, tt := range []struct {
		ty   DataType
		want string
	}{
		{DataType{Kind: Boolean}, "BOOLEAN"},
		{DataType{Kind: SmallInt}, "SMALLINT"},
		{BigQuerySizedDecimal(), "DECIMAL(38, 9)"},
		{VarcharType(), "VARCHAR"},
		{DataType{Kind: Varchar, Length: 20}, "VARCHAR(20)"},
		{TimestampType(), "TIMESTAMP(3)"},
		{TimestampWithTimeZoneType(), "TIMESTAMP(3) WITH TIME ZONE"},
		{ArrayOf(VarcharType()), "ARRAY(VARCHAR)"},
		{DataType{Kind: Row, Fields: []Field{
			{Name: "x", Type: DataType{Kind: Double}},
			{Type: DataType{Kind: BigInt}},
		}}, `ROW("x" DOUBLE, BIGINT)`},
		{DataType{Kind: Uuid}, "UUID"},
		{DataType{Kind: SphericalGeography}, "SphericalGeography"},
	} {
		require.Equal(t, tt.want, tt.ty.String())
	}
}

func TestParseDataTypeRoundTrip(t *testing.T) {
	for _, s := range []string{
		"BOOLEAN", "TINYINT", "SMALLINT", "INT", "BIGINT", "REAL", "DOUBLE",
		"DECIMAL(38, 9)", "VARCHAR", "VARCHAR(20)", "VARBINARY", "JSON", "DATE",
		"TIME(6)", "TIMESTAMP(3)", "TIMESTAMP(6) WITH TIME ZONE",
		"ARRAY(VARCHAR)", "ARRAY(ARRAY(BIGINT))",
		`ROW("x" DOUBLE, "y" DOUBLE)`, "UUID", "SphericalGeography",
	} {
		ty, err := ParseDataType(s)
		require.NoError(t, err, "type %q", s)
		require.Equal(t, s, ty.String(), "type %q", s)
	}
}

func TestPortableRoundTrip(t *testing.T) {
	s := emptySchema()
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
		&schema.StructType{Fields: []*schema.StructField{
			{Name: "x", IsNullable: true, DataType: &schema.Float64Type{}},
		}},
	} {
		native, err := FromPortable(ty, s)
		require.NoError(t, err)
		back, err := native.ToPortable()
		require.NoError(t, err)
		require.True(t, schema.TypesEqual(ty, back), "round trip of %T via %s", ty, native)
	}
}

func TestIcebergDowngrades(t *testing.T) {
	tr := Iceberg.StorageTransformFor(DataType{Kind: SmallInt})
	require.Equal(t, SmallerIntAsInt, tr.Kind)
	require.Equal(t, "INT", tr.StorageTypeFor(DataType{Kind: SmallInt}).String())

	tr = Iceberg.StorageTransformFor(TimestampType())
	require.Equal(t, TimestampWithPrecision, tr.Kind)
	require.Equal(t, "TIMESTAMP(6)", tr.StorageTypeFor(TimestampType()).String())

	tr = Iceberg.StorageTransformFor(DataType{Kind: Json})
	require.Equal(t, JsonAsVarchar, tr.Kind)

	// Iceberg keeps UUID.
	require.Equal(t, Identity, Iceberg.StorageTransformFor(DataType{Kind: Uuid}).Kind)
}

func TestHiveDowngrades(t *testing.T) {
	require.Equal(t, TimeAsVarchar, Hive.StorageTransformFor(DataType{Kind: Time, Precision: 3}).Kind)
	require.Equal(t, UuidAsVarchar, Hive.StorageTransformFor(DataType{Kind: Uuid}).Kind)
	tr := Hive.StorageTransformFor(TimestampWithTimeZoneType())
	require.Equal(t, TimestampWithTimeZoneAsTimestamp, tr.Kind)
	require.Equal(t, "TIMESTAMP(3)", tr.StorageTypeFor(TimestampWithTimeZoneType()).String())
}

func TestDowngradesRecurseThroughArrayAndRow(t *testing.T) {
	arr := ArrayOf(DataType{Kind: Json})
	tr := Iceberg.StorageTransformFor(arr)
	require.Equal(t, ArrayTransform, tr.Kind)
	require.Equal(t, "ARRAY(VARCHAR)", tr.StorageTypeFor(arr).String())

	row := DataType{Kind: Row, Fields: []Field{
		{Name: "j", Type: DataType{Kind: Json}},
		{Name: "n", Type: DataType{Kind: BigInt}},
	}}
	tr = Hive.StorageTransformFor(row)
	require.Equal(t, RowTransform, tr.Kind)
	require.Equal(t, `ROW("j" VARCHAR, "n" BIGINT)`, tr.StorageTypeFor(row).String())

	// All-identity recursive transforms collapse to Identity.
	simple := ArrayOf(DataType{Kind: BigInt})
	require.Equal(t, Identity, Iceberg.StorageTransformFor(simple).Kind)
}

func TestMemorySupportsAnonymousRowFields(t *testing.T) {
	row := DataType{Kind: Row, Fields: []Field{{Type: DataType{Kind: BigInt}}}}
	require.Equal(t, Identity, Memory.StorageTransformFor(row).Kind)

	tr := Hive.StorageTransformFor(row)
	require.Equal(t, RowTransform, tr.Kind)
	require.Equal(t, `ROW("f1" BIGINT)`, tr.StorageTypeFor(row).String())
}

func TestLoadAndStoreExprs(t *testing.T) {
	// Identity columns pass through untouched.
	tr := Iceberg.StorageTransformFor(DataType{Kind: BigInt})
	require.Equal(t, `"n"`, tr.LoadExpr(`"n"`, DataType{Kind: BigInt}))

	// JSON stored as VARCHAR round trips through JSON_FORMAT/JSON_PARSE.
	tr = Iceberg.StorageTransformFor(DataType{Kind: Json})
	require.Equal(t, `JSON_FORMAT("j")`, tr.StoreExpr(`"j"`, DataType{Kind: Json}))
	require.Equal(t, `JSON_PARSE("j")`, tr.LoadExpr(`"j"`, DataType{Kind: Json}))

	// Arrays transform element-wise.
	arr := ArrayOf(DataType{Kind: Json})
	tr = Iceberg.StorageTransformFor(arr)
	require.Equal(t, `transform("a", e -> JSON_FORMAT(e))`, tr.StoreExpr(`"a"`, arr))
	require.Equal(t, `transform("a", e -> JSON_PARSE(e))`, tr.LoadExpr(`"a"`, arr))
}

func TestCheckColumnName(t *testing.T) {
	require.NoError(t, Hive.CheckColumnName("lower_case"))
	require.ErrorContains(t, Hive.CheckColumnName("MixedCase"), "folds identifiers to lower case")
	require.NoError(t, Memory.CheckColumnName("MixedCase"))
}

func TestCreateTablePrintAndParse(t *testing.T) {
	s := emptySchema()
	ct, err := NewCreateTable(TableName{Catalog: "memory", Schema: "default", Table: "t"}, s,
		[]*schema.Column{
			{Name: "id", DataType: &schema.Int64Type{}},
			{Name: "name", IsNullable: true, DataType: &schema.TextType{}},
		}, Memory)
	require.NoError(t, err)
	printed := ct.String()
	require.Contains(t, printed, `CREATE TABLE "memory"."default"."t"`)
	require.Contains(t, printed, `"id" BIGINT NOT NULL`)

	parsed, err := ParseCreateTable(printed)
	require.NoError(t, err)
	require.Equal(t, ct.Name, parsed.Name)
	require.Equal(t, ct.Columns, parsed.Columns)
}

func TestCreateTableWithProperties(t *testing.T) {
	ct := &CreateTable{
		Name: TableName{Catalog: "hive", Schema: "default", Table: "wrapper"},
		Columns: []Column{
			{Name: "id", Type: VarcharType()},
		},
		With: map[string]string{
			"external_location": "s3://bucket/prefix/",
			"format":            "CSV",
		},
	}
	printed := ct.String()
	require.Contains(t, printed, `external_location = 's3://bucket/prefix/'`)
	require.Contains(t, printed, `format = 'CSV'`)

	parsed, err := ParseCreateTable(printed)
	require.NoError(t, err)
	require.Equal(t, ct.With, parsed.With)
}

func TestHiveSkipsNotNullConstraint(t *testing.T) {
	s := emptySchema()
	ct, err := NewCreateTable(TableName{Catalog: "hive", Schema: "default", Table: "t"}, s,
		[]*schema.Column{{Name: "id", DataType: &schema.Int64Type{}}}, Hive)
	require.NoError(t, err)
	require.False(t, ct.Columns[0].NotNull)
}
