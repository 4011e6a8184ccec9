package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDataTypeSerializationExamples(t *testing.T) {
	// The serialization format is external; make sure we don't change
	// it accidentally.
	for _, tt := range []struct {
		dt   DataType
		want string
	}{
		{&ArrayType{Elem: &TextType{}}, `{"array":"text"}`},
		{&BoolType{}, `"bool"`},
		{&DateType{}, `"date"`},
		{&DecimalType{}, `"decimal"`},
		{&Float32Type{}, `"float32"`},
		{&Float64Type{}, `"float64"`},
		{&GeoJSONType{Srid: WGS84}, `{"geo_json":4326}`},
		{&Int16Type{}, `"int16"`},
		{&Int32Type{}, `"int32"`},
		{&Int64Type{}, `"int64"`},
		{&JSONType{}, `"json"`},
		{&NamedType{Name: "color"}, `{"named":"color"}`},
		{&OneOfType{Values: []string{"red", "green"}}, `{"one_of":["red","green"]}`},
		{
			&StructType{Fields: []*StructField{{Name: "x", IsNullable: false, DataType: &Float32Type{}}}},
			`{"struct":[{"name":"x","is_nullable":false,"data_type":"float32"}]}`,
		},
		{&TextType{}, `"text"`},
		{&TimestampWithoutTimeZoneType{}, `"timestamp_without_time_zone"`},
		{&TimestampWithTimeZoneType{}, `"timestamp_with_time_zone"`},
		{&UUIDType{}, `"uuid"`},
	} {
		v, err := marshalDataType(tt.dt)
		require.NoError(t, err)
		out, err := json.Marshal(v)
		require.NoError(t, err)
		require.Equal(t, tt.want, string(out))

		parsed, err := unmarshalDataType(out)
		require.NoError(t, err)
		require.True(t, TypesEqual(tt.dt, parsed), "round trip of %s", tt.want)
	}
}

func TestParseLegacySingleTableSchema(t *testing.T) {
	doc := `{
  "name": "example",
  "columns": [
    { "name": "a", "is_nullable": true, "data_type": "text" },
    { "name": "b", "is_nullable": false, "data_type": "int32" },
    { "name": "g", "is_nullable": true, "data_type": { "struct": [
      { "name": "x", "data_type": "float64", "is_nullable": false },
      { "name": "y", "data_type": "float64", "is_nullable": false }
    ] } }
  ]
}`
	s, err := ParseJSON([]byte(doc))
	require.NoError(t, err)
	require.Len(t, s.Tables, 1)
	require.Equal(t, "example", s.Tables[0].Name)
	require.Len(t, s.Tables[0].Columns, 3)
	require.IsType(t, &StructType{}, s.Tables[0].Columns[2].DataType)
}

func TestSchemaJSONRoundTrip(t *testing.T) {
	s := &Schema{
		NamedDataTypes: []*NamedDataType{
			{Name: "color", DataType: &OneOfType{Values: []string{"red", "green", "blue"}}},
			{Name: "point", DataType: &StructType{Fields: []*StructField{
				{Name: "x", DataType: &Float64Type{}},
				{Name: "y", DataType: &Float64Type{}},
			}}},
		},
		Tables: []*Table{{
			Name: "t",
			Columns: []*Column{
				{Name: "id", DataType: &UUIDType{}},
				{Name: "c", IsNullable: true, DataType: &NamedType{Name: "color"}},
				{Name: "loc", IsNullable: true, DataType: &GeoJSONType{Srid: WGS84}, Comment: "WGS84"},
				{Name: "tags", IsNullable: true, DataType: &ArrayType{Elem: &TextType{}}},
			},
		}},
	}
	out1, err := s.ToJSON()
	require.NoError(t, err)
	parsed, err := ParseJSON(out1)
	require.NoError(t, err)
	out2, err := parsed.ToJSON()
	require.NoError(t, err)
	require.Equal(t, string(out1), string(out2))
}

func TestValidateRejectsUnresolvedNamed(t *testing.T) {
	s := FromSingleTable(&Table{
		Name:    "t",
		Columns: []*Column{{Name: "c", DataType: &NamedType{Name: "missing"}}},
	})
	err := s.Validate()
	require.ErrorContains(t, err, `unknown named type "missing"`)
}

func TestValidateRejectsDuplicateStructFields(t *testing.T) {
	s := FromSingleTable(&Table{
		Name: "t",
		Columns: []*Column{{Name: "c", DataType: &StructType{Fields: []*StructField{
			{Name: "x", DataType: &TextType{}},
			{Name: "x", DataType: &TextType{}},
		}}}},
	})
	require.ErrorContains(t, s.Validate(), `duplicate struct field "x"`)
}

func TestCoercibleTo(t *testing.T) {
	s := &Schema{
		NamedDataTypes: []*NamedDataType{
			{Name: "small", DataType: &Int16Type{}},
		},
		Tables: []*Table{{Name: "t"}},
	}
	require.True(t, CoercibleTo(s, &Int16Type{}, &Int32Type{}))
	require.True(t, CoercibleTo(s, &Int16Type{}, &Int64Type{}))
	require.True(t, CoercibleTo(s, &Int32Type{}, &Int64Type{}))
	require.True(t, CoercibleTo(s, &Float32Type{}, &Float64Type{}))
	require.False(t, CoercibleTo(s, &Int64Type{}, &Int32Type{}))
	require.False(t, CoercibleTo(s, &Float64Type{}, &Float32Type{}))
	require.True(t, CoercibleTo(s, &NamedType{Name: "small"}, &Int64Type{}))
	require.True(t, CoercibleTo(s, &ArrayType{Elem: &TextType{}}, &ArrayType{Elem: &TextType{}}))
	require.False(t, CoercibleTo(s, &ArrayType{Elem: &Int16Type{}}, &ArrayType{Elem: &Int32Type{}}))
}

func TestSerializesAsJSONForCSV(t *testing.T) {
	require.True(t, SerializesAsJSONForCSV(&ArrayType{Elem: &TextType{}}))
	require.True(t, SerializesAsJSONForCSV(&JSONType{}))
	require.True(t, SerializesAsJSONForCSV(&GeoJSONType{Srid: WGS84}))
	require.True(t, SerializesAsJSONForCSV(&StructType{}))
	require.False(t, SerializesAsJSONForCSV(&TextType{}))
	require.False(t, SerializesAsJSONForCSV(&UUIDType{}))
}
