// Package postgres owns the PostgreSQL native type representation: the
// mapping between portable types and PostgreSQL column types, and the
// printing and parsing of CREATE TABLE SQL. It is shared by the
// postgres data driver and the postgres-sql schema locator.
package postgres

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

// A ScalarType is a non-array PostgreSQL column type.
type ScalarType int

// The scalar types we know how to move. Deliberately simplified;
// unsimplify by adding detail as drivers need it.
const (
	Boolean ScalarType = iota
	Date
	Numeric
	Real
	DoublePrecision
	Geometry
	Smallint
	Int
	Bigint
	Json
	Jsonb
	Text
	TimestampWithoutTimeZone
	TimestampWithTimeZone
	Uuid
)

// A DataType is a PostgreSQL column type: a scalar, or an array of a
// scalar with one or more dimensions. PostgreSQL represents nested
// portable arrays as multi-dimensional arrays.
type DataType struct {
	// DimensionCount is 0 for scalars.
	DimensionCount int
	Scalar         ScalarType
	// Srid is set when Scalar is Geometry.
	Srid schema.Srid
}

// FromPortable maps a portable type to its PostgreSQL representation.
func FromPortable(ty schema.DataType) (DataType, error) {
	dims := 0
	for {
		arr, ok := ty.(*schema.ArrayType)
		if !ok {
			break
		}
		dims++
		ty = arr.Elem
	}
	scalar, srid, err := scalarFromPortable(ty)
	if err != nil {
		return DataType{}, err
	}
	return DataType{DimensionCount: dims, Scalar: scalar, Srid: srid}, nil
}

func scalarFromPortable(ty schema.DataType) (ScalarType, schema.Srid, error) {
	switch ty := ty.(type) {
	case *schema.BoolType:
		return Boolean, 0, nil
	case *schema.DateType:
		return Date, 0, nil
	case *schema.DecimalType:
		return Numeric, 0, nil
	case *schema.Float32Type:
		return Real, 0, nil
	case *schema.Float64Type:
		return DoublePrecision, 0, nil
	case *schema.GeoJSONType:
		return Geometry, ty.Srid, nil
	case *schema.Int16Type:
		return Smallint, 0, nil
	case *schema.Int32Type:
		return Int, 0, nil
	case *schema.Int64Type:
		return Bigint, 0, nil
	case *schema.JSONType:
		return Jsonb, 0, nil
	case *schema.OneOfType:
		// Enums travel as their text values.
		return Text, 0, nil
	case *schema.TextType:
		return Text, 0, nil
	case *schema.TimestampWithoutTimeZoneType:
		return TimestampWithoutTimeZone, 0, nil
	case *schema.TimestampWithTimeZoneType:
		return TimestampWithTimeZone, 0, nil
	case *schema.UUIDType:
		return Uuid, 0, nil
	default:
		return 0, 0, fmt.Errorf("postgres: no native representation for portable type %T", ty)
	}
}

// ToPortable maps this PostgreSQL type back to the portable model.
func (dt DataType) ToPortable() (schema.DataType, error) {
	var built schema.DataType
	switch dt.Scalar {
	case Boolean:
		built = &schema.BoolType{}
	case Date:
		built = &schema.DateType{}
	case Numeric:
		built = &schema.DecimalType{}
	case Real:
		built = &schema.Float32Type{}
	case DoublePrecision:
		built = &schema.Float64Type{}
	case Geometry:
		built = &schema.GeoJSONType{Srid: dt.Srid}
	case Smallint:
		built = &schema.Int16Type{}
	case Int:
		built = &schema.Int32Type{}
	case Bigint:
		built = &schema.Int64Type{}
	case Json, Jsonb:
		built = &schema.JSONType{}
	case Text:
		built = &schema.TextType{}
	case TimestampWithoutTimeZone:
		built = &schema.TimestampWithoutTimeZoneType{}
	case TimestampWithTimeZone:
		built = &schema.TimestampWithTimeZoneType{}
	case Uuid:
		built = &schema.UUIDType{}
	default:
		return nil, fmt.Errorf("postgres: unknown scalar type %d", dt.Scalar)
	}
	for i := 0; i < dt.DimensionCount; i++ {
		built = &schema.ArrayType{Elem: built}
	}
	return built, nil
}

// String prints the type in CREATE TABLE syntax.
func (dt DataType) String() string {
	var s string
	switch dt.Scalar {
	case Boolean:
		s = "boolean"
	case Date:
		s = "date"
	case Numeric:
		s = "numeric"
	case Real:
		s = "real"
	case DoublePrecision:
		s = "double precision"
	case Geometry:
		s = fmt.Sprintf("public.geometry(Geometry, %s)", dt.Srid)
	case Smallint:
		s = "smallint"
	case Int:
		s = "int"
	case Bigint:
		s = "bigint"
	case Json:
		s = "json"
	case Jsonb:
		s = "jsonb"
	case Text:
		s = "text"
	case TimestampWithoutTimeZone:
		s = "timestamp without time zone"
	case TimestampWithTimeZone:
		s = "timestamp with time zone"
	case Uuid:
		s = "uuid"
	}
	return s + strings.Repeat("[]", dt.DimensionCount)
}

// ParseType parses a PostgreSQL type expression, as found either in a
// CREATE TABLE statement or in catalog introspection output.
func ParseType(raw string) (DataType, error) {
	s := strings.TrimSpace(raw)
	dims := 0
	for strings.HasSuffix(s, "[]") {
		dims++
		s = strings.TrimSpace(strings.TrimSuffix(s, "[]"))
	}
	lower := strings.ToLower(s)
	dt := DataType{DimensionCount: dims}
	switch {
	case lower == "boolean" || lower == "bool":
		dt.Scalar = Boolean
	case lower == "date":
		dt.Scalar = Date
	case lower == "numeric" || lower == "decimal" || strings.HasPrefix(lower, "numeric(") || strings.HasPrefix(lower, "decimal("):
		dt.Scalar = Numeric
	case lower == "real" || lower == "float4":
		dt.Scalar = Real
	case lower == "double precision" || lower == "float8":
		dt.Scalar = DoublePrecision
	case strings.HasPrefix(lower, "geometry") || strings.HasPrefix(lower, "public.geometry"):
		srid, err := parseGeometrySrid(s)
		if err != nil {
			return DataType{}, err
		}
		dt.Scalar, dt.Srid = Geometry, srid
	case lower == "smallint" || lower == "int2":
		dt.Scalar = Smallint
	case lower == "int" || lower == "integer" || lower == "int4":
		dt.Scalar = Int
	case lower == "bigint" || lower == "int8":
		dt.Scalar = Bigint
	case lower == "json":
		dt.Scalar = Json
	case lower == "jsonb":
		dt.Scalar = Jsonb
	case lower == "text" || lower == "character varying" || lower == "varchar" ||
		strings.HasPrefix(lower, "character varying(") || strings.HasPrefix(lower, "varchar("):
		dt.Scalar = Text
	case lower == "timestamp" || lower == "timestamp without time zone":
		dt.Scalar = TimestampWithoutTimeZone
	case lower == "timestamptz" || lower == "timestamp with time zone":
		dt.Scalar = TimestampWithTimeZone
	case lower == "uuid":
		dt.Scalar = Uuid
	default:
		return DataType{}, fmt.Errorf("postgres: unknown type %q", raw)
	}
	return dt, nil
}

// parseGeometrySrid extracts the SRID from "geometry(Geometry, 4326)".
// A bare "geometry" defaults to WGS84.
func parseGeometrySrid(s string) (schema.Srid, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return schema.WGS84, nil
	}
	if !strings.HasSuffix(s, ")") {
		return 0, fmt.Errorf("postgres: malformed geometry type %q", s)
	}
	args := strings.Split(s[open+1:len(s)-1], ",")
	if len(args) == 1 {
		return schema.WGS84, nil
	}
	if len(args) != 2 {
		return 0, fmt.Errorf("postgres: malformed geometry type %q", s)
	}
	var srid uint32
	if _, err := fmt.Sscanf(strings.TrimSpace(args[1]), "%d", &srid); err != nil {
		return 0, fmt.Errorf("postgres: malformed SRID in %q", s)
	}
	return schema.Srid(srid), nil
}
