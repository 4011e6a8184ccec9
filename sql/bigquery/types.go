package bigquery

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

type (
	// A DataType is a BigQuery column type: an array of a non-array
	// type, or a non-array type. BigQuery forbids ARRAY<ARRAY<...>>.
	DataType struct {
		Array    bool
		NonArray NonArrayType
	}

	// A NonArrayType is any BigQuery type except ARRAY.
	NonArrayType struct {
		Kind NonArrayKind
		// Fields is set when Kind is Struct.
		Fields []StructField
		// Stringified is set when Kind is Stringified: the portable
		// type whose values are stored as STRING (JSON documents,
		// UUIDs, and every complex type in CSV-load mode).
		Stringified schema.DataType
	}

	// A StructField is one field of a STRUCT type.
	StructField struct {
		// Name is nil for anonymous fields, which can occur in types
		// returned by queries.
		Name *ColumnName
		Type DataType
	}

	// NonArrayKind enumerates the non-array BigQuery types we use.
	NonArrayKind int

	// Usage says how a type will be used, because BigQuery cannot load
	// every type directly from CSV.
	Usage int
)

// The non-array kinds.
const (
	Bool NonArrayKind = iota
	Bytes
	Date
	Datetime
	Float64
	Geography
	Int64
	Numeric
	String
	Time
	Timestamp
	Struct
	// Stringified marks a portable type stored as STRING.
	Stringified
)

// Usage modes.
const (
	// UsageFinalTable is the destination table, which may hold nested
	// ARRAY and STRUCT values.
	UsageFinalTable Usage = iota
	// UsageCsvLoad is a temp table loaded straight from CSV, where
	// complex values arrive as JSON documents in STRING columns.
	UsageCsvLoad
)

// FromPortable maps a portable type to its BigQuery representation for
// the given usage.
func FromPortable(ty schema.DataType, s *schema.Schema, usage Usage) (DataType, error) {
	if arr, ok := ty.(*schema.ArrayType); ok {
		if usage == UsageCsvLoad {
			// CSV cannot carry repeated values; stage as a JSON string.
			return stringified(ty), nil
		}
		if _, nested := arr.Elem.(*schema.ArrayType); nested {
			return DataType{}, fmt.Errorf("bigquery: BigQuery does not support nested arrays")
		}
		elem, err := nonArrayFromPortable(arr.Elem, s, usage)
		if err != nil {
			return DataType{}, err
		}
		return DataType{Array: true, NonArray: elem}, nil
	}
	na, err := nonArrayFromPortable(ty, s, usage)
	if err != nil {
		return DataType{}, err
	}
	return DataType{NonArray: na}, nil
}

func stringified(ty schema.DataType) DataType {
	return DataType{NonArray: NonArrayType{Kind: Stringified, Stringified: ty}}
}

func nonArrayFromPortable(ty schema.DataType, s *schema.Schema, usage Usage) (NonArrayType, error) {
	switch ty := ty.(type) {
	case *schema.ArrayType:
		return NonArrayType{}, fmt.Errorf("bigquery: BigQuery does not support nested arrays")
	case *schema.BoolType:
		return NonArrayType{Kind: Bool}, nil
	case *schema.DateType:
		return NonArrayType{Kind: Date}, nil
	case *schema.DecimalType:
		return NonArrayType{Kind: Numeric}, nil
	case *schema.Float32Type, *schema.Float64Type:
		return NonArrayType{Kind: Float64}, nil
	case *schema.GeoJSONType:
		if usage == UsageCsvLoad {
			return NonArrayType{Kind: Stringified, Stringified: ty}, nil
		}
		if ty.Srid != schema.WGS84 {
			return NonArrayType{}, fmt.Errorf("bigquery: GEOGRAPHY requires SRID %d, got %s", schema.WGS84, ty.Srid)
		}
		return NonArrayType{Kind: Geography}, nil
	case *schema.Int16Type, *schema.Int32Type, *schema.Int64Type:
		return NonArrayType{Kind: Int64}, nil
	case *schema.JSONType:
		// Both usages store JSON documents as STRING.
		return NonArrayType{Kind: Stringified, Stringified: ty}, nil
	case *schema.NamedType:
		def, err := s.ResolveNamed(ty.Name)
		if err != nil {
			return NonArrayType{}, err
		}
		return nonArrayFromPortable(def.DataType, s, usage)
	case *schema.OneOfType:
		return NonArrayType{Kind: String}, nil
	case *schema.StructType:
		if usage == UsageCsvLoad {
			return NonArrayType{Kind: Stringified, Stringified: ty}, nil
		}
		fields := make([]StructField, 0, len(ty.Fields))
		for _, f := range ty.Fields {
			name, err := NewColumnName(f.Name)
			if err != nil {
				return NonArrayType{}, err
			}
			fty, err := FromPortable(f.DataType, s, usage)
			if err != nil {
				return NonArrayType{}, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields = append(fields, StructField{Name: &name, Type: fty})
		}
		return NonArrayType{Kind: Struct, Fields: fields}, nil
	case *schema.TextType:
		return NonArrayType{Kind: String}, nil
	case *schema.TimestampWithoutTimeZoneType:
		return NonArrayType{Kind: Datetime}, nil
	case *schema.TimestampWithTimeZoneType:
		return NonArrayType{Kind: Timestamp}, nil
	case *schema.UUIDType:
		return NonArrayType{Kind: Stringified, Stringified: ty}, nil
	default:
		return NonArrayType{}, fmt.Errorf("bigquery: no native representation for portable type %T", ty)
	}
}

// ToPortable maps this BigQuery type back to the portable model.
func (dt DataType) ToPortable() (schema.DataType, error) {
	inner, err := dt.NonArray.toPortable()
	if err != nil {
		return nil, err
	}
	if dt.Array {
		return &schema.ArrayType{Elem: inner}, nil
	}
	return inner, nil
}

func (na NonArrayType) toPortable() (schema.DataType, error) {
	switch na.Kind {
	case Bool:
		return &schema.BoolType{}, nil
	case Date:
		return &schema.DateType{}, nil
	case Datetime:
		return &schema.TimestampWithoutTimeZoneType{}, nil
	case Float64:
		return &schema.Float64Type{}, nil
	case Geography:
		return &schema.GeoJSONType{Srid: schema.WGS84}, nil
	case Int64:
		return &schema.Int64Type{}, nil
	case Numeric:
		return &schema.DecimalType{}, nil
	case String:
		return &schema.TextType{}, nil
	case Timestamp:
		return &schema.TimestampWithTimeZoneType{}, nil
	case Struct:
		fields := make([]*schema.StructField, 0, len(na.Fields))
		for i, f := range na.Fields {
			if f.Name == nil {
				return nil, fmt.Errorf("bigquery: cannot convert anonymous struct field %d to portable form", i)
			}
			fty, err := f.Type.ToPortable()
			if err != nil {
				return nil, err
			}
			fields = append(fields, &schema.StructField{Name: f.Name.String(), IsNullable: true, DataType: fty})
		}
		return &schema.StructType{Fields: fields}, nil
	case Stringified:
		return na.Stringified, nil
	default:
		return nil, fmt.Errorf("bigquery: cannot convert %s to a portable type", na)
	}
}

// String prints the type in BigQuery standard SQL syntax.
func (dt DataType) String() string {
	if dt.Array {
		return "ARRAY<" + dt.NonArray.String() + ">"
	}
	return dt.NonArray.String()
}

func (na NonArrayType) String() string {
	switch na.Kind {
	case Bool:
		return "BOOL"
	case Bytes:
		return "BYTES"
	case Date:
		return "DATE"
	case Datetime:
		return "DATETIME"
	case Float64:
		return "FLOAT64"
	case Geography:
		return "GEOGRAPHY"
	case Int64:
		return "INT64"
	case Numeric:
		return "NUMERIC"
	case String, Stringified:
		return "STRING"
	case Time:
		return "TIME"
	case Timestamp:
		return "TIMESTAMP"
	case Struct:
		var b strings.Builder
		b.WriteString("STRUCT<")
		for i, f := range na.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			if f.Name != nil {
				b.WriteString(f.Name.Quoted())
				b.WriteString(" ")
			}
			b.WriteString(f.Type.String())
		}
		b.WriteString(">")
		return b.String()
	default:
		return fmt.Sprintf("UNKNOWN(%d)", na.Kind)
	}
}
