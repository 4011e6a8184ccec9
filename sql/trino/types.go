// Package trino owns the Trino native type representation: data types,
// identifier quoting, connector capabilities with their recursive type
// downgrades, and the storage transforms that rewrite values on the way
// in and out of each connector's storage.
package trino

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

type (
	// A DataType is a Trino data type.
	DataType struct {
		Kind Kind
		// Precision applies to Decimal (total digits) and to the time
		// types (fractional-second digits).
		Precision int
		// Scale applies to Decimal.
		Scale int
		// Length applies to Varchar; 0 means unbounded.
		Length int
		// Elem is the Array element type.
		Elem *DataType
		// Fields are the Row fields.
		Fields []Field
	}

	// A Field is one field of a ROW type. Name is empty for anonymous
	// fields.
	Field struct {
		Name string
		Type DataType
	}

	// Kind enumerates the Trino types we use.
	Kind int
)

// The type kinds.
const (
	Boolean Kind = iota
	TinyInt
	SmallInt
	Int
	BigInt
	Real
	Double
	Decimal
	Varchar
	Varbinary
	Json
	Date
	Time
	Timestamp
	TimestampWithTimeZone
	Array
	Row
	Uuid
	SphericalGeography
)

// DefaultTimePrecision is Trino's default fractional-second precision.
const DefaultTimePrecision = 3

// Convenience constructors for parameterized types.

// VarcharType returns an unbounded VARCHAR.
func VarcharType() DataType { return DataType{Kind: Varchar} }

// TimestampType returns TIMESTAMP(3).
func TimestampType() DataType { return DataType{Kind: Timestamp, Precision: DefaultTimePrecision} }

// TimestampWithTimeZoneType returns TIMESTAMP(3) WITH TIME ZONE.
func TimestampWithTimeZoneType() DataType {
	return DataType{Kind: TimestampWithTimeZone, Precision: DefaultTimePrecision}
}

// BigQuerySizedDecimal returns DECIMAL(38, 9), the precision BigQuery
// uses, which we adopt for portable decimals.
func BigQuerySizedDecimal() DataType { return DataType{Kind: Decimal, Precision: 38, Scale: 9} }

// ArrayOf returns ARRAY(elem).
func ArrayOf(elem DataType) DataType { return DataType{Kind: Array, Elem: &elem} }

// String prints the type in Trino SQL syntax.
func (dt DataType) String() string {
	switch dt.Kind {
	case Boolean:
		return "BOOLEAN"
	case TinyInt:
		return "TINYINT"
	case SmallInt:
		return "SMALLINT"
	case Int:
		return "INT"
	case BigInt:
		return "BIGINT"
	case Real:
		return "REAL"
	case Double:
		return "DOUBLE"
	case Decimal:
		return fmt.Sprintf("DECIMAL(%d, %d)", dt.Precision, dt.Scale)
	case Varchar:
		if dt.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", dt.Length)
		}
		return "VARCHAR"
	case Varbinary:
		return "VARBINARY"
	case Json:
		return "JSON"
	case Date:
		return "DATE"
	case Time:
		return fmt.Sprintf("TIME(%d)", dt.Precision)
	case Timestamp:
		return fmt.Sprintf("TIMESTAMP(%d)", dt.Precision)
	case TimestampWithTimeZone:
		return fmt.Sprintf("TIMESTAMP(%d) WITH TIME ZONE", dt.Precision)
	case Array:
		return fmt.Sprintf("ARRAY(%s)", dt.Elem)
	case Row:
		var b strings.Builder
		b.WriteString("ROW(")
		for i, f := range dt.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			if f.Name != "" {
				b.WriteString(QuoteIdent(f.Name))
				b.WriteString(" ")
			}
			b.WriteString(f.Type.String())
		}
		b.WriteString(")")
		return b.String()
	case Uuid:
		return "UUID"
	case SphericalGeography:
		// Capitalized differently in Trino's own output.
		return "SphericalGeography"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", dt.Kind)
	}
}

// FromPortable maps a portable type to its Trino representation.
func FromPortable(ty schema.DataType, s *schema.Schema) (DataType, error) {
	switch ty := ty.(type) {
	case *schema.ArrayType:
		elem, err := FromPortable(ty.Elem, s)
		if err != nil {
			return DataType{}, err
		}
		return ArrayOf(elem), nil
	case *schema.BoolType:
		return DataType{Kind: Boolean}, nil
	case *schema.DateType:
		return DataType{Kind: Date}, nil
	case *schema.DecimalType:
		return BigQuerySizedDecimal(), nil
	case *schema.Float32Type:
		return DataType{Kind: Real}, nil
	case *schema.Float64Type:
		return DataType{Kind: Double}, nil
	case *schema.GeoJSONType:
		if ty.Srid != schema.WGS84 {
			return DataType{}, fmt.Errorf("trino: SphericalGeography requires SRID %d, got %s", schema.WGS84, ty.Srid)
		}
		return DataType{Kind: SphericalGeography}, nil
	case *schema.Int16Type:
		return DataType{Kind: SmallInt}, nil
	case *schema.Int32Type:
		return DataType{Kind: Int}, nil
	case *schema.Int64Type:
		return DataType{Kind: BigInt}, nil
	case *schema.JSONType:
		return DataType{Kind: Json}, nil
	case *schema.NamedType:
		def, err := s.ResolveNamed(ty.Name)
		if err != nil {
			return DataType{}, err
		}
		return FromPortable(def.DataType, s)
	case *schema.OneOfType:
		return VarcharType(), nil
	case *schema.StructType:
		fields := make([]Field, 0, len(ty.Fields))
		for _, f := range ty.Fields {
			fty, err := FromPortable(f.DataType, s)
			if err != nil {
				return DataType{}, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields = append(fields, Field{Name: f.Name, Type: fty})
		}
		return DataType{Kind: Row, Fields: fields}, nil
	case *schema.TextType:
		return VarcharType(), nil
	case *schema.TimestampWithoutTimeZoneType:
		return TimestampType(), nil
	case *schema.TimestampWithTimeZoneType:
		return TimestampWithTimeZoneType(), nil
	case *schema.UUIDType:
		return DataType{Kind: Uuid}, nil
	default:
		return DataType{}, fmt.Errorf("trino: no native representation for portable type %T", ty)
	}
}

// ToPortable maps this Trino type back to the portable model.
func (dt DataType) ToPortable() (schema.DataType, error) {
	switch dt.Kind {
	case Boolean:
		return &schema.BoolType{}, nil
	case TinyInt, SmallInt:
		return &schema.Int16Type{}, nil
	case Int:
		return &schema.Int32Type{}, nil
	case BigInt:
		return &schema.Int64Type{}, nil
	case Real:
		return &schema.Float32Type{}, nil
	case Double:
		return &schema.Float64Type{}, nil
	case Decimal:
		return &schema.DecimalType{}, nil
	case Varchar:
		return &schema.TextType{}, nil
	case Json:
		return &schema.JSONType{}, nil
	case Date:
		return &schema.DateType{}, nil
	case Timestamp:
		return &schema.TimestampWithoutTimeZoneType{}, nil
	case TimestampWithTimeZone:
		return &schema.TimestampWithTimeZoneType{}, nil
	case Array:
		elem, err := dt.Elem.ToPortable()
		if err != nil {
			return nil, err
		}
		return &schema.ArrayType{Elem: elem}, nil
	case Row:
		fields := make([]*schema.StructField, 0, len(dt.Fields))
		for i, f := range dt.Fields {
			if f.Name == "" {
				return nil, fmt.Errorf("trino: cannot convert anonymous ROW field %d to portable form", i)
			}
			fty, err := f.Type.ToPortable()
			if err != nil {
				return nil, err
			}
			fields = append(fields, &schema.StructField{Name: f.Name, IsNullable: true, DataType: fty})
		}
		return &schema.StructType{Fields: fields}, nil
	case Uuid:
		return &schema.UUIDType{}, nil
	case SphericalGeography:
		return &schema.GeoJSONType{Srid: schema.WGS84}, nil
	default:
		return nil, fmt.Errorf("trino: cannot convert %s to a portable type", dt)
	}
}

// QuoteIdent quotes an identifier for Trino SQL. Unquoted identifiers
// fold to lower case, so anything mixed-case must be quoted to survive.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteString quotes a string literal for Trino SQL.
func QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
