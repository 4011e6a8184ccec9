package schema

import "fmt"

type (
	// A DataType is one of the closed set of portable column types. The
	// types below implement this interface; backends map each of them to
	// and from their native type systems.
	//
	// This is a tagged union, not a class hierarchy: the set of types is
	// closed and changes only after careful deliberation, while the set
	// of operations over them (one per backend) grows freely.
	DataType interface {
		dt()
	}

	// ArrayType is an ordered sequence of another data type. Not every
	// backend can nest arrays.
	ArrayType struct {
		Elem DataType
	}

	// BoolType is a boolean value.
	BoolType struct{}

	// DateType is a date with no associated time value.
	DateType struct{}

	// DecimalType is an exact decimal value (currency, etc., without
	// rounding errors). The portable form carries no precision or scale.
	DecimalType struct{}

	// Float32Type is a 4-byte float.
	Float32Type struct{}

	// Float64Type is an 8-byte float.
	Float64Type struct{}

	// GeoJSONType is geodata in GeoJSON format, using the given SRID.
	GeoJSONType struct {
		Srid Srid
	}

	// Int16Type is a 2-byte integer.
	Int16Type struct{}

	// Int32Type is a 4-byte integer.
	Int32Type struct{}

	// Int64Type is an 8-byte integer.
	Int64Type struct{}

	// JSONType is arbitrary JSON data. This covers both Postgres json
	// and jsonb; the difference rarely matters when converting schemas.
	JSONType struct{}

	// NamedType is a reference to an entry in the schema's named-types
	// table. It compares by qualified name, not structurally.
	NamedType struct {
		Name string
	}

	// OneOfType is an enumeration of string values, ordered and unique.
	OneOfType struct {
		Values []string
	}

	// StructType is a structure with a known set of named fields. Field
	// names must be unique within a struct, and non-empty.
	StructType struct {
		Fields []*StructField
	}

	// A StructField is a single named field of a StructType.
	StructField struct {
		Name       string
		IsNullable bool
		DataType   DataType
	}

	// TextType is a text value of unbounded length.
	TextType struct{}

	// TimestampWithoutTimeZoneType is a timestamp with no time zone.
	// Ideally stored in UTC; some backends assume as much.
	TimestampWithoutTimeZoneType struct{}

	// TimestampWithTimeZoneType is a timestamp with a time zone.
	TimestampWithTimeZoneType struct{}

	// UUIDType is a UUID value.
	UUIDType struct{}
)

func (*ArrayType) dt()                    {}
func (*BoolType) dt()                     {}
func (*DateType) dt()                     {}
func (*DecimalType) dt()                  {}
func (*Float32Type) dt()                  {}
func (*Float64Type) dt()                  {}
func (*GeoJSONType) dt()                  {}
func (*Int16Type) dt()                    {}
func (*Int32Type) dt()                    {}
func (*Int64Type) dt()                    {}
func (*JSONType) dt()                     {}
func (*NamedType) dt()                    {}
func (*OneOfType) dt()                    {}
func (*StructType) dt()                   {}
func (*TextType) dt()                     {}
func (*TimestampWithoutTimeZoneType) dt() {}
func (*TimestampWithTimeZoneType) dt()    {}
func (*UUIDType) dt()                     {}

// An Srid is a spatial-reference-system identifier, naming a coordinate
// system for geometry values.
type Srid uint32

// WGS84 is the one true SRID according to our GIS folks and BigQuery.
const WGS84 Srid = 4326

func (s Srid) String() string { return fmt.Sprintf("%d", uint32(s)) }

// SerializesAsJSONForCSV reports whether values of this type are carried
// as JSON documents inside a CSV cell.
func SerializesAsJSONForCSV(dt DataType) bool {
	switch dt.(type) {
	case *ArrayType, *GeoJSONType, *JSONType, *StructType:
		return true
	default:
		return false
	}
}

// TypesEqual reports structural equivalence of two data types. NamedType
// references compare by qualified name.
func TypesEqual(a, b DataType) bool {
	switch a := a.(type) {
	case *ArrayType:
		b, ok := b.(*ArrayType)
		return ok && TypesEqual(a.Elem, b.Elem)
	case *GeoJSONType:
		b, ok := b.(*GeoJSONType)
		return ok && a.Srid == b.Srid
	case *NamedType:
		b, ok := b.(*NamedType)
		return ok && a.Name == b.Name
	case *OneOfType:
		b, ok := b.(*OneOfType)
		if !ok || len(a.Values) != len(b.Values) {
			return false
		}
		for i := range a.Values {
			if a.Values[i] != b.Values[i] {
				return false
			}
		}
		return true
	case *StructType:
		b, ok := b.(*StructType)
		if !ok || len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			af, bf := a.Fields[i], b.Fields[i]
			if af.Name != bf.Name || af.IsNullable != bf.IsNullable || !TypesEqual(af.DataType, bf.DataType) {
				return false
			}
		}
		return true
	default:
		return sameScalar(a, b)
	}
}

func sameScalar(a, b DataType) bool {
	switch a.(type) {
	case *BoolType:
		_, ok := b.(*BoolType)
		return ok
	case *DateType:
		_, ok := b.(*DateType)
		return ok
	case *DecimalType:
		_, ok := b.(*DecimalType)
		return ok
	case *Float32Type:
		_, ok := b.(*Float32Type)
		return ok
	case *Float64Type:
		_, ok := b.(*Float64Type)
		return ok
	case *Int16Type:
		_, ok := b.(*Int16Type)
		return ok
	case *Int32Type:
		_, ok := b.(*Int32Type)
		return ok
	case *Int64Type:
		_, ok := b.(*Int64Type)
		return ok
	case *JSONType:
		_, ok := b.(*JSONType)
		return ok
	case *TextType:
		_, ok := b.(*TextType)
		return ok
	case *TimestampWithoutTimeZoneType:
		_, ok := b.(*TimestampWithoutTimeZoneType)
		return ok
	case *TimestampWithTimeZoneType:
		_, ok := b.(*TimestampWithTimeZoneType)
		return ok
	case *UUIDType:
		_, ok := b.(*UUIDType)
		return ok
	}
	return false
}

// CoercibleTo reports whether a value of type from can be moved to a
// column of type to without a storage transform. Two types are
// coercion-compatible iff they are equivalent after expanding NamedType
// references within s, or related by the loss-free widenings
// int16 -> int32 -> int64 and float32 -> float64.
func CoercibleTo(s *Schema, from, to DataType) bool {
	var err error
	if from, err = expandNamed(s, from); err != nil {
		return false
	}
	if to, err = expandNamed(s, to); err != nil {
		return false
	}
	if TypesEqual(from, to) {
		return true
	}
	switch from.(type) {
	case *Int16Type:
		switch to.(type) {
		case *Int32Type, *Int64Type:
			return true
		}
	case *Int32Type:
		_, ok := to.(*Int64Type)
		return ok
	case *Float32Type:
		_, ok := to.(*Float64Type)
		return ok
	}
	return false
}

func expandNamed(s *Schema, dt DataType) (DataType, error) {
	nt, ok := dt.(*NamedType)
	if !ok {
		return dt, nil
	}
	def, err := s.ResolveNamed(nt.Name)
	if err != nil {
		return nil, err
	}
	return expandNamed(s, def.DataType)
}
