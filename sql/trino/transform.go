package trino

import (
	"fmt"
	"strings"
)

type (
	// A StorageTransform says how a value must be rewritten for storage
	// in a particular connector, and how to recover the original value
	// on read. Transforms are inert data interpreted by StorageTypeFor,
	// LoadExpr and StoreExpr, not a class hierarchy.
	StorageTransform struct {
		Kind TransformKind
		// StoredPrecision applies to the precision transforms.
		StoredPrecision int
		// ElementTransform applies to Array.
		ElementTransform *StorageTransform
		// FieldTransforms applies to Row.
		FieldTransforms []FieldStorageTransform
		// NameAnonymousFields applies to Row: give anonymous fields
		// generated names for connectors that require them.
		NameAnonymousFields bool
	}

	// A FieldStorageTransform pairs a ROW field with its transform. For
	// anonymous fields Name is empty and Index names the 1-based
	// position.
	FieldStorageTransform struct {
		Name      string
		Index     int
		Transform StorageTransform
	}

	// TransformKind enumerates the transform variants.
	TransformKind int
)

// The transform variants.
const (
	Identity TransformKind = iota
	SmallerIntAsInt
	TimeWithPrecision
	TimestampWithPrecision
	TimestampWithTimeZoneWithPrecision
	TimestampWithTimeZoneAsTimestamp
	TimeAsVarchar
	JsonAsVarchar
	UuidAsVarchar
	SphericalGeographyAsVarchar
	ArrayTransform
	RowTransform
)

// IsIdentity reports whether the transform changes nothing.
func (t StorageTransform) IsIdentity() bool { return t.Kind == Identity }

// SimplifyTopLevel collapses an Array or Row transform whose children
// are all identities into Identity, so we don't generate no-op casts.
func (t StorageTransform) SimplifyTopLevel() StorageTransform {
	switch t.Kind {
	case ArrayTransform:
		if t.ElementTransform.IsIdentity() {
			return StorageTransform{Kind: Identity}
		}
	case RowTransform:
		for _, f := range t.FieldTransforms {
			if !f.Transform.IsIdentity() {
				return t
			}
			if f.Name == "" && t.NameAnonymousFields {
				return t
			}
		}
		return StorageTransform{Kind: Identity}
	}
	return t
}

// StorageTypeFor returns the type to declare in the destination table
// when storing a value of the given type under this transform.
func (t StorageTransform) StorageTypeFor(ty DataType) DataType {
	switch t.Kind {
	case Identity:
		return ty
	case SmallerIntAsInt:
		return DataType{Kind: Int}
	case TimeWithPrecision:
		return DataType{Kind: Time, Precision: t.StoredPrecision}
	case TimestampWithPrecision:
		return DataType{Kind: Timestamp, Precision: t.StoredPrecision}
	case TimestampWithTimeZoneWithPrecision:
		return DataType{Kind: TimestampWithTimeZone, Precision: t.StoredPrecision}
	case TimestampWithTimeZoneAsTimestamp:
		return DataType{Kind: Timestamp, Precision: t.StoredPrecision}
	case TimeAsVarchar, JsonAsVarchar, UuidAsVarchar, SphericalGeographyAsVarchar:
		return VarcharType()
	case ArrayTransform:
		return ArrayOf(t.ElementTransform.StorageTypeFor(*ty.Elem))
	case RowTransform:
		fields := make([]Field, len(t.FieldTransforms))
		for i, ft := range t.FieldTransforms {
			name := ft.Name
			if name == "" && t.NameAnonymousFields {
				name = fmt.Sprintf("f%d", ft.Index)
			}
			fields[i] = Field{Name: name, Type: ft.Transform.StorageTypeFor(ty.Fields[i].Type)}
		}
		return DataType{Kind: Row, Fields: fields}
	default:
		return ty
	}
}

// StoreExpr returns the SQL expression that converts the in-flight
// value expr into its stored form.
func (t StorageTransform) StoreExpr(expr string, original DataType) string {
	switch t.Kind {
	case Identity:
		return expr
	case SmallerIntAsInt:
		return fmt.Sprintf("CAST(%s AS INT)", expr)
	case TimeWithPrecision, TimestampWithPrecision, TimestampWithTimeZoneWithPrecision:
		return fmt.Sprintf("CAST(%s AS %s)", expr, t.StorageTypeFor(original))
	case TimestampWithTimeZoneAsTimestamp:
		// Normalize to UTC, then drop the zone.
		return fmt.Sprintf("CAST(%s AT TIME ZONE 'UTC' AS %s)", expr, t.StorageTypeFor(original))
	case TimeAsVarchar, UuidAsVarchar:
		return fmt.Sprintf("CAST(%s AS VARCHAR)", expr)
	case JsonAsVarchar:
		return fmt.Sprintf("JSON_FORMAT(%s)", expr)
	case SphericalGeographyAsVarchar:
		return fmt.Sprintf("to_geojson_geometry(%s)", expr)
	case ArrayTransform:
		elem := t.ElementTransform.StoreExpr("e", *original.Elem)
		if elem == "e" {
			return expr
		}
		return fmt.Sprintf("transform(%s, e -> %s)", expr, elem)
	case RowTransform:
		// Rebuild the row field by field from the original value, then
		// cast to the storage ROW type so field names survive.
		parts := make([]string, len(t.FieldTransforms))
		for i, ft := range t.FieldTransforms {
			fieldExpr := rowFieldAccess(expr, original.Fields[i].Name, ft.Index)
			parts[i] = ft.Transform.StoreExpr(fieldExpr, original.Fields[i].Type)
		}
		return fmt.Sprintf("CAST(ROW(%s) AS %s)", strings.Join(parts, ", "), t.StorageTypeFor(original))
	default:
		return expr
	}
}

// LoadExpr returns the SQL expression that converts the stored value
// expr back into the original form on read.
func (t StorageTransform) LoadExpr(expr string, original DataType) string {
	switch t.Kind {
	case Identity:
		return expr
	case SmallerIntAsInt, TimeWithPrecision, TimestampWithPrecision, TimestampWithTimeZoneWithPrecision:
		return fmt.Sprintf("CAST(%s AS %s)", expr, original)
	case TimestampWithTimeZoneAsTimestamp:
		// The stored value is UTC by construction.
		return fmt.Sprintf("CAST(%s AT TIME ZONE 'UTC' AS %s)", expr, original)
	case TimeAsVarchar, UuidAsVarchar:
		return fmt.Sprintf("CAST(%s AS %s)", expr, original)
	case JsonAsVarchar:
		return fmt.Sprintf("JSON_PARSE(%s)", expr)
	case SphericalGeographyAsVarchar:
		return fmt.Sprintf("from_geojson_geometry(%s)", expr)
	case ArrayTransform:
		elem := t.ElementTransform.LoadExpr("e", *original.Elem)
		if elem == "e" {
			return expr
		}
		return fmt.Sprintf("transform(%s, e -> %s)", expr, elem)
	case RowTransform:
		// The stored value's field names come from the storage type
		// (anonymous fields may have generated names there); the result
		// is cast back to the original ROW type.
		stored := t.StorageTypeFor(original)
		parts := make([]string, len(t.FieldTransforms))
		for i, ft := range t.FieldTransforms {
			fieldExpr := rowFieldAccess(expr, stored.Fields[i].Name, ft.Index)
			parts[i] = ft.Transform.LoadExpr(fieldExpr, original.Fields[i].Type)
		}
		return fmt.Sprintf("CAST(ROW(%s) AS %s)", strings.Join(parts, ", "), original)
	default:
		return expr
	}
}

// rowFieldAccess accesses one ROW field by name, or by 1-based position
// for anonymous fields.
func rowFieldAccess(expr, name string, index int) string {
	if name != "" {
		return fmt.Sprintf("%s.%s", expr, QuoteIdent(name))
	}
	return fmt.Sprintf("%s[%d]", expr, index)
}
