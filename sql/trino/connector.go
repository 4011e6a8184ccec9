package trino

import (
	"fmt"
)

// A ConnectorType says what kind of storage backs a Trino catalog. We
// need to know because each connector supports a different slice of
// Trino's type system and SQL: the goal is always to produce the best
// representation a given connector can hold, and there is no one
// answer for all of them.
type ConnectorType int

// The connector types we understand. Other reports capabilities
// conservatively for catalogs we don't recognize.
const (
	Hive ConnectorType = iota
	Iceberg
	Memory
	PostgreSQL
	Other
)

// ParseConnectorType maps a connector name from system.metadata.catalogs.
func ParseConnectorType(s string) ConnectorType {
	switch s {
	case "hive":
		return Hive
	case "iceberg":
		return Iceberg
	case "memory":
		return Memory
	case "postgresql":
		return PostgreSQL
	default:
		return Other
	}
}

func (c ConnectorType) String() string {
	switch c {
	case Hive:
		return "hive"
	case Iceberg:
		return "iceberg"
	case Memory:
		return "memory"
	case PostgreSQL:
		return "postgresql"
	default:
		return "other"
	}
}

// SupportsNotNullConstraint reports whether the connector accepts NOT
// NULL column constraints.
func (c ConnectorType) SupportsNotNullConstraint() bool {
	switch c {
	case Hive, Other:
		return false
	default:
		return true
	}
}

// SupportsReplaceTable reports whether CREATE OR REPLACE TABLE works.
func (c ConnectorType) SupportsReplaceTable() bool {
	switch c {
	case Iceberg, Memory:
		return true
	default:
		return false
	}
}

// SupportsAnonymousRowFields reports whether ROW fields may be unnamed.
func (c ConnectorType) SupportsAnonymousRowFields() bool {
	switch c {
	case Hive, Iceberg:
		return false
	default:
		return true
	}
}

// SupportsMerge reports whether the connector implements MERGE, which
// we use for upserts.
func (c ConnectorType) SupportsMerge() bool {
	switch c {
	case Hive, Iceberg, PostgreSQL:
		return true
	default:
		return false
	}
}

// StorageTransformFor returns the transform required to store a value
// of the given type in this connector. Downgrades recurse through
// ARRAY and ROW.
func (c ConnectorType) StorageTransformFor(ty DataType) StorageTransform {
	switch {
	// Iceberg has no tinyint/smallint, fixes time precision at
	// microseconds, and has no JSON or geography types.
	case c == Iceberg && (ty.Kind == TinyInt || ty.Kind == SmallInt):
		return StorageTransform{Kind: SmallerIntAsInt}
	case c == Iceberg && ty.Kind == Time && ty.Precision != 6:
		return StorageTransform{Kind: TimeWithPrecision, StoredPrecision: 6}
	case c == Iceberg && ty.Kind == Timestamp && ty.Precision != 6:
		return StorageTransform{Kind: TimestampWithPrecision, StoredPrecision: 6}
	case c == Iceberg && ty.Kind == TimestampWithTimeZone && ty.Precision != 6:
		return StorageTransform{Kind: TimestampWithTimeZoneWithPrecision, StoredPrecision: 6}
	case c == Iceberg && ty.Kind == Json:
		return StorageTransform{Kind: JsonAsVarchar}
	case c == Iceberg && ty.Kind == SphericalGeography:
		return StorageTransform{Kind: SphericalGeographyAsVarchar}

	// Hive has no TIME, no timestamps with zones, millisecond
	// precision only, and no JSON, UUID or geography.
	case c == Hive && ty.Kind == Time:
		return StorageTransform{Kind: TimeAsVarchar}
	case c == Hive && ty.Kind == Timestamp && ty.Precision != 3:
		return StorageTransform{Kind: TimestampWithPrecision, StoredPrecision: 3}
	case c == Hive && ty.Kind == TimestampWithTimeZone:
		return StorageTransform{Kind: TimestampWithTimeZoneAsTimestamp, StoredPrecision: 3}
	case c == Hive && ty.Kind == Json:
		return StorageTransform{Kind: JsonAsVarchar}
	case c == Hive && ty.Kind == Uuid:
		return StorageTransform{Kind: UuidAsVarchar}
	case c == Hive && ty.Kind == SphericalGeography:
		return StorageTransform{Kind: SphericalGeographyAsVarchar}

	// PostgreSQL-via-Trino has no UUID writes or geography.
	case c == PostgreSQL && ty.Kind == Uuid:
		return StorageTransform{Kind: UuidAsVarchar}
	case c == PostgreSQL && ty.Kind == SphericalGeography:
		return StorageTransform{Kind: SphericalGeographyAsVarchar}

	// Recursive types downgrade element-wise.
	case ty.Kind == Array:
		elem := c.StorageTransformFor(*ty.Elem)
		return StorageTransform{Kind: ArrayTransform, ElementTransform: &elem}.SimplifyTopLevel()
	case ty.Kind == Row:
		fields := make([]FieldStorageTransform, len(ty.Fields))
		for i, f := range ty.Fields {
			fields[i] = FieldStorageTransform{
				Name:      f.Name,
				Index:     i + 1,
				Transform: c.StorageTransformFor(f.Type),
			}
		}
		return StorageTransform{
			Kind:                RowTransform,
			FieldTransforms:     fields,
			NameAnonymousFields: !c.SupportsAnonymousRowFields(),
		}.SimplifyTopLevel()

	default:
		return StorageTransform{Kind: Identity}
	}
}

// StorageTypeFor returns the type this connector stores for ty.
func (c ConnectorType) StorageTypeFor(ty DataType) DataType {
	return c.StorageTransformFor(ty).StorageTypeFor(ty)
}

// CheckColumnName rejects column names a connector cannot hold, in
// particular mixed-case identifiers for the Hive family, which folds
// all identifiers to lower case and would silently corrupt them.
func (c ConnectorType) CheckColumnName(name string) error {
	if c != Hive {
		return nil
	}
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			return fmt.Errorf("trino: the %s connector folds identifiers to lower case; rename column %q or use a lower-case name", c, name)
		}
	}
	return nil
}
