// Package redshift owns the Redshift native type mapping. Redshift
// speaks the PostgreSQL wire protocol but supports a smaller type
// space: no arrays, no geometry, no JSON or UUID column types, so
// several portable types are stored as VARCHAR.
package redshift

import (
	"fmt"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"

	"github.com/lib/pq"
)

// FormatType maps a portable type to Redshift column SQL.
func FormatType(ty schema.DataType) (string, error) {
	switch ty := ty.(type) {
	case *schema.BoolType:
		return "BOOLEAN", nil
	case *schema.DateType:
		return "DATE", nil
	case *schema.DecimalType:
		return "DECIMAL(38, 9)", nil
	case *schema.Float32Type:
		return "REAL", nil
	case *schema.Float64Type:
		return "DOUBLE PRECISION", nil
	case *schema.Int16Type:
		return "SMALLINT", nil
	case *schema.Int32Type:
		return "INTEGER", nil
	case *schema.Int64Type:
		return "BIGINT", nil
	case *schema.JSONType:
		// Stored as text; Redshift has no JSON column type.
		return "VARCHAR(MAX)", nil
	case *schema.OneOfType:
		return "VARCHAR(MAX)", nil
	case *schema.TextType:
		return "VARCHAR(MAX)", nil
	case *schema.TimestampWithoutTimeZoneType:
		return "TIMESTAMP", nil
	case *schema.TimestampWithTimeZoneType:
		return "TIMESTAMPTZ", nil
	case *schema.UUIDType:
		return "VARCHAR(36)", nil
	case *schema.ArrayType, *schema.GeoJSONType, *schema.StructType, *schema.NamedType:
		return "", fmt.Errorf("redshift: Redshift cannot store portable type %T", ty)
	default:
		return "", fmt.Errorf("redshift: no native representation for portable type %T", ty)
	}
}

// ParseType maps an introspected Redshift type back to the portable
// model. The VARCHAR fallbacks come back as text; that loss is
// documented.
func ParseType(raw string) (schema.DataType, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case lower == "boolean" || lower == "bool":
		return &schema.BoolType{}, nil
	case lower == "date":
		return &schema.DateType{}, nil
	case strings.HasPrefix(lower, "numeric") || strings.HasPrefix(lower, "decimal"):
		return &schema.DecimalType{}, nil
	case lower == "real" || lower == "float4":
		return &schema.Float32Type{}, nil
	case lower == "double precision" || lower == "float8":
		return &schema.Float64Type{}, nil
	case lower == "smallint" || lower == "int2":
		return &schema.Int16Type{}, nil
	case lower == "integer" || lower == "int" || lower == "int4":
		return &schema.Int32Type{}, nil
	case lower == "bigint" || lower == "int8":
		return &schema.Int64Type{}, nil
	case strings.HasPrefix(lower, "character varying") || strings.HasPrefix(lower, "varchar") ||
		strings.HasPrefix(lower, "character") || strings.HasPrefix(lower, "char") || lower == "text":
		return &schema.TextType{}, nil
	case lower == "timestamp" || lower == "timestamp without time zone":
		return &schema.TimestampWithoutTimeZoneType{}, nil
	case lower == "timestamptz" || lower == "timestamp with time zone":
		return &schema.TimestampWithTimeZoneType{}, nil
	default:
		return nil, fmt.Errorf("redshift: unknown type %q", raw)
	}
}

// CreateTableSQL builds the CREATE TABLE statement for a portable
// table.
func CreateTableSQL(table string, columns []*schema.Column) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", pq.QuoteIdentifier(table))
	for i, c := range columns {
		ty, err := FormatType(c.DataType)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", c.Name, err)
		}
		fmt.Fprintf(&b, "    %s %s", pq.QuoteIdentifier(c.Name), ty)
		if !c.IsNullable {
			b.WriteString(" NOT NULL")
		}
		if i+1 < len(columns) {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String(), nil
}

// CopySQL builds the COPY statement that loads interchange CSV from S3.
// Credentials are passed via an IAM role or access keys in authClause.
func CopySQL(table, s3Prefix, authClause string) string {
	return fmt.Sprintf("COPY %s FROM '%s' %s FORMAT CSV IGNOREHEADER 1 DATEFORMAT 'auto' TIMEFORMAT 'auto'",
		pq.QuoteIdentifier(table), s3Prefix, authClause)
}

// UnloadSQL builds the UNLOAD statement that exports a query to S3 as
// interchange CSV.
func UnloadSQL(query, s3Prefix, authClause string) string {
	return fmt.Sprintf("UNLOAD (%s) TO '%s' %s FORMAT CSV HEADER",
		pq.QuoteLiteral(query), s3Prefix, authClause)
}
