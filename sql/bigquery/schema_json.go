package bigquery

import (
	"encoding/json"
	"fmt"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

// The BigQuery JSON schema format: a list of field objects with name,
// type, mode and (for RECORD) nested fields. This is both the format of
// bigquery-schema: locators and the payload of table-creation API
// calls.

type (
	// A FieldSchema is one field in a BigQuery JSON schema.
	FieldSchema struct {
		Name        string        `json:"name"`
		Type        string        `json:"type"`
		Mode        string        `json:"mode,omitempty"`
		Description string        `json:"description,omitempty"`
		Fields      []FieldSchema `json:"fields,omitempty"`
	}

	// A TableSchema is a full BigQuery table schema.
	TableSchema struct {
		Fields []FieldSchema `json:"fields"`
	}
)

// Field modes.
const (
	ModeNullable = "NULLABLE"
	ModeRequired = "REQUIRED"
	ModeRepeated = "REPEATED"
)

// SchemaForTable builds the BigQuery JSON schema for a portable table,
// using the given type usage.
func SchemaForTable(s *schema.Schema, t *schema.Table, usage Usage) (*TableSchema, error) {
	out := &TableSchema{}
	names := make([]ColumnName, 0, len(t.Columns))
	for _, c := range t.Columns {
		name, err := NewColumnName(c.Name)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
		ty, err := FromPortable(c.DataType, s, usage)
		if err != nil {
			return nil, fmt.Errorf("bigquery: column %q: %w", c.Name, err)
		}
		field, err := fieldSchema(name.String(), ty, c.IsNullable)
		if err != nil {
			return nil, fmt.Errorf("bigquery: column %q: %w", c.Name, err)
		}
		field.Description = c.Comment
		out.Fields = append(out.Fields, field)
	}
	if err := CheckDuplicateColumnNames(names); err != nil {
		return nil, err
	}
	return out, nil
}

func fieldSchema(name string, ty DataType, nullable bool) (FieldSchema, error) {
	f := FieldSchema{Name: name}
	if ty.Array {
		// ARRAY<T> is spelled as a REPEATED field of T.
		f.Mode = ModeRepeated
	} else if nullable {
		f.Mode = ModeNullable
	} else {
		f.Mode = ModeRequired
	}
	na := ty.NonArray
	if na.Kind == Struct {
		f.Type = "RECORD"
		for _, sub := range na.Fields {
			if sub.Name == nil {
				return FieldSchema{}, fmt.Errorf("anonymous struct fields cannot appear in a table schema")
			}
			subField, err := fieldSchema(sub.Name.String(), sub.Type, true)
			if err != nil {
				return FieldSchema{}, err
			}
			f.Fields = append(f.Fields, subField)
		}
		return f, nil
	}
	f.Type = na.String()
	return f, nil
}

// ParseSchemaJSON parses a BigQuery JSON schema document: either a bare
// field list or a {"fields": [...]} object.
func ParseSchemaJSON(data []byte) (*TableSchema, error) {
	var fields []FieldSchema
	if err := json.Unmarshal(data, &fields); err == nil {
		return &TableSchema{Fields: fields}, nil
	}
	var ts TableSchema
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("bigquery: parse schema: %w", err)
	}
	return &ts, nil
}

// ToJSON serializes the schema as a field list, the format `bq` tools
// accept.
func (ts *TableSchema) ToJSON() ([]byte, error) {
	out, err := json.MarshalIndent(ts.Fields, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// ToTable converts the schema to a portable table.
func (ts *TableSchema) ToTable(name string) (*schema.Table, error) {
	t := &schema.Table{Name: name}
	for _, f := range ts.Fields {
		ty, nullable, err := f.toPortable()
		if err != nil {
			return nil, err
		}
		t.Columns = append(t.Columns, &schema.Column{
			Name:       f.Name,
			IsNullable: nullable,
			DataType:   ty,
			Comment:    f.Description,
		})
	}
	return t, nil
}

func (f FieldSchema) toPortable() (schema.DataType, bool, error) {
	var inner schema.DataType
	switch f.Type {
	case "BOOL", "BOOLEAN":
		inner = &schema.BoolType{}
	case "DATE":
		inner = &schema.DateType{}
	case "DATETIME":
		inner = &schema.TimestampWithoutTimeZoneType{}
	case "FLOAT", "FLOAT64":
		inner = &schema.Float64Type{}
	case "GEOGRAPHY":
		inner = &schema.GeoJSONType{Srid: schema.WGS84}
	case "INTEGER", "INT64":
		inner = &schema.Int64Type{}
	case "NUMERIC", "BIGNUMERIC":
		inner = &schema.DecimalType{}
	case "STRING":
		inner = &schema.TextType{}
	case "TIMESTAMP":
		inner = &schema.TimestampWithTimeZoneType{}
	case "RECORD", "STRUCT":
		st := &schema.StructType{}
		for _, sub := range f.Fields {
			ty, nullable, err := sub.toPortable()
			if err != nil {
				return nil, false, err
			}
			st.Fields = append(st.Fields, &schema.StructField{Name: sub.Name, IsNullable: nullable, DataType: ty})
		}
		inner = st
	default:
		return nil, false, fmt.Errorf("bigquery: field %q: unsupported type %q", f.Name, f.Type)
	}
	switch f.Mode {
	case ModeRepeated:
		return &schema.ArrayType{Elem: inner}, true, nil
	case ModeRequired:
		return inner, false, nil
	default:
		return inner, true, nil
	}
}
