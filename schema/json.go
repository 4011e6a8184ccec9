package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The JSON wire format is external and must stay round-trip stable:
// scalars serialize as bare strings ("text", "int32", ...), and complex
// types as single-key objects ({"array":"text"}, {"geo_json":4326},
// {"struct":[...]}, {"named":"q"}, {"one_of":[...]}).

// ParseJSON parses a schema document. The legacy form, a bare
// {"name": ..., "columns": [...]} table object, is accepted and wrapped
// in a single-table schema.
func ParseJSON(data []byte) (*Schema, error) {
	var probe struct {
		Tables  json.RawMessage `json:"tables"`
		Columns json.RawMessage `json:"columns"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if probe.Tables == nil && probe.Columns != nil {
		var t Table
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("schema: parse legacy table: %w", err)
		}
		s := FromSingleTable(&t)
		return s, s.Validate()
	}
	var s Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("schema: parse: %w", err)
	}
	if len(s.Tables) == 0 {
		return nil, fmt.Errorf("schema: document contains no tables")
	}
	return &s, s.Validate()
}

// ToJSON serializes the schema in the current document format.
func (s *Schema) ToJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("schema: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (s *Schema) MarshalJSON() ([]byte, error) {
	type wire struct {
		NamedDataTypes []*NamedDataType `json:"named_data_types,omitempty"`
		Tables         []*Table         `json:"tables"`
	}
	return json.Marshal(wire{NamedDataTypes: s.NamedDataTypes, Tables: s.Tables})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Schema) UnmarshalJSON(data []byte) error {
	type wire struct {
		NamedDataTypes []*NamedDataType `json:"named_data_types"`
		Tables         []*Table         `json:"tables"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.NamedDataTypes, s.Tables = w.NamedDataTypes, w.Tables
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n *NamedDataType) MarshalJSON() ([]byte, error) {
	dt, err := marshalDataType(n.DataType)
	if err != nil {
		return nil, err
	}
	type wire struct {
		Name     string `json:"name"`
		DataType any    `json:"data_type"`
	}
	return json.Marshal(wire{Name: n.Name, DataType: dt})
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NamedDataType) UnmarshalJSON(data []byte) error {
	var w struct {
		Name     string          `json:"name"`
		DataType json.RawMessage `json:"data_type"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	dt, err := unmarshalDataType(w.DataType)
	if err != nil {
		return err
	}
	n.Name, n.DataType = w.Name, dt
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t *Table) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name    string    `json:"name"`
		Columns []*Column `json:"columns"`
	}
	return json.Marshal(wire{Name: t.Name, Columns: t.Columns})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Table) UnmarshalJSON(data []byte) error {
	var w struct {
		Name    string    `json:"name"`
		Columns []*Column `json:"columns"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	t.Name, t.Columns = w.Name, w.Columns
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c *Column) MarshalJSON() ([]byte, error) {
	dt, err := marshalDataType(c.DataType)
	if err != nil {
		return nil, err
	}
	type wire struct {
		Name       string `json:"name"`
		IsNullable bool   `json:"is_nullable"`
		DataType   any    `json:"data_type"`
		Comment    string `json:"comment,omitempty"`
	}
	return json.Marshal(wire{Name: c.Name, IsNullable: c.IsNullable, DataType: dt, Comment: c.Comment})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Column) UnmarshalJSON(data []byte) error {
	var w struct {
		Name       string          `json:"name"`
		IsNullable bool            `json:"is_nullable"`
		DataType   json.RawMessage `json:"data_type"`
		Comment    string          `json:"comment"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	dt, err := unmarshalDataType(w.DataType)
	if err != nil {
		return fmt.Errorf("column %q: %w", w.Name, err)
	}
	c.Name, c.IsNullable, c.DataType, c.Comment = w.Name, w.IsNullable, dt, w.Comment
	return nil
}

// MarshalJSON implements json.Marshaler.
func (f *StructField) MarshalJSON() ([]byte, error) {
	dt, err := marshalDataType(f.DataType)
	if err != nil {
		return nil, err
	}
	type wire struct {
		Name       string `json:"name"`
		IsNullable bool   `json:"is_nullable"`
		DataType   any    `json:"data_type"`
	}
	return json.Marshal(wire{Name: f.Name, IsNullable: f.IsNullable, DataType: dt})
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *StructField) UnmarshalJSON(data []byte) error {
	var w struct {
		Name       string          `json:"name"`
		IsNullable bool            `json:"is_nullable"`
		DataType   json.RawMessage `json:"data_type"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	dt, err := unmarshalDataType(w.DataType)
	if err != nil {
		return fmt.Errorf("field %q: %w", w.Name, err)
	}
	f.Name, f.IsNullable, f.DataType = w.Name, w.IsNullable, dt
	return nil
}

func marshalDataType(dt DataType) (any, error) {
	switch dt := dt.(type) {
	case *ArrayType:
		elem, err := marshalDataType(dt.Elem)
		if err != nil {
			return nil, err
		}
		return map[string]any{"array": elem}, nil
	case *BoolType:
		return "bool", nil
	case *DateType:
		return "date", nil
	case *DecimalType:
		return "decimal", nil
	case *Float32Type:
		return "float32", nil
	case *Float64Type:
		return "float64", nil
	case *GeoJSONType:
		return map[string]any{"geo_json": uint32(dt.Srid)}, nil
	case *Int16Type:
		return "int16", nil
	case *Int32Type:
		return "int32", nil
	case *Int64Type:
		return "int64", nil
	case *JSONType:
		return "json", nil
	case *NamedType:
		return map[string]any{"named": dt.Name}, nil
	case *OneOfType:
		return map[string]any{"one_of": dt.Values}, nil
	case *StructType:
		return map[string]any{"struct": dt.Fields}, nil
	case *TextType:
		return "text", nil
	case *TimestampWithoutTimeZoneType:
		return "timestamp_without_time_zone", nil
	case *TimestampWithTimeZoneType:
		return "timestamp_with_time_zone", nil
	case *UUIDType:
		return "uuid", nil
	case nil:
		return nil, fmt.Errorf("missing data type")
	default:
		return nil, fmt.Errorf("unknown data type %T", dt)
	}
}

func unmarshalDataType(raw json.RawMessage) (DataType, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing data type")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		switch s {
		case "bool":
			return &BoolType{}, nil
		case "date":
			return &DateType{}, nil
		case "decimal":
			return &DecimalType{}, nil
		case "float32":
			return &Float32Type{}, nil
		case "float64":
			return &Float64Type{}, nil
		case "int16":
			return &Int16Type{}, nil
		case "int32":
			return &Int32Type{}, nil
		case "int64":
			return &Int64Type{}, nil
		case "json":
			return &JSONType{}, nil
		case "text":
			return &TextType{}, nil
		case "timestamp_without_time_zone":
			return &TimestampWithoutTimeZoneType{}, nil
		case "timestamp_with_time_zone":
			return &TimestampWithTimeZoneType{}, nil
		case "uuid":
			return &UUIDType{}, nil
		default:
			return nil, fmt.Errorf("unknown data type %q", s)
		}
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if len(obj) != 1 {
		return nil, fmt.Errorf("expected a single-key data type object, found %d keys", len(obj))
	}
	for key, val := range obj {
		switch key {
		case "array":
			elem, err := unmarshalDataType(val)
			if err != nil {
				return nil, err
			}
			return &ArrayType{Elem: elem}, nil
		case "geo_json":
			var srid uint32
			if err := json.Unmarshal(val, &srid); err != nil {
				return nil, err
			}
			return &GeoJSONType{Srid: Srid(srid)}, nil
		case "named":
			var name string
			if err := json.Unmarshal(val, &name); err != nil {
				return nil, err
			}
			return &NamedType{Name: name}, nil
		case "one_of":
			var values []string
			if err := json.Unmarshal(val, &values); err != nil {
				return nil, err
			}
			return &OneOfType{Values: values}, nil
		case "struct":
			var fields []*StructField
			if err := json.Unmarshal(val, &fields); err != nil {
				return nil, err
			}
			return &StructType{Fields: fields}, nil
		default:
			return nil, fmt.Errorf("unknown data type key %q", key)
		}
	}
	return nil, fmt.Errorf("empty data type object")
}
