package schemafiles

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

// A minimal parser for the TypeScript-subset schema format: a file of
// `interface` declarations whose fields use a restricted type grammar.
// The locator fragment picks the interface that becomes the table; the
// other interfaces become named struct types. Unstable.

var (
	interfaceRe = regexp.MustCompile(`(?s)(?:export\s+)?interface\s+([A-Za-z_][A-Za-z_0-9]*)\s*\{(.*?)\}`)
	fieldRe     = regexp.MustCompile(`^([A-Za-z_][A-Za-z_0-9]*)(\?)?\s*:\s*(.+?);?$`)
)

func parseTypeScript(data []byte, typeName string) (*schema.Schema, error) {
	interfaces := map[string]string{}
	var order []string
	for _, m := range interfaceRe.FindAllStringSubmatch(string(data), -1) {
		interfaces[m[1]] = m[2]
		order = append(order, m[1])
	}
	body, ok := interfaces[typeName]
	if !ok {
		return nil, fmt.Errorf("dbcrossbar-ts: no interface named %q in file", typeName)
	}

	s := &schema.Schema{}
	for _, name := range order {
		if name == typeName {
			continue
		}
		fields, err := parseTSFields(interfaces[name], interfaces)
		if err != nil {
			return nil, fmt.Errorf("dbcrossbar-ts: interface %q: %w", name, err)
		}
		structFields := make([]*schema.StructField, len(fields))
		for i, f := range fields {
			structFields[i] = &schema.StructField{Name: f.Name, IsNullable: f.IsNullable, DataType: f.DataType}
		}
		s.NamedDataTypes = append(s.NamedDataTypes, &schema.NamedDataType{
			Name:     name,
			DataType: &schema.StructType{Fields: structFields},
		})
	}

	columns, err := parseTSFields(body, interfaces)
	if err != nil {
		return nil, fmt.Errorf("dbcrossbar-ts: interface %q: %w", typeName, err)
	}
	s.Tables = []*schema.Table{{Name: typeName, Columns: columns}}
	return s, s.Validate()
}

func parseTSFields(body string, interfaces map[string]string) ([]*schema.Column, error) {
	var out []*schema.Column
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ";"))
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("cannot parse field %q", line)
		}
		name, optional, tsType := m[1], m[2] == "?", strings.TrimSpace(m[3])
		nullable := optional
		// `T | null` marks a nullable field.
		if base, ok := cutNullUnion(tsType); ok {
			nullable = true
			tsType = base
		}
		dt, err := parseTSType(tsType, interfaces)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out = append(out, &schema.Column{Name: name, IsNullable: nullable, DataType: dt})
	}
	return out, nil
}

func cutNullUnion(t string) (string, bool) {
	parts := strings.Split(t, "|")
	if len(parts) != 2 {
		return t, false
	}
	a, b := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if b == "null" {
		return a, true
	}
	if a == "null" {
		return b, true
	}
	return t, false
}

func parseTSType(t string, interfaces map[string]string) (schema.DataType, error) {
	t = strings.TrimSpace(t)
	if inner, ok := strings.CutSuffix(t, "[]"); ok {
		elem, err := parseTSType(inner, interfaces)
		if err != nil {
			return nil, err
		}
		return &schema.ArrayType{Elem: elem}, nil
	}
	if inner, ok := cutWrapper(t, "Array<", ">"); ok {
		elem, err := parseTSType(inner, interfaces)
		if err != nil {
			return nil, err
		}
		return &schema.ArrayType{Elem: elem}, nil
	}
	switch t {
	case "string":
		return &schema.TextType{}, nil
	case "number":
		return &schema.Float64Type{}, nil
	case "boolean":
		return &schema.BoolType{}, nil
	case "Date":
		return &schema.TimestampWithTimeZoneType{}, nil
	}
	if _, ok := interfaces[t]; ok {
		return &schema.NamedType{Name: t}, nil
	}
	return nil, fmt.Errorf("unsupported TypeScript type %q", t)
}

func cutWrapper(s, prefix, suffix string) (string, bool) {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix) {
		return s[len(prefix) : len(s)-len(suffix)], true
	}
	return "", false
}
