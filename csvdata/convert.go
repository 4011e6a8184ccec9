package csvdata

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
	"github.com/dbcrossbar/dbcrossbar/schema"
)

// Format names a data-plane wire format.
type Format string

// Supported wire formats.
const (
	FormatCSV       Format = "csv"
	FormatJSONLines Format = "jsonl"
)

// ParseFormat parses a --from-format/--to-format value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv":
		return FormatCSV, nil
	case "jsonl":
		return FormatJSONLines, nil
	default:
		return "", fmt.Errorf("csvdata: unknown format %q", s)
	}
}

// JSONLinesToCSV converts a JSON Lines stream into a CSV stream. Every
// record is projected onto the schema's declared column order: missing
// fields become empty cells (rejected for NOT NULL columns), extra
// fields are dropped with a warning. The conversion is synchronous
// CPU-bound work, so it runs on its own goroutine with the pipe
// providing the bounded byte channel back to the async side.
func JSONLinesToCSV(ctx context.Context, s *schema.Schema, table *schema.Table, in *Stream) *Stream {
	pr, pw := io.Pipe()
	go func() {
		defer in.Data.Close()
		log := logctx.From(ctx)
		wtr := csv.NewWriter(pw)
		if err := wtr.Write(table.ColumnNames()); err != nil {
			pw.CloseWithError(err)
			return
		}
		scanner := bufio.NewScanner(in.Data)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		row := make([]string, len(table.Columns))
		warned := map[string]bool{}
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(line, &obj); err != nil {
				pw.CloseWithError(fmt.Errorf("csvdata: stream %q: expected JSON object: %w", in.Name, err))
				return
			}
			for i, col := range table.Columns {
				cell, err := jsonFieldToCell(s, col, obj[col.Name])
				if err != nil {
					pw.CloseWithError(fmt.Errorf("csvdata: stream %q: %w", in.Name, err))
					return
				}
				row[i] = cell
			}
			for name := range obj {
				if _, ok := table.Column(name); !ok && !warned[name] {
					warned[name] = true
					log.Warn("dropping field not present in schema", "field", name, "stream", in.Name)
				}
			}
			if err := wtr.Write(row); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := scanner.Err(); err != nil {
			pw.CloseWithError(err)
			return
		}
		wtr.Flush()
		pw.CloseWithError(wtr.Error())
	}()
	return &Stream{Name: in.Name, Data: pr}
}

func jsonFieldToCell(s *schema.Schema, col *schema.Column, raw json.RawMessage) (string, error) {
	if raw == nil || string(raw) == "null" {
		if !col.IsNullable {
			return "", fmt.Errorf("unexpected NULL value in column %q", col.Name)
		}
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}
	cell, err := JSONToCell(s, col.DataType, v)
	if err != nil {
		return "", fmt.Errorf("column %q: %w", col.Name, err)
	}
	return cell, nil
}

// CSVToJSONLines converts a CSV stream into a JSON Lines stream using
// the schema to type each cell.
func CSVToJSONLines(ctx context.Context, s *schema.Schema, table *schema.Table, in *Stream) *Stream {
	pr, pw := io.Pipe()
	go func() {
		defer in.Data.Close()
		rdr := csv.NewReader(in.Data)
		rdr.FieldsPerRecord = len(table.Columns)
		hdr, err := rdr.Read()
		if err != nil {
			pw.CloseWithError(fmt.Errorf("csvdata: stream %q: cannot read header: %w", in.Name, err))
			return
		}
		for i, col := range table.Columns {
			if hdr[i] != col.Name {
				pw.CloseWithError(fmt.Errorf("csvdata: stream %q: header column %d is %q, schema says %q", in.Name, i, hdr[i], col.Name))
				return
			}
		}
		w := bufio.NewWriter(pw)
		for {
			row, err := rdr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			obj := make(map[string]any, len(table.Columns))
			for i, col := range table.Columns {
				v, err := csvCellToJSONField(s, col, row[i])
				if err != nil {
					pw.CloseWithError(fmt.Errorf("csvdata: stream %q: %w", in.Name, err))
					return
				}
				obj[col.Name] = v
			}
			line, err := json.Marshal(obj)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			line = append(line, '\n')
			if _, err := w.Write(line); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		if err := w.Flush(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return &Stream{Name: in.Name, Data: pr}
}

func csvCellToJSONField(s *schema.Schema, col *schema.Column, cell string) (any, error) {
	if cell == "" {
		if _, isText := col.DataType.(*schema.TextType); isText {
			return "", nil
		}
		if !col.IsNullable {
			return nil, fmt.Errorf("unexpected NULL value in column %q", col.Name)
		}
		return nil, nil
	}
	v, err := CellToJSON(s, col.DataType, cell)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col.Name, err)
	}
	return v, nil
}
