package csvdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/schema"
)

func testTable() (*schema.Schema, *schema.Table) {
	t := &schema.Table{
		Name: "t",
		Columns: []*schema.Column{
			{Name: "id", DataType: &schema.Int64Type{}},
			{Name: "name", IsNullable: true, DataType: &schema.TextType{}},
			{Name: "ok", IsNullable: true, DataType: &schema.BoolType{}},
			{Name: "tags", IsNullable: true, DataType: &schema.ArrayType{Elem: &schema.TextType{}}},
		},
	}
	return schema.FromSingleTable(t), t
}

func TestJSONLinesToCSV(t *testing.T) {
	s, table := testTable()
	in := FromBytes("in.jsonl", []byte(
		`{"id":1,"name":"alice","ok":true,"tags":["a","b"]}`+"\n"+
			`{"id":2,"ok":false}`+"\n"))
	out, err := JSONLinesToCSV(context.Background(), s, table, in).ToBytes()
	require.NoError(t, err)
	require.Equal(t,
		"id,name,ok,tags\n"+
			`1,alice,t,"[""a"",""b""]"`+"\n"+
			"2,,f,\n",
		string(out))
}

func TestJSONLinesToCSVRejectsNullInNotNullColumn(t *testing.T) {
	s, table := testTable()
	in := FromBytes("in.jsonl", []byte(`{"name":"no id"}`+"\n"))
	_, err := JSONLinesToCSV(context.Background(), s, table, in).ToBytes()
	require.ErrorContains(t, err, `unexpected NULL value in column "id"`)
}

func TestJSONLinesToCSVDropsExtraFields(t *testing.T) {
	s, table := testTable()
	in := FromBytes("in.jsonl", []byte(`{"id":1,"extra":"x"}`+"\n"))
	out, err := JSONLinesToCSV(context.Background(), s, table, in).ToBytes()
	require.NoError(t, err)
	require.Equal(t, "id,name,ok,tags\n1,,,\n", string(out))
}

func TestCSVToJSONLines(t *testing.T) {
	s, table := testTable()
	in := FromBytes("in.csv", []byte(
		"id,name,ok,tags\n"+
			`1,alice,t,"[""a"",""b""]"`+"\n"+
			"2,,f,\n"))
	out, err := CSVToJSONLines(context.Background(), s, table, in).ToBytes()
	require.NoError(t, err)
	require.Equal(t,
		`{"id":1,"name":"alice","ok":true,"tags":["a","b"]}`+"\n"+
			`{"id":2,"name":"","ok":false,"tags":null}`+"\n",
		string(out))
}

func TestCSVToJSONLinesChecksHeaderOrder(t *testing.T) {
	s, table := testTable()
	in := FromBytes("in.csv", []byte("name,id,ok,tags\n"))
	_, err := CSVToJSONLines(context.Background(), s, table, in).ToBytes()
	require.ErrorContains(t, err, `header column 0 is "name"`)
}

func TestParseBoolCell(t *testing.T) {
	for _, tt := range []struct {
		cell string
		want bool
	}{
		{"1", true}, {"y", true}, {"Y", true}, {"yes", true}, {"YES", true},
		{"on", true}, {"On", true}, {"t", true}, {"T", true}, {"true", true},
		{"0", false}, {"n", false}, {"no", false}, {"No", false},
		{"off", false}, {"OFF", false}, {"f", false}, {"F", false}, {"false", false},
	} {
		got, err := ParseBoolCell(tt.cell)
		require.NoError(t, err, "cell %q", tt.cell)
		require.Equal(t, tt.want, got, "cell %q", tt.cell)
	}
	_, err := ParseBoolCell("10")
	require.Error(t, err)
}

func TestCellToJSONValidatesUUID(t *testing.T) {
	s, _ := testTable()
	_, err := CellToJSON(s, &schema.UUIDType{}, "not-a-uuid")
	require.ErrorContains(t, err, "UUID")
	v, err := CellToJSON(s, &schema.UUIDType{}, "f1b7bda0-1f2c-4f4f-a6ae-3dbea5d32a29")
	require.NoError(t, err)
	require.Equal(t, "f1b7bda0-1f2c-4f4f-a6ae-3dbea5d32a29", v)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("csv")
	require.NoError(t, err)
	require.Equal(t, FormatCSV, f)
	f, err = ParseFormat("jsonl")
	require.NoError(t, err)
	require.Equal(t, FormatJSONLines, f)
	_, err = ParseFormat("parquet")
	require.Error(t, err)
}
