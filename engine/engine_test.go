package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/driver"
	_ "github.com/dbcrossbar/dbcrossbar/drivers"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fixtureSchema = `{
  "name": "people",
  "columns": [
    { "name": "id", "is_nullable": false, "data_type": "int64" },
    { "name": "name", "is_nullable": true, "data_type": "text" }
  ]
}`

func TestCopyCsvToCsvFile(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.csv", "id,name\n1,alice\n2,bob\n")
	out := filepath.Join(dir, "out.csv")

	written, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsError,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"csv:" + out}, written)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "id,name\n1,alice\n2,bob\n", string(data))
}

func TestCopyCsvDirConcatenatesShards(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "src") + "/"
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	writeFixture(t, srcDir, "a.csv", "id,name\n1,alice\n")
	writeFixture(t, srcDir, "b.csv", "id,name\n2,bob\n")
	out := filepath.Join(dir, "out.csv")

	_, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + srcDir,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsError,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "id,name\n1,alice\n2,bob\n", string(data))
}

func TestCopyCsvToDirWritesOneFilePerStream(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "src") + "/"
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	writeFixture(t, srcDir, "a.csv", "id,name\n1,alice\n")
	writeFixture(t, srcDir, "b.csv", "id,name\n2,bob\n")
	outDir := filepath.Join(dir, "out") + "/"

	written, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + srcDir,
		Dest:     "csv:" + outDir,
		IfExists: driver.IfExistsError,
	})
	require.NoError(t, err)
	require.Len(t, written, 2)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	require.Equal(t, []string{"a.csv", "b.csv"}, names)
}

func TestCopyRefusesToClobberWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.csv", "id\n1\n")
	out := writeFixture(t, dir, "out.csv", "old\n")

	_, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsError,
	})
	require.ErrorContains(t, err, "already exists")

	_, err = Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsOverwrite,
	})
	require.NoError(t, err)
}

func TestCopyJSONLinesRequiresSchema(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.jsonl", `{"id":1,"name":"alice"}`+"\n")
	out := filepath.Join(dir, "out.csv")

	_, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsError,
	})
	require.ErrorContains(t, err, "require an explicit --schema")
}

func TestCopyJSONLinesToCSVWithSchema(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.jsonl",
		`{"id":1,"name":"alice"}`+"\n"+`{"id":2}`+"\n")
	schemaPath := writeFixture(t, dir, "schema.json", fixtureSchema)
	out := filepath.Join(dir, "out.csv")

	_, err := Copy(context.Background(), CopyOptions{
		Source:        "csv:" + in,
		Dest:          "csv:" + out,
		SchemaLocator: "dbcrossbar-schema:" + schemaPath,
		IfExists:      driver.IfExistsError,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "id,name\n1,alice\n2,\n", string(data))
}

func TestCopyCSVToJSONLines(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.csv", "id,name\n1,alice\n")
	schemaPath := writeFixture(t, dir, "schema.json", fixtureSchema)
	out := filepath.Join(dir, "out.jsonl")

	_, err := Copy(context.Background(), CopyOptions{
		Source:        "csv:" + in,
		Dest:          "csv:" + out,
		SchemaLocator: "dbcrossbar-schema:" + schemaPath,
		IfExists:      driver.IfExistsError,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, `{"id":1,"name":"alice"}`+"\n", string(data))
}

func TestCopyVerifiesCapabilitiesBeforeDataFlows(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.csv", "id\n1\n")
	out := filepath.Join(dir, "out.csv")

	// csv sources don't support --where.
	_, err := Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		Where:    "id > 1",
		IfExists: driver.IfExistsError,
	})
	require.ErrorContains(t, err, "does not support --where")

	// csv destinations don't support upsert.
	_, err = Copy(context.Background(), CopyOptions{
		Source:   "csv:" + in,
		Dest:     "csv:" + out,
		IfExists: driver.IfExistsUpsertOn("id"),
	})
	require.ErrorContains(t, err, "does not support --if-exists=upsert-on:id")
	_, statErr := os.Stat(out)
	require.True(t, os.IsNotExist(statErr), "no data must flow when verification fails")
}

func TestSchemaConv(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeFixture(t, dir, "schema.json", fixtureSchema)
	outPath := filepath.Join(dir, "out.sql")

	err := SchemaConv(context.Background(),
		"dbcrossbar-schema:"+schemaPath, "postgres-sql:"+outPath,
		driver.IfExistsError, false)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"id" bigint NOT NULL`)
	require.Contains(t, string(data), `"name" text`)
}

func TestUnstableDriversAreGated(t *testing.T) {
	dir := t.TempDir()
	ts := writeFixture(t, dir, "types.ts", "export interface T { id: string; }")
	out := filepath.Join(dir, "out.json")

	err := SchemaConv(context.Background(),
		"dbcrossbar-ts:"+ts+"#T", "dbcrossbar-schema:"+out,
		driver.IfExistsError, false)
	require.ErrorContains(t, err, "--enable-unstable")

	err = SchemaConv(context.Background(),
		"dbcrossbar-ts:"+ts+"#T", "dbcrossbar-schema:"+out,
		driver.IfExistsError, true)
	require.NoError(t, err)
}

func TestCopyUnknownScheme(t *testing.T) {
	_, err := Copy(context.Background(), CopyOptions{
		Source: "mystery:thing", Dest: "csv:out.csv", IfExists: driver.IfExistsError,
	})
	require.ErrorContains(t, err, "unknown locator scheme")
}

func TestCountUnsupported(t *testing.T) {
	dir := t.TempDir()
	in := writeFixture(t, dir, "in.csv", "id\n1\n")
	_, err := Count(context.Background(), CountOptions{Source: "csv:" + in})
	require.ErrorContains(t, err, "does not support counting")
}

func TestFeaturesListing(t *testing.T) {
	infos := driver.Drivers()
	var schemes []string
	for _, info := range infos {
		schemes = append(schemes, info.Scheme)
	}
	for _, want := range []string{"bigquery", "bigquery-schema", "csv", "dbcrossbar-schema",
		"dbcrossbar-ts", "gs", "postgres", "postgres-sql", "redshift", "s3", "trino", "trino-sql"} {
		require.Contains(t, schemes, want)
	}
	require.True(t, sort.StringsAreSorted(schemes))
	for _, info := range infos {
		if info.Scheme == "dbcrossbar-ts" {
			require.True(t, info.Features.Unstable)
		}
		require.False(t, strings.Contains(info.Features.String(), "UNKNOWN"))
	}
}
