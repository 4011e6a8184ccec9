package driver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbcrossbar/dbcrossbar/driver/driverargs"
)

type fakeLocator struct {
	Base
	s string
}

func (f *fakeLocator) String() string     { return f.s }
func (f *fakeLocator) Features() Features { return Features{} }

func TestRegisterAndParse(t *testing.T) {
	Register("fake-test", Features{}, func(s string) (Locator, error) {
		return &fakeLocator{Base: Base{Name: "fake-test"}, s: s}, nil
	})
	loc, err := Parse("fake-test:whatever/else")
	require.NoError(t, err)
	require.Equal(t, "fake-test:whatever/else", loc.String())

	_, err = Parse("no-such-scheme:x")
	require.ErrorContains(t, err, "unknown locator scheme")

	_, err = Parse("not a locator")
	require.ErrorContains(t, err, "cannot parse locator")

	require.Panics(t, func() {
		Register("fake-test", Features{}, func(s string) (Locator, error) { return nil, nil })
	})
}

func TestParseIfExists(t *testing.T) {
	ie, err := ParseIfExists("error")
	require.NoError(t, err)
	require.True(t, ie.IsError())

	ie, err = ParseIfExists("append")
	require.NoError(t, err)
	require.True(t, ie.IsAppend())

	ie, err = ParseIfExists("overwrite")
	require.NoError(t, err)
	require.True(t, ie.IsOverwrite())

	ie, err = ParseIfExists("upsert-on:key1,key2")
	require.NoError(t, err)
	require.Equal(t, []string{"key1", "key2"}, ie.UpsertOn())
	require.Equal(t, "upsert-on:key1,key2", ie.String())

	_, err = ParseIfExists("upsert-on:")
	require.Error(t, err)
	_, err = ParseIfExists("replace")
	require.Error(t, err)
}

func TestIfExistsVerify(t *testing.T) {
	features := IfExistsFeatureError | IfExistsFeatureOverwrite
	require.NoError(t, IfExistsError.Verify(features))
	require.NoError(t, IfExistsOverwrite.Verify(features))
	require.ErrorContains(t, IfExistsAppend.Verify(features),
		"does not support --if-exists=append")
	require.ErrorContains(t, IfExistsUpsertOn("k").Verify(features),
		"does not support --if-exists=upsert-on:k")
}

func TestSourceArgsVerify(t *testing.T) {
	args, err := driverargs.Parse([]string{"a=b"})
	require.NoError(t, err)

	src := SourceArgs{DriverArgs: args, WhereClause: "x > 1"}
	_, err = src.Verify(Features{})
	require.ErrorContains(t, err, "does not support --from-arg")

	_, err = src.Verify(Features{SourceArgs: SourceArgDriverArgs})
	require.ErrorContains(t, err, "does not support --where")

	v, err := src.Verify(Features{SourceArgs: SourceArgDriverArgs | SourceArgWhereClause})
	require.NoError(t, err)
	require.Equal(t, "x > 1", v.WhereClause())
}

func TestDestArgsVerify(t *testing.T) {
	dst := DestArgs{IfExists: IfExistsUpsertOn("id")}
	_, err := dst.Verify(Features{DestIfExists: IfExistsFeatureError | IfExistsFeatureOverwrite})
	require.ErrorContains(t, err, "upsert")

	v, err := dst.Verify(Features{DestIfExists: IfExistsFeatureUpsert})
	require.NoError(t, err)
	require.Equal(t, []string{"id"}, v.IfExists().UpsertOn())
}

func TestTemporaryStorage(t *testing.T) {
	ts := TemporaryStorage{"s3://bucket/tmp/", "gs://bucket/tmp/"}
	got, ok := ts.FindScheme("gs://")
	require.True(t, ok)
	require.Equal(t, "gs://bucket/tmp/", got)

	_, ok = ts.FindScheme("bigquery:")
	require.False(t, ok)

	_, err := ts.FindSchemeOrErr("bigquery:")
	require.ErrorContains(t, err, "--temporary=bigquery:")

	p1 := TemporaryPrefix("gs://bucket/tmp")
	p2 := TemporaryPrefix("gs://bucket/tmp")
	require.NotEqual(t, p1, p2)
	require.Contains(t, p1, "gs://bucket/tmp/dbcrossbar-")
	require.Equal(t, byte('/'), p1[len(p1)-1])
}
