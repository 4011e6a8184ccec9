package gs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	l, err := Parse("gs://example-bucket/tmp/")
	require.NoError(t, err)
	require.Equal(t, "gs://example-bucket/tmp/", l.String())
	require.Equal(t, "example-bucket", l.URL().Bucket)

	_, err = Parse("gs://example-bucket/file.csv")
	require.ErrorContains(t, err, "must end with a slash")
	_, err = Parse("s3://bucket/x/")
	require.Error(t, err)
}

func TestObjectNaming(t *testing.T) {
	require.Equal(t, "chunk_0001", chunkName("tmp/", "tmp/chunk_0001.csv"))
	require.Equal(t, "tmp/part.csv", objectPath("tmp/", "part", 3))
	require.Equal(t, "tmp/chunk_0003.csv", objectPath("tmp/", "", 3))
}
