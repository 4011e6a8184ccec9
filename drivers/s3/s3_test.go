package s3

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	l, err := Parse("s3://bucket/path/to/dir/")
	require.NoError(t, err)
	require.Equal(t, "s3://bucket/path/to/dir/", l.String())
	require.Equal(t, "bucket", l.URL().Bucket)
	require.Equal(t, "path/to/dir/", l.URL().Path)

	_, err = Parse("s3://bucket/file.csv")
	require.ErrorContains(t, err, "must end with a slash")
	_, err = Parse("s3://")
	require.Error(t, err)
}
