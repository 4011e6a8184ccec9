package driverargs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHandlesNestedKeys(t *testing.T) {
	args, err := Parse([]string{"a=b", "c.d=x", "c.e[]=y", "c[e][]=z"})
	require.NoError(t, err)
	obj, err := args.ToJSON()
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"a": "b",
		"c": map[string]any{
			"d": "x",
			"e": []any{"y", "z"},
		},
	}, obj)
}

func TestParseDetectsConflicts(t *testing.T) {
	for _, conflict := range [][]string{
		{"a=x", "a=y"},
		{"a=x", "a.b=y"},
		{"a=x", "a[]=y"},
	} {
		_, err := Parse(conflict)
		require.Error(t, err, "args %v", conflict)
		// The error must point at both occurrences.
		require.ErrorContains(t, err, conflict[1])
		require.ErrorContains(t, err, conflict[0])
	}
}

func TestParseRejectsMalformedNames(t *testing.T) {
	for _, bad := range []string{"", "=x", "1a=x", "a.=x", "a[=x", "a[]b=x", "a b=x"} {
		_, err := Parse([]string{bad})
		require.Error(t, err, "arg %q", bad)
	}
}

func TestDecode(t *testing.T) {
	args, err := Parse([]string{"labels.team=data", "labels.env=prod", "partition=day"})
	require.NoError(t, err)
	var opts struct {
		Labels    map[string]string `json:"labels"`
		Partition string            `json:"partition"`
	}
	require.NoError(t, args.Decode(&opts))
	require.Equal(t, "data", opts.Labels["team"])
	require.Equal(t, "prod", opts.Labels["env"])
	require.Equal(t, "day", opts.Partition)
}

func TestValueMayContainAnything(t *testing.T) {
	args, err := Parse([]string{"query=a=b&c[0]=d"})
	require.NoError(t, err)
	obj, err := args.ToJSON()
	require.NoError(t, err)
	require.Equal(t, "a=b&c[0]=d", obj["query"])
}
