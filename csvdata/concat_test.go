package csvdata

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// dribbleReader returns at most chunk bytes per Read, the way pipes and
// network readers deliver whatever happens to be available.
type dribbleReader struct {
	r     io.Reader
	chunk int
}

func (d *dribbleReader) Read(p []byte) (int, error) {
	if len(p) > d.chunk {
		p = p[:d.chunk]
	}
	return d.r.Read(p)
}

func dribbleStream(name, data string, chunk int) *Stream {
	return FromReader(name, io.NopCloser(&dribbleReader{r: strings.NewReader(data), chunk: chunk}))
}

func TestConcatStripsAllButFirstHeader(t *testing.T) {
	streams := SliceStreams(
		FromBytes("one", []byte("a,b\n1,2\n")),
		FromBytes("two", []byte("a,b\n3,4\n")),
	)
	combined, err := Concat(context.Background(), streams).ToBytes()
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n3,4\n", string(combined))
}

func TestConcatSingleStreamIsVerbatim(t *testing.T) {
	streams := SliceStreams(FromBytes("one", []byte("a,b\r\n1,2\r\n")))
	combined, err := Concat(context.Background(), streams).ToBytes()
	require.NoError(t, err)
	require.Equal(t, "a,b\r\n1,2\r\n", string(combined))
}

func TestConcatPreservesBytesAfterShortHeaderReads(t *testing.T) {
	// The header scan must not swallow data delivered after the read
	// that completed the header line: every record of a later stream
	// has to survive, even when its reader dribbles a few bytes at a
	// time and the stream is much larger than the scan buffer.
	var rows strings.Builder
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&rows, "%d,row-%08d\n", i, i)
	}
	second := "a,b\n" + rows.String()

	streams := SliceStreams(
		FromBytes("one", []byte("a,b\n1,2\n")),
		dribbleStream("two", second, 5),
	)
	combined, err := Concat(context.Background(), streams).ToBytes()
	require.NoError(t, err)
	require.Equal(t, "a,b\n1,2\n"+rows.String(), string(combined))
}

func TestConcatRejectsMissingHeader(t *testing.T) {
	streams := SliceStreams(
		FromBytes("one", []byte("a,b\n1,2\n")),
		FromBytes("two", []byte("a,b")),
	)
	_, err := Concat(context.Background(), streams).ToBytes()
	require.ErrorContains(t, err, "end of CSV file while reading headers")
}

func TestHeaderLengthCornerCases(t *testing.T) {
	for _, tt := range []struct {
		data string
		want int
	}{
		{"", 0},
		{"a,b,c", 0},
		{"a,b,c\n", 6},
		{"a,b,c\nd,e,f\n", 6},
		{"a,b,c\r\n", 7},
	} {
		got, err := headerLength([]byte(tt.data))
		require.NoError(t, err)
		require.Equal(t, tt.want, got, "data %q", tt.data)
	}

	// Quoted headers may hide embedded newlines; we refuse to guess.
	_, err := headerLength([]byte("a,\"\n\",c\n"))
	require.ErrorContains(t, err, "quoted headers")
}
