package csvdata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRechunkHonorsChunkSize(t *testing.T) {
	// Two streams of two rows each, chunk size 7: every output chunk
	// holds exactly one header plus one row.
	streams := SliceStreams(
		FromBytes("one", []byte("a,b\n1,1\n2,1\n")),
		FromBytes("two", []byte("a,b\n1,2\n2,2\n")),
	)
	chunks, err := CollectStreams(Rechunk(context.Background(), 7, streams))
	require.NoError(t, err)
	want := []string{"a,b\n1,1\n", "a,b\n2,1\n", "a,b\n1,2\n", "a,b\n2,2\n"}
	require.Len(t, chunks, len(want))
	for i, w := range want {
		require.Equal(t, w, string(chunks[i]))
	}
}

func TestRechunkUnboundedYieldsConcatenation(t *testing.T) {
	streams := SliceStreams(
		FromBytes("one", []byte("a,b\n1,1\n2,1\n")),
		FromBytes("two", []byte("a,b\n1,2\n")),
	)
	chunks, err := CollectStreams(Rechunk(context.Background(), 1<<40, streams))
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "a,b\n1,1\n2,1\n1,2\n", string(chunks[0]))
}

func TestRechunkHeaderOnlyInputYieldsNoChunks(t *testing.T) {
	streams := SliceStreams(FromBytes("one", []byte("a,b\n")))
	chunks, err := CollectStreams(Rechunk(context.Background(), 7, streams))
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestRechunkIsIdempotentAtRecordLevel(t *testing.T) {
	input := "a,b\n1,1\n2,1\n1,2\n2,2\n"
	once, err := CollectStreams(Rechunk(context.Background(), 7, SliceStreams(FromBytes("in", []byte(input)))))
	require.NoError(t, err)

	var rechunked []*Stream
	for _, data := range once {
		rechunked = append(rechunked, FromBytes("again", data))
	}
	twice, err := CollectStreams(Rechunk(context.Background(), 7, SliceStreams(rechunked...)))
	require.NoError(t, err)
	require.Equal(t, once, twice)
}

func TestRechunkNeverSplitsRecords(t *testing.T) {
	// Chunk size of 1 byte still emits whole records.
	streams := SliceStreams(FromBytes("one", []byte("a,b\nlong-value-1,1\nlong-value-2,2\n")))
	chunks, err := CollectStreams(Rechunk(context.Background(), 1, streams))
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "a,b\nlong-value-1,1\n", string(chunks[0]))
	require.Equal(t, "a,b\nlong-value-2,2\n", string(chunks[1]))
}
