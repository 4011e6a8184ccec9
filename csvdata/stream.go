// Package csvdata implements the streaming data plane: CSV byte streams,
// stream-of-streams plumbing, concatenation, rechunking, and conversion
// between CSV and JSON Lines.
//
// The canonical intra-process data carrier is a Stream: a name for
// diagnostics plus a byte stream holding one well-formed CSV document
// whose first record is the header. Sources hand the engine a
// stream-of-streams so that files, objects and table shards are opened
// lazily, a bounded number at a time.
package csvdata

import (
	"bytes"
	"fmt"
	"io"
)

type (
	// A Stream is one CSV document: a diagnostic name plus its bytes.
	// Streams are consumed exactly once; reading Data to EOF and
	// closing it are the consumer's responsibility.
	Stream struct {
		Name string
		Data io.ReadCloser
	}

	// An Item is one element of a stream-of-streams: either a Stream
	// or the error that ended production.
	Item struct {
		Stream *Stream
		Err    error
	}

	// Streams is a lazy stream of CSV streams. Producers close the
	// channel when done; an Item carrying a non-nil Err is always the
	// final item. Channels are bounded so that producers block instead
	// of buffering row data.
	Streams <-chan Item
)

// FromBytes builds an in-memory Stream.
func FromBytes(name string, data []byte) *Stream {
	return &Stream{Name: name, Data: io.NopCloser(bytes.NewReader(data))}
}

// FromReader builds a Stream reading from r.
func FromReader(name string, r io.ReadCloser) *Stream {
	return &Stream{Name: name, Data: r}
}

// ToBytes drains the stream into memory. Intended for tests and for
// small control-plane payloads, never for row data in the main path.
func (s *Stream) ToBytes() ([]byte, error) {
	defer s.Data.Close()
	data, err := io.ReadAll(s.Data)
	if err != nil {
		return nil, fmt.Errorf("csvdata: reading stream %q: %w", s.Name, err)
	}
	return data, nil
}

// SliceStreams wraps already-materialized streams as a stream-of-streams.
func SliceStreams(streams ...*Stream) Streams {
	ch := make(chan Item)
	go func() {
		defer close(ch)
		for _, s := range streams {
			ch <- Item{Stream: s}
		}
	}()
	return ch
}

// FailedStreams returns a stream-of-streams that immediately reports err.
func FailedStreams(err error) Streams {
	ch := make(chan Item, 1)
	ch <- Item{Err: err}
	close(ch)
	return ch
}

// CollectStreams drains a stream-of-streams into memory, returning each
// stream's bytes in production order. Test helper.
func CollectStreams(streams Streams) ([][]byte, error) {
	var out [][]byte
	for item := range streams {
		if item.Err != nil {
			return nil, item.Err
		}
		data, err := item.Stream.ToBytes()
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}
