package csvdata

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// Concat merges a stream of CSV streams into a single CSV stream,
// removing the header from every stream except the first. The merge is
// zero-copy apart from the header scan: bytes flow through an io.Pipe,
// so the producer blocks until the consumer reads.
func Concat(ctx context.Context, streams Streams) *Stream {
	pr, pw := io.Pipe()
	go func() {
		first := true
		for item := range streams {
			if item.Err != nil {
				pw.CloseWithError(item.Err)
				return
			}
			cs := item.Stream
			logctx.From(ctx).Debug("concatenating stream", "stream", cs.Name)
			r := io.Reader(cs.Data)
			if !first {
				rest, err := skipHeader(cs.Data)
				if err != nil {
					cs.Data.Close()
					pw.CloseWithError(fmt.Errorf("csvdata: stream %q: %w", cs.Name, err))
					return
				}
				r = rest
			}
			first = false
			if _, err := io.Copy(pw, r); err != nil {
				cs.Data.Close()
				pw.CloseWithError(err)
				return
			}
			cs.Data.Close()
		}
		pw.Close()
	}()
	return &Stream{Name: "combined", Data: pr}
}

// skipHeader consumes the header line of a CSV document and returns a
// reader for everything after it: the bytes read past the header while
// scanning, chained with the unread remainder of r.
func skipHeader(r io.Reader) (io.Reader, error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			hl, herr := headerLength(buf)
			if herr != nil {
				return nil, herr
			}
			if hl > 0 {
				return io.MultiReader(bytes.NewReader(buf[hl:]), r), nil
			}
		}
		if err == io.EOF {
			return nil, fmt.Errorf("end of CSV file while reading headers")
		}
		if err != nil {
			return nil, err
		}
	}
}

// headerLength reports the length of a complete CSV header in data,
// including its line terminator, or 0 if the header is not yet complete.
//
// We don't use encoding/csv here: it goes to great lengths to recover
// from malformed input, which makes it useless for deciding whether we
// have a complete header line. Quoted headers may contain embedded
// newlines, so we reject them as unsupported rather than guess.
func headerLength(data []byte) (int, error) {
	pos := bytes.IndexByte(data, '\n')
	if pos < 0 {
		return 0, nil
	}
	if bytes.IndexByte(data[:pos], '"') >= 0 {
		return 0, fmt.Errorf("cannot yet concatenate CSV streams with quoted headers")
	}
	return pos + 1, nil
}
