package csvdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// Rechunk concatenates a stream of CSV streams and re-emits it as a
// stream of CSV streams each carrying approximately chunkSize bytes,
// with the header replicated at the start of every output stream.
//
// Records are never split across chunks. Each output stream is
// published to the returned channel before any bytes (including the
// header) are written to it, so that a consumer can attach and keep the
// producer from stalling. All channels and pipes are bounded: the
// worker blocks whenever the downstream consumer falls behind.
func Rechunk(ctx context.Context, chunkSize int, streams Streams) Streams {
	out := make(chan Item, 1)
	combined := Concat(ctx, streams)
	go func() {
		defer close(out)
		log := logctx.From(ctx)

		rdr := csv.NewReader(combined.Data)
		// Cells may hold JSON documents of arbitrary shape.
		rdr.LazyQuotes = true
		rdr.FieldsPerRecord = -1
		defer combined.Data.Close()

		hdr, err := rdr.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			out <- Item{Err: fmt.Errorf("csvdata: cannot read chunk header: %w", err)}
			return
		}

		// Chunks are opened lazily, on the row that starts them: the
		// Stream is published first, then the header, then the row.
		// Publishing before writing lets the consumer attach before the
		// unbuffered pipe would block; opening lazily avoids emitting an
		// empty chunk when the input ends on a chunk boundary.
		var (
			chunkID int
			pw      *io.PipeWriter
			wtr     *csv.Writer
			cw      *countingWriter
		)
		openChunk := func() error {
			chunkID++
			log.Debug("starting new CSV chunk", "chunk", chunkID)
			var pr *io.PipeReader
			pr, pw = io.Pipe()
			cw = &countingWriter{w: pw}
			wtr = csv.NewWriter(cw)
			out <- Item{Stream: &Stream{Name: fmt.Sprintf("chunk_%04d", chunkID), Data: pr}}
			return wtr.Write(hdr)
		}
		closeChunk := func(err error) {
			if pw == nil {
				return
			}
			wtr.Flush()
			if err != nil {
				pw.CloseWithError(err)
			} else {
				pw.Close()
			}
			pw = nil
		}
		fail := func(err error) {
			closeChunk(err)
			out <- Item{Err: err}
		}

		for {
			row, err := rdr.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				fail(fmt.Errorf("csvdata: cannot read row: %w", err))
				return
			}
			if pw == nil {
				if err := openChunk(); err != nil {
					fail(fmt.Errorf("csvdata: cannot write chunk header: %w", err))
					return
				}
			}
			if err := wtr.Write(row); err != nil {
				fail(fmt.Errorf("csvdata: cannot write row: %w", err))
				return
			}
			wtr.Flush()
			if cw.n >= chunkSize {
				closeChunk(nil)
			}
		}
		closeChunk(nil)
		log.Debug("finished rechunking CSV data", "chunks", chunkID)
	}()
	return out
}

// countingWriter tracks how many bytes reached the underlying writer.
// Wrapped under a csv.Writer it only sees flushed data, which keeps the
// chunk-size check approximate in the same way the buffer does.
type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
