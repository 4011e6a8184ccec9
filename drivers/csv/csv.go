// Package csv implements the csv: driver, which reads and writes local
// CSV (or JSON Lines) files, directories of files, and standard I/O.
package csv

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
)

// Scheme is this driver's locator scheme.
const Scheme = "csv"

func init() {
	driver.Register(Scheme, (&Locator{}).Features(), func(s string) (driver.Locator, error) { return Parse(s) })
}

// A Locator is a csv: locator: a file, a directory (trailing slash), or
// "-" for standard I/O.
type Locator struct {
	driver.Base
	path string
}

// Parse parses a csv: locator.
func Parse(s string) (*Locator, error) {
	path, ok := strings.CutPrefix(s, Scheme+":")
	if !ok {
		return nil, fmt.Errorf("csv: expected csv: locator, got %q", s)
	}
	if path == "" {
		return nil, fmt.Errorf("csv: empty path in %q", s)
	}
	return &Locator{Base: driver.Base{Name: Scheme}, path: path}, nil
}

func (l *Locator) String() string { return Scheme + ":" + l.path }

// IsDir reports whether this locator names a directory.
func (l *Locator) IsDir() bool { return strings.HasSuffix(l.path, "/") }

// IsStdio reports whether this locator names standard I/O.
func (l *Locator) IsStdio() bool { return l.path == "-" }

// Features implements driver.Locator.
func (l *Locator) Features() driver.Features {
	return driver.Features{
		Locator:      driver.FeatureLocalData | driver.FeatureWriteLocalData,
		DestIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureOverwrite,
	}
}

// LocalData implements driver.Locator.
func (l *Locator) LocalData(ctx context.Context, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs) (csvdata.Streams, error) {
	format, err := l.sourceFormat(src)
	if err != nil {
		return nil, err
	}
	if format == csvdata.FormatJSONLines && shared.Schema() == nil {
		// We don't try to infer schemas from JSON Lines data.
		return nil, fmt.Errorf("csv: JSON Lines sources require an explicit --schema")
	}

	out := make(chan csvdata.Item, 1)
	go func() {
		defer close(out)
		emit := func(stream *csvdata.Stream) bool {
			if format == csvdata.FormatJSONLines {
				table, err := shared.Schema().MainTable()
				if err != nil {
					out <- csvdata.Item{Err: err}
					return false
				}
				stream = csvdata.JSONLinesToCSV(ctx, shared.Schema(), table, stream)
			}
			out <- csvdata.Item{Stream: stream}
			return true
		}
		switch {
		case l.IsStdio():
			emit(csvdata.FromReader("stdin", os.Stdin))
		case l.IsDir():
			paths, err := l.listFiles()
			if err != nil {
				out <- csvdata.Item{Err: err}
				return
			}
			for _, path := range paths {
				f, err := os.Open(path)
				if err != nil {
					out <- csvdata.Item{Err: fmt.Errorf("csv: opening %s: %w", path, err)}
					return
				}
				if !emit(csvdata.FromReader(streamName(l.path, path), f)) {
					return
				}
			}
		default:
			f, err := os.Open(l.path)
			if err != nil {
				out <- csvdata.Item{Err: fmt.Errorf("csv: opening %s: %w", l.path, err)}
				return
			}
			emit(csvdata.FromReader(streamName(filepath.Dir(l.path), l.path), f))
		}
	}()
	return out, nil
}

func (l *Locator) listFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(l.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".csv", ".jsonl":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("csv: walking %s: %w", l.path, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// WriteLocalData implements driver.Locator.
func (l *Locator) WriteLocalData(ctx context.Context, data csvdata.Streams, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) (<-chan driver.WriteResult, error) {
	format, err := l.destFormat(dst)
	if err != nil {
		return nil, err
	}
	if format == csvdata.FormatJSONLines && shared.Schema() == nil {
		return nil, fmt.Errorf("csv: JSON Lines destinations require an explicit --schema")
	}
	results := make(chan driver.WriteResult, 1)
	go func() {
		defer close(results)
		switch {
		case l.IsStdio():
			combined := l.maybeToJSONL(ctx, format, shared, csvdata.Concat(ctx, data))
			if _, err := io.Copy(os.Stdout, combined.Data); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			combined.Data.Close()
			results <- driver.WriteResult{Locator: l.String()}
		case l.IsDir():
			if err := l.prepareDir(dst.IfExists()); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			// One file per stream, written in parallel up to the
			// --max-streams bound.
			g, _ := errgroup.WithContext(ctx)
			g.SetLimit(shared.MaxStreams())
			n := 0
			for item := range data {
				if item.Err != nil {
					g.Wait()
					results <- driver.WriteResult{Err: item.Err}
					return
				}
				n++
				stream := l.maybeToJSONL(ctx, format, shared, item.Stream)
				path := filepath.Join(l.path, fmt.Sprintf("%s.%s", baseName(stream.Name, n), format))
				g.Go(func() error {
					if err := writeFile(path, stream); err != nil {
						return err
					}
					results <- driver.WriteResult{Locator: Scheme + ":" + path}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				results <- driver.WriteResult{Err: err}
			}
		default:
			if err := checkFileIfExists(l.path, dst.IfExists()); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			combined := l.maybeToJSONL(ctx, format, shared, csvdata.Concat(ctx, data))
			if err := writeFile(l.path, combined); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			results <- driver.WriteResult{Locator: l.String()}
		}
	}()
	return results, nil
}

func (l *Locator) maybeToJSONL(ctx context.Context, format csvdata.Format, shared *driver.VerifiedSharedArgs, stream *csvdata.Stream) *csvdata.Stream {
	if format != csvdata.FormatJSONLines {
		return stream
	}
	table, err := shared.Schema().MainTable()
	if err != nil {
		return &csvdata.Stream{Name: stream.Name, Data: failReader{err}}
	}
	return csvdata.CSVToJSONLines(ctx, shared.Schema(), table, stream)
}

func (l *Locator) sourceFormat(src *driver.VerifiedSourceArgs) (csvdata.Format, error) {
	if src.Format() != "" {
		return csvdata.ParseFormat(src.Format())
	}
	if strings.HasSuffix(l.path, ".jsonl") {
		return csvdata.FormatJSONLines, nil
	}
	return csvdata.FormatCSV, nil
}

func (l *Locator) destFormat(dst *driver.VerifiedDestArgs) (csvdata.Format, error) {
	if dst.Format() != "" {
		return csvdata.ParseFormat(dst.Format())
	}
	if strings.HasSuffix(l.path, ".jsonl") {
		return csvdata.FormatJSONLines, nil
	}
	return csvdata.FormatCSV, nil
}

func (l *Locator) prepareDir(ifExists driver.IfExists) error {
	entries, err := os.ReadDir(l.path)
	if os.IsNotExist(err) {
		return os.MkdirAll(l.path, 0o755)
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	switch {
	case ifExists.IsOverwrite():
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(l.path, e.Name())); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("csv: directory %s is not empty (pass --if-exists=overwrite to replace it)", l.path)
	}
}

func checkFileIfExists(path string, ifExists driver.IfExists) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if !ifExists.IsOverwrite() {
		return fmt.Errorf("csv: file %s already exists (pass --if-exists=overwrite to replace it)", path)
	}
	return nil
}

func writeFile(path string, stream *csvdata.Stream) error {
	defer stream.Data.Close()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv: creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, stream.Data); err != nil {
		f.Close()
		return fmt.Errorf("csv: writing %s: %w", path, err)
	}
	return f.Close()
}

// streamName derives a diagnostic name from a path, relative to the
// locator root.
func streamName(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext)
}

func baseName(name string, n int) string {
	if name != "" {
		return filepath.Base(name)
	}
	return fmt.Sprintf("chunk_%04d", n)
}

type failReader struct{ err error }

func (f failReader) Read([]byte) (int, error) { return 0, f.err }
func (f failReader) Close() error             { return nil }
