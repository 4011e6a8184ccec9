// Package s3 implements the s3:// driver for S3 prefixes, and the
// Redshift→S3 remote-copy fast path via UNLOAD.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dbcrossbar/dbcrossbar/clouds/aws"
	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// Scheme is this driver's locator scheme.
const Scheme = "s3"

func init() {
	driver.Register(Scheme, (&Locator{}).Features(), func(s string) (driver.Locator, error) { return Parse(s) })
}

// A Locator is an s3://bucket/prefix/ value. Directory-like locators
// must end with a slash.
type Locator struct {
	driver.Base
	url aws.S3URL
}

// Parse parses an s3: locator.
func Parse(s string) (*Locator, error) {
	u, err := aws.ParseS3URL(s)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("s3: locator %q must end with a slash", s)
	}
	return &Locator{Base: driver.Base{Name: Scheme}, url: u}, nil
}

func (l *Locator) String() string { return l.url.String() }

// URL returns the parsed s3:// URL.
func (l *Locator) URL() aws.S3URL { return l.url }

// unloadSource is the contract a source locator must satisfy for the
// remote-copy fast path into S3. The redshift driver implements it.
type unloadSource interface {
	driver.Locator
	UnloadTo(ctx context.Context, client *aws.S3Client, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dest aws.S3URL) ([]string, error)
}

// uploadChunkSize bounds how much of a stream WriteLocalData buffers
// for one PutObject.
const uploadChunkSize = 64 << 20

// Features implements driver.Locator.
func (l *Locator) Features() driver.Features {
	return driver.Features{
		Locator: driver.FeatureLocalData | driver.FeatureWriteLocalData | driver.FeatureWriteRemoteData,
		DestIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureOverwrite |
			driver.IfExistsFeatureAppend,
		PreferredChunkSize: uploadChunkSize,
	}
}

// LocalData implements driver.Locator: one lazy stream per object.
func (l *Locator) LocalData(ctx context.Context, shared *driver.VerifiedSharedArgs, _ *driver.VerifiedSourceArgs) (csvdata.Streams, error) {
	client, err := aws.NewS3Client()
	if err != nil {
		return nil, err
	}
	keys, err := client.ListPrefix(ctx, l.url)
	if err != nil {
		return nil, err
	}
	out := make(chan csvdata.Item)
	go func() {
		defer close(out)
		for _, key := range keys {
			if !strings.HasSuffix(key.Path, ".csv") {
				continue
			}
			body, err := client.GetObject(ctx, key)
			if err != nil {
				out <- csvdata.Item{Err: err}
				return
			}
			name := strings.TrimSuffix(strings.TrimPrefix(key.Path, l.url.Path), ".csv")
			select {
			case out <- csvdata.Item{Stream: &csvdata.Stream{Name: name, Data: body}}:
			case <-ctx.Done():
				body.Close()
				return
			}
		}
	}()
	return out, nil
}

// WriteLocalData implements driver.Locator: upload each incoming chunk
// as an object under the prefix. Chunks are buffered so their payload
// hash can be signed; the rechunker bounds their size upstream, and
// --max-streams bounds how many are buffered and uploaded at once.
func (l *Locator) WriteLocalData(ctx context.Context, data csvdata.Streams, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) (<-chan driver.WriteResult, error) {
	client, err := aws.NewS3Client()
	if err != nil {
		return nil, err
	}
	if err := prepareObjectDest(ctx, client, l.url, dst.IfExists()); err != nil {
		return nil, err
	}
	results := make(chan driver.WriteResult, 1)
	go func() {
		defer close(results)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(shared.MaxStreams())
		n := 0
		for item := range data {
			if item.Err != nil {
				g.Wait()
				results <- driver.WriteResult{Err: item.Err}
				return
			}
			n++
			stream := item.Stream
			name := stream.Name
			if name == "" {
				name = fmt.Sprintf("chunk_%04d", n)
			}
			dest := aws.S3URL{Bucket: l.url.Bucket, Path: l.url.Path + name + ".csv"}
			g.Go(func() error {
				body, err := io.ReadAll(stream.Data)
				stream.Data.Close()
				if err != nil {
					return err
				}
				logctx.From(ctx).Debug("uploading object", "object", dest.String())
				if err := client.PutObject(gctx, dest, body); err != nil {
					return err
				}
				results <- driver.WriteResult{Locator: dest.String()}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			results <- driver.WriteResult{Err: err}
		}
	}()
	return results, nil
}

// SupportsWriteRemoteData implements driver.Locator.
func (l *Locator) SupportsWriteRemoteData(source driver.Locator) bool {
	_, ok := source.(unloadSource)
	return ok
}

// WriteRemoteData implements driver.Locator: run the source's UNLOAD
// into this prefix.
func (l *Locator) WriteRemoteData(ctx context.Context, source driver.Locator, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dst *driver.VerifiedDestArgs) ([]string, error) {
	rs, ok := source.(unloadSource)
	if !ok {
		return nil, fmt.Errorf("s3: cannot copy remote data from %s", source)
	}
	client, err := aws.NewS3Client()
	if err != nil {
		return nil, err
	}
	if err := prepareObjectDest(ctx, client, l.url, dst.IfExists()); err != nil {
		return nil, err
	}
	return rs.UnloadTo(ctx, client, shared, src, l.url)
}

func prepareObjectDest(ctx context.Context, client *aws.S3Client, prefix aws.S3URL, ifExists driver.IfExists) error {
	switch {
	case ifExists.IsOverwrite():
		return client.DeletePrefix(ctx, prefix)
	case ifExists.IsAppend():
		return nil
	case ifExists.UpsertOn() != nil:
		return fmt.Errorf("s3: object stores do not support upsert")
	default:
		keys, err := client.ListPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			return fmt.Errorf("s3: prefix %s is not empty (pass --if-exists=overwrite to replace it)", prefix)
		}
		return nil
	}
}
