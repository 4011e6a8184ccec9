// Package gs implements the gs:// driver for Google Cloud Storage
// prefixes, and the BigQuery→GCS remote-copy fast path via extract
// jobs.
package gs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dbcrossbar/dbcrossbar/clouds/gcloud"
	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// extractSource is the contract a source locator must satisfy for the
// remote-copy fast path into GCS. The bigquery driver implements it;
// checking an interface here keeps the two driver packages decoupled.
type extractSource interface {
	driver.Locator
	ExtractTo(ctx context.Context, client *gcloud.Client, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dest gcloud.GSURL) ([]string, error)
}

// Scheme is this driver's locator scheme.
const Scheme = "gs"

func init() {
	driver.Register(Scheme, (&Locator{}).Features(), func(s string) (driver.Locator, error) { return Parse(s) })
}

// A Locator is a gs://bucket/prefix/ value. Directory-like locators
// must end with a slash.
type Locator struct {
	driver.Base
	url gcloud.GSURL
}

// Parse parses a gs: locator.
func Parse(s string) (*Locator, error) {
	u, err := gcloud.ParseGSURL(s)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(u.Path, "/") {
		return nil, fmt.Errorf("gs: locator %q must end with a slash", s)
	}
	return &Locator{Base: driver.Base{Name: Scheme}, url: u}, nil
}

func (l *Locator) String() string { return l.url.String() }

// URL returns the parsed gs:// URL.
func (l *Locator) URL() gcloud.GSURL { return l.url }

// Features implements driver.Locator.
func (l *Locator) Features() driver.Features {
	return driver.Features{
		Locator: driver.FeatureLocalData | driver.FeatureWriteLocalData | driver.FeatureWriteRemoteData,
		DestIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureOverwrite |
			driver.IfExistsFeatureAppend,
	}
}

// LocalData implements driver.Locator: one lazy stream per object
// under the prefix.
func (l *Locator) LocalData(ctx context.Context, shared *driver.VerifiedSharedArgs, _ *driver.VerifiedSourceArgs) (csvdata.Streams, error) {
	client := gcloud.NewClient()
	objects, err := client.ListPrefix(ctx, l.url)
	if err != nil {
		return nil, err
	}
	out := make(chan csvdata.Item)
	go func() {
		defer close(out)
		for _, obj := range objects {
			if !strings.HasSuffix(obj.Name, ".csv") {
				continue
			}
			obj := obj
			pr, pw := io.Pipe()
			stream := &csvdata.Stream{Name: chunkName(l.url.Path, obj.Name), Data: pr}
			select {
			case out <- csvdata.Item{Stream: stream}:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
			// Download after publishing, so the consumer is attached
			// and the pipe provides backpressure.
			if err := client.DownloadObject(ctx, obj, pw); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}
	}()
	return out, nil
}

// WriteLocalData implements driver.Locator: upload each incoming chunk
// as an object under the prefix. Uploads run in parallel, bounded by
// --max-streams; pulling from data blocks while the pool is full, so
// at most that many streams are ever open.
func (l *Locator) WriteLocalData(ctx context.Context, data csvdata.Streams, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) (<-chan driver.WriteResult, error) {
	client := gcloud.NewClient()
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
			dest := gcloud.GSURL{Bucket: l.url.Bucket, Path: objectPath(l.url.Path, stream.Name, n)}
			g.Go(func() error {
				logctx.From(ctx).Debug("uploading object", "object", dest.String())
				err := client.UploadObject(gctx, dest, stream.Data)
				stream.Data.Close()
				if err != nil {
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

// SupportsWriteRemoteData implements driver.Locator: BigQuery tables
// can extract straight to GCS.
func (l *Locator) SupportsWriteRemoteData(source driver.Locator) bool {
	_, ok := source.(extractSource)
	return ok
}

// WriteRemoteData implements driver.Locator: run a BigQuery extract
// job writing CSV objects under this prefix.
func (l *Locator) WriteRemoteData(ctx context.Context, source driver.Locator, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dst *driver.VerifiedDestArgs) ([]string, error) {
	bq, ok := source.(extractSource)
	if !ok {
		return nil, fmt.Errorf("gs: cannot copy remote data from %s", source)
	}
	client := gcloud.NewClient()
	if err := prepareObjectDest(ctx, client, l.url, dst.IfExists()); err != nil {
		return nil, err
	}
	return bq.ExtractTo(ctx, client, shared, src, l.url)
}

// prepareObjectDest applies if-exists semantics to an object prefix.
func prepareObjectDest(ctx context.Context, client *gcloud.Client, prefix gcloud.GSURL, ifExists driver.IfExists) error {
	switch {
	case ifExists.IsOverwrite():
		return client.DeletePrefix(ctx, prefix)
	case ifExists.IsAppend():
		return nil
	case ifExists.UpsertOn() != nil:
		return fmt.Errorf("gs: object stores do not support upsert")
	default:
		objects, err := client.ListPrefix(ctx, prefix)
		if err != nil {
			return err
		}
		if len(objects) > 0 {
			return fmt.Errorf("gs: prefix %s is not empty (pass --if-exists=overwrite to replace it)", prefix)
		}
		return nil
	}
}

func chunkName(prefix, objectName string) string {
	name := strings.TrimPrefix(objectName, prefix)
	return strings.TrimSuffix(name, ".csv")
}

func objectPath(prefix, streamName string, n int) string {
	name := streamName
	if name == "" {
		name = fmt.Sprintf("chunk_%04d", n)
	}
	return prefix + name + ".csv"
}
