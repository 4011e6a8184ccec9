// Package bigquery implements the bigquery: driver. Local data always
// moves through Google Cloud Storage: reads extract to a temporary
// gs:// prefix and writes load from one, so the gs driver and the
// remote-copy fast path share all of the heavy lifting.
package bigquery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"golang.org/x/sync/errgroup"

	"github.com/dbcrossbar/dbcrossbar/clouds/gcloud"
	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
	"github.com/dbcrossbar/dbcrossbar/schema"
	bqsql "github.com/dbcrossbar/dbcrossbar/sql/bigquery"
)

// Scheme is this driver's locator scheme.
const Scheme = "bigquery"

func init() {
	driver.Register(Scheme, (&Locator{}).Features(), func(s string) (driver.Locator, error) { return Parse(s) })
}

// A Locator is a bigquery:project:dataset.table value.
type Locator struct {
	driver.Base
	table bqsql.TableName
}

// Parse parses a bigquery: locator.
func Parse(s string) (*Locator, error) {
	rest, ok := strings.CutPrefix(s, Scheme+":")
	if !ok {
		return nil, fmt.Errorf("bigquery: expected bigquery: locator, got %q", s)
	}
	name, err := bqsql.ParseTableName(rest)
	if err != nil {
		return nil, err
	}
	return &Locator{Base: driver.Base{Name: Scheme}, table: name}, nil
}

func (l *Locator) String() string { return Scheme + ":" + l.table.String() }

// TableName returns the parsed table name.
func (l *Locator) TableName() bqsql.TableName { return l.table }

func (l *Locator) tableRef() *gcloud.TableReference {
	return &gcloud.TableReference{ProjectID: l.table.Project, DatasetID: l.table.Dataset, TableID: l.table.Table}
}

// driverOptions are the --to-arg keys this driver recognizes.
type driverOptions struct {
	// Labels are applied to load/query jobs.
	Labels map[string]string `json:"labels"`
}

// Features implements driver.Locator.
func (l *Locator) Features() driver.Features {
	return driver.Features{
		Locator: driver.FeatureSchema | driver.FeatureWriteSchema | driver.FeatureCount |
			driver.FeatureLocalData | driver.FeatureWriteLocalData | driver.FeatureWriteRemoteData,
		WriteSchemaIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureOverwrite,
		SourceArgs:          driver.SourceArgDriverArgs | driver.SourceArgWhereClause,
		DestArgs:            driver.DestArgDriverArgs,
		DestIfExists: driver.IfExistsFeatureError | driver.IfExistsFeatureAppend |
			driver.IfExistsFeatureOverwrite | driver.IfExistsFeatureUpsert,
	}
}

// Schema implements driver.Locator.
func (l *Locator) Schema(ctx context.Context, _ *driver.VerifiedSourceArgs) (*schema.Schema, error) {
	client := gcloud.NewClient()
	fields, err := client.GetTableSchema(ctx, l.tableRef())
	if err != nil {
		return nil, fmt.Errorf("bigquery: reading schema of %s: %w", l.table, err)
	}
	ts, err := bqsql.ParseSchemaJSON(fields)
	if err != nil {
		return nil, err
	}
	table, err := ts.ToTable(l.table.Table)
	if err != nil {
		return nil, err
	}
	return schema.FromSingleTable(table), nil
}

// WriteSchema implements driver.Locator.
func (l *Locator) WriteSchema(ctx context.Context, s *schema.Schema, ifExists driver.IfExists, _ *driver.VerifiedDestArgs) error {
	table, err := s.MainTable()
	if err != nil {
		return err
	}
	ts, err := bqsql.SchemaForTable(s, table, bqsql.UsageFinalTable)
	if err != nil {
		return err
	}
	client := gcloud.NewClient()
	return client.CreateTable(ctx, l.tableRef(), ts.Fields, ifExists.IsOverwrite())
}

// Count implements driver.Locator.
func (l *Locator) Count(ctx context.Context, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs) (int, error) {
	client := gcloud.NewClient()
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s", l.table.Quoted())
	if src.WhereClause() != "" {
		sql += fmt.Sprintf(" WHERE (%s)", src.WhereClause())
	}
	row, err := client.QueryRow(ctx, l.table.Project, sql)
	if err != nil {
		return 0, err
	}
	var count int
	if _, err := fmt.Sscanf(row[0], "%d", &count); err != nil {
		return 0, fmt.Errorf("bigquery: unexpected COUNT result %q", row[0])
	}
	return count, nil
}

// LocalData implements driver.Locator: extract to temporary GCS, then
// stream the objects down, deleting the scratch prefix when the last
// stream has been consumed.
func (l *Locator) LocalData(ctx context.Context, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs) (csvdata.Streams, error) {
	tmp, err := shared.TemporaryStorage().FindSchemeOrErr("gs://")
	if err != nil {
		return nil, err
	}
	tmpPrefix, err := gcloud.ParseGSURL(driver.TemporaryPrefix(tmp))
	if err != nil {
		return nil, err
	}
	client := gcloud.NewClient()
	if _, err := l.ExtractTo(ctx, client, shared, src, tmpPrefix); err != nil {
		return nil, err
	}
	objects, err := client.ListPrefix(ctx, tmpPrefix)
	if err != nil {
		return nil, err
	}

	log := logctx.From(ctx)
	out := make(chan csvdata.Item)
	go func() {
		defer close(out)
		defer func() {
			// Scratch cleanup is best-effort; the data has either been
			// delivered or the error already reported.
			if err := client.DeletePrefix(context.WithoutCancel(ctx), tmpPrefix); err != nil {
				log.Warn("failed to clean up temporary objects", "prefix", tmpPrefix.String(), "error", err)
			}
		}()
		for _, obj := range objects {
			obj := obj
			pr, pw := io.Pipe()
			stream := &csvdata.Stream{Name: strings.TrimSuffix(strings.TrimPrefix(obj.Name, tmpPrefix.Path), ".csv"), Data: pr}
			select {
			case out <- csvdata.Item{Stream: stream}:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
			if err := client.DownloadObject(ctx, obj, pw); err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}
	}()
	return out, nil
}

// ExtractTo exports this table as CSV objects under dest. When the
// export needs a rewrite (nested columns, geography, or a --where
// filter), the rewritten rows go through a temporary table first,
// because extract jobs can only read tables.
func (l *Locator) ExtractTo(ctx context.Context, client *gcloud.Client, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dest gcloud.GSURL) ([]string, error) {
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return nil, err
	}
	needsQuery, err := bqsql.NeedsImportSQL(s, table)
	if err != nil {
		return nil, err
	}
	sourceRef := l.tableRef()
	var cleanupTemp *gcloud.TableReference
	if needsQuery || src.WhereClause() != "" {
		exportSQL, err := bqsql.ExportSQL(s, table, l.table, src.WhereClause())
		if err != nil {
			return nil, err
		}
		temp := l.table.TempName(shortID())
		tempRef := &gcloud.TableReference{ProjectID: temp.Project, DatasetID: temp.Dataset, TableID: temp.Table}
		_, err = client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
			Query: &gcloud.JobConfigurationQuery{
				Query:             exportSQL,
				DestinationTable:  tempRef,
				CreateDisposition: gcloud.CreateIfNeeded,
				WriteDisposition:  gcloud.WriteTruncate,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("bigquery: exporting %s: %w", l.table, err)
		}
		sourceRef, cleanupTemp = tempRef, tempRef
	}
	defer func() {
		if cleanupTemp != nil {
			if err := client.DeleteTable(context.WithoutCancel(ctx), cleanupTemp); err != nil {
				logctx.From(ctx).Warn("failed to drop temporary table", "table", cleanupTemp.TableID, "error", err)
			}
		}
	}()

	printHeader := true
	_, err = client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
		Extract: &gcloud.JobConfigurationExtract{
			SourceTable:       sourceRef,
			DestinationURIs:   []string{dest.String() + "chunk_*.csv"},
			DestinationFormat: "CSV",
			PrintHeader:       &printHeader,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bigquery: extracting %s: %w", l.table, err)
	}
	objects, err := client.ListPrefix(ctx, dest)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(objects))
	for i, obj := range objects {
		out[i] = obj.URL().String()
	}
	return out, nil
}

// WriteLocalData implements driver.Locator: upload the streams to a
// temporary GCS prefix, then run the same load path as a remote copy.
func (l *Locator) WriteLocalData(ctx context.Context, data csvdata.Streams, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) (<-chan driver.WriteResult, error) {
	tmp, err := shared.TemporaryStorage().FindSchemeOrErr("gs://")
	if err != nil {
		return nil, err
	}
	tmpPrefix, err := gcloud.ParseGSURL(driver.TemporaryPrefix(tmp))
	if err != nil {
		return nil, err
	}
	client := gcloud.NewClient()
	results := make(chan driver.WriteResult, 1)
	go func() {
		defer close(results)
		log := logctx.From(ctx)
		defer func() {
			if err := client.DeletePrefix(context.WithoutCancel(ctx), tmpPrefix); err != nil {
				log.Warn("failed to clean up temporary objects", "prefix", tmpPrefix.String(), "error", err)
			}
		}()
		// Stage the streams as objects, uploading in parallel up to
		// the --max-streams bound, then run one load job over them.
		var (
			urisMu sync.Mutex
			uris   []string
		)
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
			dest := gcloud.GSURL{Bucket: tmpPrefix.Bucket, Path: tmpPrefix.Path + name + ".csv"}
			g.Go(func() error {
				err := client.UploadObject(gctx, dest, stream.Data)
				stream.Data.Close()
				if err != nil {
					return err
				}
				urisMu.Lock()
				uris = append(uris, dest.String())
				urisMu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			results <- driver.WriteResult{Err: err}
			return
		}
		if len(uris) == 0 {
			// Header-only input still creates the destination table.
			s, table, err := l.transferSchema(ctx, shared)
			if err == nil {
				err = l.prepareEmptyDest(ctx, client, s, table, dst.IfExists())
			}
			if err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			results <- driver.WriteResult{Locator: l.String()}
			return
		}
		if err := l.loadFrom(ctx, client, uris, shared, dst); err != nil {
			results <- driver.WriteResult{Err: err}
			return
		}
		results <- driver.WriteResult{Locator: l.String()}
	}()
	return results, nil
}

// SupportsWriteRemoteData implements driver.Locator: gs:// sources load
// directly.
func (l *Locator) SupportsWriteRemoteData(source driver.Locator) bool {
	_, ok := source.(gsSource)
	return ok
}

// gsSource is the contract a source locator must satisfy for the
// remote-copy fast path into BigQuery.
type gsSource interface {
	driver.Locator
	URL() gcloud.GSURL
}

// WriteRemoteData implements driver.Locator: load CSV objects straight
// from GCS.
func (l *Locator) WriteRemoteData(ctx context.Context, source driver.Locator, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs, dst *driver.VerifiedDestArgs) ([]string, error) {
	gs, ok := source.(gsSource)
	if !ok {
		return nil, fmt.Errorf("bigquery: cannot copy remote data from %s", source)
	}
	client := gcloud.NewClient()
	uri := gs.URL().String() + "*.csv"
	if err := l.loadFrom(ctx, client, []string{uri}, shared, dst); err != nil {
		return nil, err
	}
	return []string{l.String()}, nil
}

// loadFrom loads CSV URIs into the destination table, honoring
// if-exists semantics. Tables whose schemas cannot load directly from
// CSV stage into a temp table and are rewritten by import SQL.
func (l *Locator) loadFrom(ctx context.Context, client *gcloud.Client, uris []string, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) error {
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return err
	}
	var opts driverOptions
	if err := dst.DriverArgs().Decode(&opts); err != nil {
		return err
	}
	ifExists := dst.IfExists()
	needsImport, err := bqsql.NeedsImportSQL(s, table)
	if err != nil {
		return err
	}
	loadSchema, err := bqsql.SchemaForTable(s, table, bqsql.UsageCsvLoad)
	if err != nil {
		return err
	}

	if !needsImport && ifExists.UpsertOn() == nil {
		// The happy path: one load job straight into the destination.
		disposition := gcloud.WriteEmpty
		switch {
		case ifExists.IsAppend():
			disposition = gcloud.WriteAppend
		case ifExists.IsOverwrite():
			disposition = gcloud.WriteTruncate
		}
		_, err = client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
			Load: &gcloud.JobConfigurationLoad{
				SourceURIs:          uris,
				DestinationTable:    l.tableRef(),
				Schema:              map[string]any{"fields": loadSchema.Fields},
				SkipLeadingRows:     1,
				SourceFormat:        "CSV",
				AllowQuotedNewlines: true,
				CreateDisposition:   gcloud.CreateIfNeeded,
				WriteDisposition:    disposition,
			},
			Labels: opts.Labels,
		})
		if err != nil {
			return fmt.Errorf("bigquery: loading into %s: %w", l.table, err)
		}
		return nil
	}

	// Staged path: load into a CSV-friendly temp table, then rewrite.
	temp := l.table.TempName(shortID())
	tempRef := &gcloud.TableReference{ProjectID: temp.Project, DatasetID: temp.Dataset, TableID: temp.Table}
	_, err = client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
		Load: &gcloud.JobConfigurationLoad{
			SourceURIs:          uris,
			DestinationTable:    tempRef,
			Schema:              map[string]any{"fields": loadSchema.Fields},
			SkipLeadingRows:     1,
			SourceFormat:        "CSV",
			AllowQuotedNewlines: true,
			CreateDisposition:   gcloud.CreateIfNeeded,
			WriteDisposition:    gcloud.WriteTruncate,
		},
		Labels: opts.Labels,
	})
	if err != nil {
		return fmt.Errorf("bigquery: loading into temp table %s: %w", temp, err)
	}
	defer func() {
		if err := client.DeleteTable(context.WithoutCancel(ctx), tempRef); err != nil {
			logctx.From(ctx).Warn("failed to drop temporary table", "table", temp.Table, "error", err)
		}
	}()

	if upsertOn := ifExists.UpsertOn(); upsertOn != nil {
		return l.upsertFromTemp(ctx, client, s, table, temp, upsertOn, needsImport, opts)
	}

	// Create or check the final table, then run the import rewrite.
	finalSchema, err := bqsql.SchemaForTable(s, table, bqsql.UsageFinalTable)
	if err != nil {
		return err
	}
	exists, err := client.TableExists(ctx, l.tableRef())
	if err != nil {
		return err
	}
	switch {
	case exists && ifExists.IsError():
		return fmt.Errorf("bigquery: table %s already exists (pass --if-exists=overwrite to replace it)", l.table)
	case exists && ifExists.IsOverwrite():
		if err := client.CreateTable(ctx, l.tableRef(), finalSchema.Fields, true); err != nil {
			return err
		}
	case !exists:
		if err := client.CreateTable(ctx, l.tableRef(), finalSchema.Fields, false); err != nil {
			return err
		}
	}
	importSQL, err := bqsql.ImportSQL(s, table, temp, l.table)
	if err != nil {
		return err
	}
	_, err = client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
		Query:  &gcloud.JobConfigurationQuery{Query: importSQL},
		Labels: opts.Labels,
	})
	if err != nil {
		return fmt.Errorf("bigquery: importing into %s: %w", l.table, err)
	}
	return nil
}

// upsertFromTemp merges a staged temp table into the destination. When
// the schema needs import SQL, the temp data is first rewritten into a
// second typed temp table so that MERGE sees final types.
func (l *Locator) upsertFromTemp(ctx context.Context, client *gcloud.Client, s *schema.Schema, table *schema.Table, temp bqsql.TableName, upsertOn []string, needsImport bool, opts driverOptions) error {
	finalSchema, err := bqsql.SchemaForTable(s, table, bqsql.UsageFinalTable)
	if err != nil {
		return err
	}
	exists, err := client.TableExists(ctx, l.tableRef())
	if err != nil {
		return err
	}
	if !exists {
		if err := client.CreateTable(ctx, l.tableRef(), finalSchema.Fields, false); err != nil {
			return err
		}
	}
	mergeSource := temp
	if needsImport {
		typed := l.table.TempName(shortID())
		typedRef := &gcloud.TableReference{ProjectID: typed.Project, DatasetID: typed.Dataset, TableID: typed.Table}
		if err := client.CreateTable(ctx, typedRef, finalSchema.Fields, false); err != nil {
			return err
		}
		defer func() {
			if err := client.DeleteTable(context.WithoutCancel(ctx), typedRef); err != nil {
				logctx.From(ctx).Warn("failed to drop temporary table", "table", typed.Table, "error", err)
			}
		}()
		importSQL, err := bqsql.ImportSQL(s, table, temp, typed)
		if err != nil {
			return err
		}
		if _, err := client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
			Query:  &gcloud.JobConfigurationQuery{Query: importSQL},
			Labels: opts.Labels,
		}); err != nil {
			return err
		}
		mergeSource = typed
	}
	mergeSQL, err := bqsql.MergeSQL(table, mergeSource, l.table, upsertOn)
	if err != nil {
		return err
	}
	if _, err := client.RunJob(ctx, l.table.Project, &gcloud.JobConfiguration{
		Query:  &gcloud.JobConfigurationQuery{Query: mergeSQL},
		Labels: opts.Labels,
	}); err != nil {
		return fmt.Errorf("bigquery: merging into %s: %w", l.table, err)
	}
	return nil
}

// prepareEmptyDest creates an empty destination table for header-only
// input.
func (l *Locator) prepareEmptyDest(ctx context.Context, client *gcloud.Client, s *schema.Schema, table *schema.Table, ifExists driver.IfExists) error {
	finalSchema, err := bqsql.SchemaForTable(s, table, bqsql.UsageFinalTable)
	if err != nil {
		return err
	}
	exists, err := client.TableExists(ctx, l.tableRef())
	if err != nil {
		return err
	}
	if exists && ifExists.IsError() {
		return fmt.Errorf("bigquery: table %s already exists (pass --if-exists=overwrite to replace it)", l.table)
	}
	if exists && !ifExists.IsOverwrite() {
		return nil
	}
	return client.CreateTable(ctx, l.tableRef(), finalSchema.Fields, exists)
}

// transferSchema returns the schema for this transfer, introspecting
// the table when the caller didn't pass one.
func (l *Locator) transferSchema(ctx context.Context, shared *driver.VerifiedSharedArgs) (*schema.Schema, *schema.Table, error) {
	s := shared.Schema()
	if s == nil {
		var err error
		if s, err = l.Schema(ctx, driver.SourceArgsForTemporary()); err != nil {
			return nil, nil, err
		}
	}
	table, err := s.MainTable()
	if err != nil {
		return nil, nil, err
	}
	return s, table, nil
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
