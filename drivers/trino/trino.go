// Package trino implements the trino: driver, speaking the REST
// statement protocol. Local data moves through SELECT and INSERT
// statements with per-column storage transforms; the S3 remote-copy
// paths go through Hive CSV wrapper tables.
package trino

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/dbcrossbar/dbcrossbar/csvdata"
	"github.com/dbcrossbar/dbcrossbar/driver"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
	"github.com/dbcrossbar/dbcrossbar/schema"
	trinosql "github.com/dbcrossbar/dbcrossbar/sql/trino"
)

// Scheme is this driver's locator scheme.
const Scheme = "trino"

// insertBatchRows bounds how many rows one INSERT statement carries.
const insertBatchRows = 250

func init() {
	driver.Register(Scheme, (&Locator{}).Features(), func(s string) (driver.Locator, error) { return Parse(s) })
}

// A Locator is a trino://user@host:port/catalog/schema.table value.
type Locator struct {
	driver.Base
	url   *url.URL
	table trinosql.TableName
}

// Parse parses a trino: locator.
func Parse(s string) (*Locator, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("trino: cannot parse locator: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 {
		return nil, fmt.Errorf("trino: expected trino://user@host:port/catalog/schema.table, got %q", s)
	}
	schemaName, tableName, ok := strings.Cut(parts[1], ".")
	if !ok {
		return nil, fmt.Errorf("trino: expected schema.table after catalog in %q", s)
	}
	return &Locator{
		Base:  driver.Base{Name: Scheme},
		url:   u,
		table: trinosql.TableName{Catalog: parts[0], Schema: schemaName, Table: tableName},
	}, nil
}

// String renders the locator with any password redacted.
func (l *Locator) String() string {
	c := *l.url
	if c.User != nil {
		if _, has := c.User.Password(); has {
			c.User = url.UserPassword(c.User.Username(), "XXXXXX")
		}
	}
	return c.String()
}

// TableName returns the parsed table name.
func (l *Locator) TableName() trinosql.TableName { return l.table }

func (l *Locator) client() *Client {
	user := "dbcrossbar"
	password := ""
	if l.url.User != nil {
		if name := l.url.User.Username(); name != "" {
			user = name
		}
		password, _ = l.url.User.Password()
	}
	scheme := "http"
	if l.url.Port() == "443" || password != "" {
		scheme = "https"
	}
	return NewClient(scheme+"://"+l.url.Host, user, password)
}

// driverOptions are the --to-arg keys this driver recognizes.
type driverOptions struct {
	// WrapperCatalog is the Hive catalog used for CSV wrapper tables
	// in the S3 fast paths. Defaults to "hive".
	WrapperCatalog string `json:"wrapper_catalog"`
	// WrapperSchema defaults to "default".
	WrapperSchema string `json:"wrapper_schema"`
}

func (o *driverOptions) fillDefaults() {
	if o.WrapperCatalog == "" {
		o.WrapperCatalog = "hive"
	}
	if o.WrapperSchema == "" {
		o.WrapperSchema = "default"
	}
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

// connectorType asks the coordinator what backs this catalog.
func (l *Locator) connectorType(ctx context.Context, client *Client) (trinosql.ConnectorType, error) {
	_, rows, err := client.QueryAll(ctx, fmt.Sprintf(
		"SELECT connector_name FROM system.metadata.catalogs WHERE catalog_name = %s",
		trinosql.QuoteString(l.table.Catalog)))
	if err != nil {
		return trinosql.Other, fmt.Errorf("trino: looking up catalog %q: %w", l.table.Catalog, err)
	}
	if len(rows) == 0 {
		return trinosql.Other, fmt.Errorf("trino: unknown catalog %q", l.table.Catalog)
	}
	name, _ := rows[0][0].(string)
	return trinosql.ParseConnectorType(name), nil
}

// Schema implements driver.Locator using SHOW COLUMNS.
func (l *Locator) Schema(ctx context.Context, _ *driver.VerifiedSourceArgs) (*schema.Schema, error) {
	client := l.client()
	_, rows, err := client.QueryAll(ctx, "SHOW COLUMNS FROM "+l.table.Quoted())
	if err != nil {
		return nil, fmt.Errorf("trino: reading schema of %s: %w", l.table, err)
	}
	table := &schema.Table{Name: l.table.String()}
	for _, row := range rows {
		name, _ := row[0].(string)
		rawType, _ := row[1].(string)
		ty, err := trinosql.ParseDataType(rawType)
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", name, err)
		}
		portable, err := ty.ToPortable()
		if err != nil {
			return nil, fmt.Errorf("trino: column %q: %w", name, err)
		}
		// SHOW COLUMNS doesn't report nullability; be permissive.
		table.Columns = append(table.Columns, &schema.Column{Name: name, IsNullable: true, DataType: portable})
	}
	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("trino: table %s not found", l.table)
	}
	return schema.FromSingleTable(table), nil
}

// WriteSchema implements driver.Locator.
func (l *Locator) WriteSchema(ctx context.Context, s *schema.Schema, ifExists driver.IfExists, _ *driver.VerifiedDestArgs) error {
	table, err := s.MainTable()
	if err != nil {
		return err
	}
	client := l.client()
	connector, err := l.connectorType(ctx, client)
	if err != nil {
		return err
	}
	return l.createDest(ctx, client, connector, s, table, ifExists)
}

// Count implements driver.Locator.
func (l *Locator) Count(ctx context.Context, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs) (int, error) {
	sql := "SELECT COUNT(*) FROM " + l.table.Quoted()
	if src.WhereClause() != "" {
		sql += fmt.Sprintf(" WHERE (%s)", src.WhereClause())
	}
	_, rows, err := l.client().QueryAll(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("trino: counting rows in %s: %w", l.table, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("trino: COUNT returned no rows")
	}
	switch v := rows[0][0].(type) {
	case float64:
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		return int(n), err
	default:
		return 0, fmt.Errorf("trino: unexpected COUNT result %T", v)
	}
}

// LocalData implements driver.Locator: stream a SELECT with the
// connector's load expressions applied, rendered as one CSV stream.
// Trino does not guarantee a deterministic row order.
func (l *Locator) LocalData(ctx context.Context, shared *driver.VerifiedSharedArgs, src *driver.VerifiedSourceArgs) (csvdata.Streams, error) {
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return nil, err
	}
	client := l.client()
	connector, err := l.connectorType(ctx, client)
	if err != nil {
		return nil, err
	}
	exprs, err := trinosql.SelectExprs(s, table.Columns, connector)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), l.table.Quoted())
	if src.WhereClause() != "" {
		sql += fmt.Sprintf(" WHERE (%s)", src.WhereClause())
	}

	pr, pw := io.Pipe()
	out := make(chan csvdata.Item, 1)
	out <- csvdata.Item{Stream: &csvdata.Stream{Name: l.table.Table, Data: pr}}
	go func() {
		defer close(out)
		wtr := csv.NewWriter(pw)
		if err := wtr.Write(table.ColumnNames()); err != nil {
			pw.CloseWithError(err)
			return
		}
		record := make([]string, len(table.Columns))
		err := client.Query(ctx, sql, func(_ []ResultColumn, rows [][]any) error {
			for _, row := range rows {
				for i, col := range table.Columns {
					cell, err := valueToCell(s, col.DataType, row[i])
					if err != nil {
						return fmt.Errorf("column %q: %w", col.Name, err)
					}
					record[i] = cell
				}
				if err := wtr.Write(record); err != nil {
					return err
				}
			}
			wtr.Flush()
			return wtr.Error()
		})
		if err != nil {
			pw.CloseWithError(fmt.Errorf("trino: reading %s: %w", l.table, err))
			return
		}
		wtr.Flush()
		pw.CloseWithError(wtr.Error())
	}()
	return out, nil
}

// WriteLocalData implements driver.Locator: INSERT batches with the
// connector's store expressions applied. Upserts stage into a temp
// table and MERGE, which requires a connector that supports MERGE.
func (l *Locator) WriteLocalData(ctx context.Context, data csvdata.Streams, shared *driver.VerifiedSharedArgs, dst *driver.VerifiedDestArgs) (<-chan driver.WriteResult, error) {
	s, table, err := l.transferSchema(ctx, shared)
	if err != nil {
		return nil, err
	}
	client := l.client()
	connector, err := l.connectorType(ctx, client)
	if err != nil {
		return nil, err
	}
	ifExists := dst.IfExists()
	upsertOn := ifExists.UpsertOn()
	if upsertOn != nil && !connector.SupportsMerge() {
		return nil, fmt.Errorf("trino: the %s connector does not support MERGE, so --if-exists=upsert-on is unavailable", connector)
	}

	results := make(chan driver.WriteResult, 1)
	go func() {
		defer close(results)
		log := logctx.From(ctx)

		target := l.table
		if upsertOn != nil {
			if err := l.createDest(ctx, client, connector, s, table, driver.IfExistsAppend); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			target = l.table.TempName(shortID())
			tempCt, err := trinosql.NewCreateTable(target, s, table.Columns, connector)
			if err == nil {
				err = client.Exec(ctx, tempCt.String())
			}
			if err != nil {
				results <- driver.WriteResult{Err: fmt.Errorf("trino: creating staging table: %w", err)}
				return
			}
			defer func() {
				if err := client.Exec(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+target.Quoted()); err != nil {
					log.Warn("failed to drop staging table", "table", target.String(), "error", err)
				}
			}()
		} else if err := l.createDest(ctx, client, connector, s, table, ifExists); err != nil {
			results <- driver.WriteResult{Err: err}
			return
		}

		for item := range data {
			if item.Err != nil {
				results <- driver.WriteResult{Err: item.Err}
				return
			}
			if err := l.insertStream(ctx, client, connector, s, table, target, item.Stream); err != nil {
				results <- driver.WriteResult{Err: err}
				return
			}
			results <- driver.WriteResult{Locator: l.String()}
		}

		if upsertOn != nil {
			if err := l.mergeStaging(ctx, client, table, target, upsertOn); err != nil {
				results <- driver.WriteResult{Err: err}
			}
		}
	}()
	return results, nil
}

// createDest creates the destination table per the if-exists policy.
func (l *Locator) createDest(ctx context.Context, client *Client, connector trinosql.ConnectorType, s *schema.Schema, table *schema.Table, ifExists driver.IfExists) error {
	ct, err := trinosql.NewCreateTable(l.table, s, table.Columns, connector)
	if err != nil {
		return err
	}
	switch {
	case ifExists.IsOverwrite() && connector.SupportsReplaceTable():
		ct.OrReplace = true
		return client.Exec(ctx, ct.String())
	case ifExists.IsOverwrite():
		if err := client.Exec(ctx, "DROP TABLE IF EXISTS "+l.table.Quoted()); err != nil {
			return err
		}
		return client.Exec(ctx, ct.String())
	case ifExists.IsAppend():
		err := client.Exec(ctx, ct.String())
		if err != nil && strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return err
	default:
		return client.Exec(ctx, ct.String())
	}
}

// insertStream loads one CSV stream with batched INSERT statements.
func (l *Locator) insertStream(ctx context.Context, client *Client, connector trinosql.ConnectorType, s *schema.Schema, table *schema.Table, target trinosql.TableName, stream *csvdata.Stream) error {
	defer stream.Data.Close()
	rdr := csv.NewReader(stream.Data)
	rdr.FieldsPerRecord = len(table.Columns)
	if _, err := rdr.Read(); err != nil {
		return fmt.Errorf("trino: reading header of %q: %w", stream.Name, err)
	}

	colNames := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		colNames[i] = trinosql.QuoteIdent(c.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", target.Quoted(), strings.Join(colNames, ", "))

	var batch []string
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := client.Exec(ctx, prefix+strings.Join(batch, ", "))
		batch = batch[:0]
		return err
	}
	for {
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("trino: reading %q: %w", stream.Name, err)
		}
		valueExprs := make([]string, len(table.Columns))
		for i, col := range table.Columns {
			expr, err := cellToValueExpr(s, col, row[i])
			if err != nil {
				return fmt.Errorf("trino: stream %q, column %q: %w", stream.Name, col.Name, err)
			}
			valueExprs[i] = expr
		}
		storeExprs, err := trinosql.StoreExprs(s, table.Columns, valueExprs, connector)
		if err != nil {
			return err
		}
		batch = append(batch, "("+strings.Join(storeExprs, ", ")+")")
		if len(batch) >= insertBatchRows {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// mergeStaging merges the staging table into the destination.
func (l *Locator) mergeStaging(ctx context.Context, client *Client, table *schema.Table, staging trinosql.TableName, upsertOn []string) error {
	for _, k := range upsertOn {
		if _, ok := table.Column(k); !ok {
			return fmt.Errorf("trino: upsert key column %q does not appear in schema", k)
		}
	}
	isKey := map[string]bool{}
	for _, k := range upsertOn {
		isKey[k] = true
	}
	conds := make([]string, len(upsertOn))
	for i, k := range upsertOn {
		conds[i] = fmt.Sprintf("D.%s = T.%s", trinosql.QuoteIdent(k), trinosql.QuoteIdent(k))
	}
	var sets, names, values []string
	for _, c := range table.Columns {
		q := trinosql.QuoteIdent(c.Name)
		names = append(names, q)
		values = append(values, "T."+q)
		if !isKey[c.Name] {
			sets = append(sets, fmt.Sprintf("%s = T.%s", q, q))
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s AS D USING %s AS T ON %s",
		l.table.Quoted(), staging.Quoted(), strings.Join(conds, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		strings.Join(names, ", "), strings.Join(values, ", "))
	if err := client.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("trino: merging into %s: %w", l.table, err)
	}
	return nil
}

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
