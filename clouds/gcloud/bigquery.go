package gcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// BigQuery jobs follow the create-then-poll protocol: POST the job to
// /jobs, then GET its selfLink with exponential backoff until
// status.state is DONE. Errors in status.errorResult surface as
// structured errors carrying BigQuery's reason code.

const bigqueryBase = "https://bigquery.googleapis.com/bigquery/v2"

type (
	// A Job is the subset of the BigQuery job resource we use.
	Job struct {
		JobReference  *JobReference     `json:"jobReference,omitempty"`
		Configuration *JobConfiguration `json:"configuration,omitempty"`
		Status        *JobStatus        `json:"status,omitempty"`
		SelfLink      string            `json:"selfLink,omitempty"`
	}

	// A JobReference names a job within a project.
	JobReference struct {
		ProjectID string `json:"projectId"`
		JobID     string `json:"jobId,omitempty"`
		Location  string `json:"location,omitempty"`
	}

	// A JobConfiguration holds exactly one of the job payloads.
	JobConfiguration struct {
		Query   *JobConfigurationQuery   `json:"query,omitempty"`
		Load    *JobConfigurationLoad    `json:"load,omitempty"`
		Extract *JobConfigurationExtract `json:"extract,omitempty"`
		Labels  map[string]string        `json:"labels,omitempty"`
	}

	// JobConfigurationQuery runs standard SQL, optionally writing the
	// result to a destination table.
	JobConfigurationQuery struct {
		Query             string          `json:"query"`
		UseLegacySQL      bool            `json:"useLegacySql"`
		DestinationTable  *TableReference `json:"destinationTable,omitempty"`
		CreateDisposition string          `json:"createDisposition,omitempty"`
		WriteDisposition  string          `json:"writeDisposition,omitempty"`
	}

	// JobConfigurationLoad loads CSV from GCS.
	JobConfigurationLoad struct {
		SourceURIs          []string        `json:"sourceUris"`
		DestinationTable    *TableReference `json:"destinationTable"`
		Schema              any             `json:"schema,omitempty"`
		SkipLeadingRows     int             `json:"skipLeadingRows"`
		SourceFormat        string          `json:"sourceFormat"`
		AllowQuotedNewlines bool            `json:"allowQuotedNewlines"`
		CreateDisposition   string          `json:"createDisposition,omitempty"`
		WriteDisposition    string          `json:"writeDisposition,omitempty"`
	}

	// JobConfigurationExtract exports a table to GCS.
	JobConfigurationExtract struct {
		SourceTable       *TableReference `json:"sourceTable"`
		DestinationURIs   []string        `json:"destinationUris"`
		DestinationFormat string          `json:"destinationFormat"`
		PrintHeader       *bool           `json:"printHeader,omitempty"`
	}

	// A TableReference names a table.
	TableReference struct {
		ProjectID string `json:"projectId"`
		DatasetID string `json:"datasetId"`
		TableID   string `json:"tableId"`
	}

	// JobStatus carries the job state and any errors.
	JobStatus struct {
		State       string          `json:"state"`
		ErrorResult *BigQueryError  `json:"errorResult,omitempty"`
		Errors      []BigQueryError `json:"errors,omitempty"`
	}

	// A BigQueryError is BigQuery's structured error value.
	BigQueryError struct {
		Reason   string `json:"reason"`
		Location string `json:"location"`
		Message  string `json:"message"`
	}
)

// Write dispositions.
const (
	WriteTruncate  = "WRITE_TRUNCATE"
	WriteAppend    = "WRITE_APPEND"
	WriteEmpty     = "WRITE_EMPTY"
	CreateIfNeeded = "CREATE_IF_NEEDED"
)

func (e *BigQueryError) Error() string {
	return fmt.Sprintf("gcloud: BigQuery error (reason %q): %s", e.Reason, e.Message)
}

// IsTransient matches BigQuery's "please retry" reasons, including the
// spurious accessDenied some extract jobs return while IAM propagates.
func (e *BigQueryError) IsTransient() bool {
	switch e.Reason {
	case "backendError", "rateLimitExceeded", "internalError", "jobBackendError", "accessDenied":
		return true
	}
	return false
}

// RunJob inserts a job and polls until it completes, returning the
// final job resource. Polling backs off from 2s to a 16s cap.
func (c *Client) RunJob(ctx context.Context, projectID string, cfg *JobConfiguration) (*Job, error) {
	log := logctx.From(ctx)
	job := &Job{
		JobReference:  &JobReference{ProjectID: projectID},
		Configuration: cfg,
	}
	var created Job
	insertURL := fmt.Sprintf("%s/projects/%s/jobs", bigqueryBase, url.PathEscape(projectID))
	if err := c.doJSON(ctx, "POST", insertURL, job, &created); err != nil {
		return nil, fmt.Errorf("gcloud: creating BigQuery job: %w", err)
	}
	if created.SelfLink == "" {
		return nil, fmt.Errorf("gcloud: BigQuery job has no selfLink")
	}
	log.Debug("created BigQuery job", "job", created.JobReference.JobID)

	delay := 2 * time.Second
	for {
		var polled Job
		if err := c.doJSON(ctx, "GET", created.SelfLink, nil, &polled); err != nil {
			return nil, fmt.Errorf("gcloud: polling BigQuery job: %w", err)
		}
		if polled.Status != nil && polled.Status.State == "DONE" {
			if polled.Status.ErrorResult != nil {
				return &polled, polled.Status.ErrorResult
			}
			return &polled, nil
		}
		log.Debug("waiting for BigQuery job",
			"job", created.JobReference.JobID, "state", jobState(&polled), "next_poll", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > 16*time.Second {
			delay = 16 * time.Second
		}
	}
}

func jobState(j *Job) string {
	if j.Status == nil {
		return "UNKNOWN"
	}
	return j.Status.State
}

// QueryRow runs a query and returns the first row of results as raw
// strings. Used for COUNT(*) and other control-plane queries.
func (c *Client) QueryRow(ctx context.Context, projectID, query string) ([]string, error) {
	body := map[string]any{"query": query, "useLegacySql": false, "timeoutMs": 60000}
	var resp struct {
		JobComplete bool `json:"jobComplete"`
		Rows        []struct {
			F []struct {
				V any `json:"v"`
			} `json:"f"`
		} `json:"rows"`
	}
	queryURL := fmt.Sprintf("%s/projects/%s/queries", bigqueryBase, url.PathEscape(projectID))
	if err := c.doJSON(ctx, "POST", queryURL, body, &resp); err != nil {
		return nil, fmt.Errorf("gcloud: running BigQuery query: %w", err)
	}
	if !resp.JobComplete || len(resp.Rows) == 0 {
		return nil, fmt.Errorf("gcloud: BigQuery query returned no rows")
	}
	row := make([]string, len(resp.Rows[0].F))
	for i, f := range resp.Rows[0].F {
		row[i] = fmt.Sprintf("%v", f.V)
	}
	return row, nil
}

// CreateTable creates a table with the given JSON schema, optionally
// replacing an existing one.
func (c *Client) CreateTable(ctx context.Context, ref *TableReference, schemaFields any, replace bool) error {
	if replace {
		if err := c.DeleteTable(ctx, ref); err != nil {
			return err
		}
	}
	body := map[string]any{
		"tableReference": ref,
		"schema":         map[string]any{"fields": schemaFields},
	}
	tablesURL := fmt.Sprintf("%s/projects/%s/datasets/%s/tables",
		bigqueryBase, url.PathEscape(ref.ProjectID), url.PathEscape(ref.DatasetID))
	return c.doJSON(ctx, "POST", tablesURL, body, nil)
}

// GetTableSchema fetches a table's JSON schema fields.
func (c *Client) GetTableSchema(ctx context.Context, ref *TableReference) ([]byte, error) {
	var resp struct {
		Schema struct {
			Fields json.RawMessage `json:"fields"`
		} `json:"schema"`
	}
	if err := c.doJSON(ctx, "GET", tableURL(ref), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Schema.Fields, nil
}

// TableExists reports whether a table exists.
func (c *Client) TableExists(ctx context.Context, ref *TableReference) (bool, error) {
	err := c.doJSON(ctx, "GET", tableURL(ref), nil, &struct{}{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// DeleteTable deletes a table, ignoring a missing one.
func (c *Client) DeleteTable(ctx context.Context, ref *TableReference) error {
	err := c.doJSON(ctx, "DELETE", tableURL(ref), nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func tableURL(ref *TableReference) string {
	return fmt.Sprintf("%s/projects/%s/datasets/%s/tables/%s",
		bigqueryBase, url.PathEscape(ref.ProjectID), url.PathEscape(ref.DatasetID), url.PathEscape(ref.TableID))
}
