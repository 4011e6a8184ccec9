package gcloud

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

// GCS object I/O. Downloads use ranged GETs: the object is split into
// fixed-size chunks fetched with bounded concurrency, every chunk's
// Content-Range is validated against the expected range, the object
// generation is pinned across requests, and the whole object's CRC32C
// is verified against the metadata.

const (
	storageBase = "https://storage.googleapis.com/storage/v1"
	uploadBase  = "https://storage.googleapis.com/upload/storage/v1"

	// downloadChunkSize is the ranged-GET chunk size.
	downloadChunkSize = 32 * 1024 * 1024
	// downloadConcurrency bounds parallel chunk fetches per object.
	downloadConcurrency = 4
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// A GSURL is a parsed gs://bucket/path value.
type GSURL struct {
	Bucket string
	Path   string
}

// ParseGSURL parses a gs:// URL.
func ParseGSURL(s string) (GSURL, error) {
	rest, ok := strings.CutPrefix(s, "gs://")
	if !ok {
		return GSURL{}, fmt.Errorf("gcloud: expected gs:// URL, got %q", s)
	}
	bucket, path, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return GSURL{}, fmt.Errorf("gcloud: missing bucket in %q", s)
	}
	return GSURL{Bucket: bucket, Path: path}, nil
}

func (u GSURL) String() string { return "gs://" + u.Bucket + "/" + u.Path }

// An Object describes one stored object.
type Object struct {
	Bucket     string
	Name       string
	Size       int64
	Generation int64
	// Crc32c is the base64 big-endian CRC32C from object metadata.
	Crc32c string
	ETag   string
}

// URL returns the object's gs:// URL.
func (o *Object) URL() GSURL { return GSURL{Bucket: o.Bucket, Path: o.Name} }

// ListPrefix lists the objects under a gs:// prefix, following pages.
func (c *Client) ListPrefix(ctx context.Context, prefix GSURL) ([]*Object, error) {
	var out []*Object
	pageToken := ""
	for {
		listURL := fmt.Sprintf("%s/b/%s/o?prefix=%s", storageBase,
			url.PathEscape(prefix.Bucket), url.QueryEscape(prefix.Path))
		if pageToken != "" {
			listURL += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var resp struct {
			Items []struct {
				Name       string `json:"name"`
				Size       string `json:"size"`
				Generation string `json:"generation"`
				Crc32c     string `json:"crc32c"`
				Etag       string `json:"etag"`
			} `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		if err := c.doJSON(ctx, "GET", listURL, nil, &resp); err != nil {
			return nil, fmt.Errorf("gcloud: listing %s: %w", prefix, err)
		}
		for _, item := range resp.Items {
			obj := &Object{Bucket: prefix.Bucket, Name: item.Name, Crc32c: item.Crc32c, ETag: item.Etag}
			fmt.Sscanf(item.Size, "%d", &obj.Size)
			fmt.Sscanf(item.Generation, "%d", &obj.Generation)
			out = append(out, obj)
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// StatObject fetches one object's metadata.
func (c *Client) StatObject(ctx context.Context, u GSURL) (*Object, error) {
	var resp struct {
		Name       string `json:"name"`
		Size       string `json:"size"`
		Generation string `json:"generation"`
		Crc32c     string `json:"crc32c"`
		Etag       string `json:"etag"`
	}
	statURL := fmt.Sprintf("%s/b/%s/o/%s", storageBase,
		url.PathEscape(u.Bucket), url.PathEscape(u.Path))
	if err := c.doJSON(ctx, "GET", statURL, nil, &resp); err != nil {
		return nil, fmt.Errorf("gcloud: stat %s: %w", u, err)
	}
	obj := &Object{Bucket: u.Bucket, Name: resp.Name, Crc32c: resp.Crc32c, ETag: resp.Etag}
	fmt.Sscanf(resp.Size, "%d", &obj.Size)
	fmt.Sscanf(resp.Generation, "%d", &obj.Generation)
	return obj, nil
}

// DownloadObject streams an object to w, using ranged chunk downloads
// with CRC32C verification. Chunks are fetched with bounded concurrency
// but written to w strictly in order through a bounded reorder window.
func (c *Client) DownloadObject(ctx context.Context, obj *Object, w io.Writer) error {
	log := logctx.From(ctx)
	nChunks := int((obj.Size + downloadChunkSize - 1) / downloadChunkSize)
	if nChunks == 0 {
		return verifyCrc32c(obj, 0)
	}
	log.Debug("downloading object", "object", obj.URL().String(), "size", obj.Size, "chunks", nChunks)

	type chunk struct {
		idx  int
		data []byte
	}
	results := make(chan chunk, downloadConcurrency)
	// window holds one token per chunk started but not yet written to w.
	window := make(chan struct{}, 2*downloadConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadConcurrency + 1)

	g.Go(func() error {
		// Reorder window: hold out-of-order chunks until their turn.
		pending := map[int][]byte{}
		next := 0
		crc := crc32.New(crc32cTable)
		for next < nChunks {
			var ck chunk
			select {
			case <-gctx.Done():
				return gctx.Err()
			case ck = <-results:
			}
			pending[ck.idx] = ck.data
			for data, ok := pending[next]; ok; data, ok = pending[next] {
				delete(pending, next)
				if _, err := crc.Write(data); err != nil {
					return err
				}
				if _, err := w.Write(data); err != nil {
					return fmt.Errorf("gcloud: writing chunk %d: %w", next, err)
				}
				next++
				<-window
			}
		}
		return verifyCrc32c(obj, crc.Sum32())
	})

	for i := 0; i < nChunks; i++ {
		i := i
		select {
		case window <- struct{}{}:
		case <-gctx.Done():
			return g.Wait()
		}
		g.Go(func() error {
			start := int64(i) * downloadChunkSize
			end := start + downloadChunkSize - 1
			if end >= obj.Size {
				end = obj.Size - 1
			}
			data, err := c.downloadRange(gctx, obj, start, end)
			if err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case results <- chunk{idx: i, data: data}:
				return nil
			}
		})
	}
	return g.Wait()
}

// downloadRange fetches one byte range, pinning the object generation
// and validating the returned Content-Range.
func (c *Client) downloadRange(ctx context.Context, obj *Object, start, end int64) ([]byte, error) {
	mediaURL := fmt.Sprintf("%s/b/%s/o/%s?alt=media&generation=%d", storageBase,
		url.PathEscape(obj.Bucket), url.PathEscape(obj.Name), obj.Generation)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gcloud: ranged GET %s: %s: %s", obj.URL(), resp.Status, body)
	}
	if resp.StatusCode == http.StatusPartialContent {
		want := fmt.Sprintf("bytes %d-%d/%d", start, end, obj.Size)
		if got := resp.Header.Get("Content-Range"); got != want {
			return nil, fmt.Errorf("gcloud: %s: expected Content-Range %q, got %q", obj.URL(), want, got)
		}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gcloud: reading range %d-%d of %s: %w", start, end, obj.URL(), err)
	}
	if int64(len(data)) != end-start+1 {
		return nil, fmt.Errorf("gcloud: %s: expected %d bytes, got %d", obj.URL(), end-start+1, len(data))
	}
	return data, nil
}

// verifyCrc32c checks a computed checksum against object metadata.
func verifyCrc32c(obj *Object, sum uint32) error {
	if obj.Crc32c == "" {
		return nil
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], sum)
	want := base64.StdEncoding.EncodeToString(buf[:])
	if want != obj.Crc32c {
		return fmt.Errorf("gcloud: CRC32C mismatch for %s: computed %s, metadata says %s",
			obj.URL(), want, obj.Crc32c)
	}
	return nil
}

// UploadObject streams r into a new object.
func (c *Client) UploadObject(ctx context.Context, dest GSURL, r io.Reader) error {
	upURL := fmt.Sprintf("%s/b/%s/o?uploadType=media&name=%s", uploadBase,
		url.PathEscape(dest.Bucket), url.QueryEscape(dest.Path))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, upURL, r)
	if err != nil {
		return err
	}
	tok, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "text/csv")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gcloud: uploading %s: %w", dest, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gcloud: uploading %s: %s: %s", dest, resp.Status, body)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// DeleteObject deletes one object, ignoring a missing one.
func (c *Client) DeleteObject(ctx context.Context, u GSURL) error {
	delURL := fmt.Sprintf("%s/b/%s/o/%s", storageBase,
		url.PathEscape(u.Bucket), url.PathEscape(u.Path))
	err := c.doJSON(ctx, "DELETE", delURL, nil, nil)
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// DeletePrefix deletes every object under a prefix. Used for cleanup of
// temporary transfer scratch space.
func (c *Client) DeletePrefix(ctx context.Context, prefix GSURL) error {
	objs, err := c.ListPrefix(ctx, prefix)
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := c.DeleteObject(ctx, obj.URL()); err != nil {
			return err
		}
	}
	return nil
}
