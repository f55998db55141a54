package ingest

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rezkaaufar/hybrid-search-service/internal/errors"
)

const (
	// DefaultRequestTimeout bounds a single dataset download.
	DefaultRequestTimeout = 5 * time.Minute

	// maxLineBytes caps one JSONL record; review datasets occasionally
	// carry very long review bodies.
	maxLineBytes = 4 * 1024 * 1024
)

// Record is one ingestable source item.
type Record struct {
	SourceID string
	Title    string
	URL      string
	Text     string
}

// Source streams records to a consumer callback. Implementations must
// not materialize the full dataset in memory; a yield error aborts the
// stream and is returned as-is.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Stream produces records one at a time until exhaustion, a yield
	// error, or ctx cancellation.
	Stream(ctx context.Context, yield func(*Record) error) error
}

// reviewRecord mirrors the Amazon review JSONL layout.
type reviewRecord struct {
	Summary    string `json:"summary"`
	ReviewText string `json:"reviewText"`
	ASIN       string `json:"asin"`
	ReviewerID string `json:"reviewerID"`
}

// reviewContent joins summary and body. Either part may be absent; a
// record with neither is unusable.
func reviewContent(rec *reviewRecord) string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(rec.Summary); s != "" {
		parts = append(parts, s)
	}
	if t := strings.TrimSpace(rec.ReviewText); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, ". ")
}

// streamReviewLines scans gzip-or-plain JSONL from r, yielding one
// Record per usable line. Malformed lines are skipped silently, same
// as a JSONL consumer that tolerates partial corruption.
func streamReviewLines(ctx context.Context, r io.Reader, name, provenanceURL string, maxItems int, yield func(*Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	emitted := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rec reviewRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		content := reviewContent(&rec)
		if content == "" {
			continue
		}

		asin := rec.ASIN
		if asin == "" {
			asin = "unknown"
		}
		reviewer := rec.ReviewerID
		if reviewer == "" {
			reviewer = "unknown"
		}

		out := &Record{
			SourceID: fmt.Sprintf("%s:%s:%s:%d", name, asin, reviewer, emitted),
			Title:    fmt.Sprintf("%s review %s", name, asin),
			URL:      provenanceURL,
			Text:     content,
		}
		if err := yield(out); err != nil {
			return err
		}
		emitted++
		if maxItems > 0 && emitted >= maxItems {
			break
		}
	}
	return scanner.Err()
}

// RemoteDataset streams a gzipped JSONL review dataset over HTTP.
type RemoteDataset struct {
	DatasetName string
	URL         string
	MaxItems    int
	Timeout     time.Duration

	client *http.Client
}

var _ Source = (*RemoteDataset)(nil)

func NewRemoteDataset(name, url string, maxItems int, timeout time.Duration) *RemoteDataset {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &RemoteDataset{
		DatasetName: name,
		URL:         url,
		MaxItems:    maxItems,
		Timeout:     timeout,
		client:      &http.Client{},
	}
}

func (d *RemoteDataset) Name() string { return d.DatasetName }

// Stream downloads the dataset and decodes it line by line; the
// response body is never buffered whole.
func (d *RemoteDataset) Stream(ctx context.Context, yield func(*Record) error) error {
	reqCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, d.URL, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSourceFetchFailed, err)
	}

	slog.Info("dataset_download_started",
		slog.String("dataset", d.DatasetName),
		slog.String("url", d.URL))

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSourceFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.ErrCodeSourceFetchFailed,
			fmt.Sprintf("dataset download failed with status %d", resp.StatusCode), nil).
			WithDetail("dataset", d.DatasetName).
			WithDetail("url", d.URL)
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSourceFetchFailed, err)
	}
	defer gz.Close()

	return streamReviewLines(reqCtx, gz, d.DatasetName, d.URL, d.MaxItems, yield)
}

// LocalDirSource streams records from .json/.jsonl/.json.gz files under
// a directory, walked recursively.
type LocalDirSource struct {
	Path            string
	MaxItemsPerFile int
}

var _ Source = (*LocalDirSource)(nil)

func NewLocalDirSource(path string, maxItemsPerFile int) *LocalDirSource {
	return &LocalDirSource{Path: path, MaxItemsPerFile: maxItemsPerFile}
}

func (d *LocalDirSource) Name() string { return "local:" + d.Path }

func isIngestableFile(name string) bool {
	return strings.HasSuffix(name, ".json") ||
		strings.HasSuffix(name, ".jsonl") ||
		strings.HasSuffix(name, ".json.gz")
}

// Stream walks the directory and streams every ingestable file. A
// directory that yields no usable files at all is fatal; a single
// unreadable file is logged and skipped.
func (d *LocalDirSource) Stream(ctx context.Context, yield func(*Record) error) error {
	info, err := os.Stat(d.Path)
	if err != nil || !info.IsDir() {
		return errors.New(errors.ErrCodeNoSourceData,
			"local data path is not a directory", err).
			WithDetail("path", d.Path)
	}

	var files []string
	walkErr := filepath.WalkDir(d.Path, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && isIngestableFile(entry.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return errors.Wrap(errors.ErrCodeSourceFetchFailed, walkErr)
	}
	if len(files) == 0 {
		return errors.New(errors.ErrCodeNoSourceData,
			"no .json/.jsonl/.json.gz files found under local data path", nil).
			WithDetail("path", d.Path)
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.streamFile(ctx, path, yield); err != nil {
			if errors.GetCode(err) == errors.ErrCodeSourceFetchFailed {
				slog.Warn("local_file_skipped",
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			return err
		}
	}
	return nil
}

func (d *LocalDirSource) streamFile(ctx context.Context, path string, yield func(*Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSourceFetchFailed, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeSourceFetchFailed, err)
		}
		defer gz.Close()
		reader = gz
	}

	name := datasetNameFromPath(path)
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return streamReviewLines(ctx, reader, name, "file://"+abs, d.MaxItemsPerFile, yield)
}

// datasetNameFromPath strips the directory and ingestable extensions.
func datasetNameFromPath(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, ".gz")
	name = strings.TrimSuffix(name, ".json")
	name = strings.TrimSuffix(name, ".jsonl")
	return name
}
