// Package archive writes sync runs to Parquet files, one file per run, laid
// out as <dir>/<group>/<finished-unix-ms>.parquet.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/store"
)

var log = logging.Component("archive")

// Options configures the archive.
type Options struct {
	// Compression algorithm
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default archive options.
func DefaultOptions() Options {
	return Options{Compression: CompressionZstd}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none", "":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Row is one archived result together with its run metadata.
type Row struct {
	RunID        int64  `parquet:"run_id"`
	Group        string `parquet:"group,dict"`
	StartedMs    int64  `parquet:"started_ms"`
	FinishedMs   int64  `parquet:"finished_ms"`
	Position     int32  `parquet:"position"`
	DataSourceID int64  `parquet:"data_source_id"`
	Severity     string `parquet:"severity,dict"`
	Title        string `parquet:"title,dict"`
	Message      string `parquet:"message"`
}

// Result converts the row back into a result.
func (r Row) Result() (result.Result, error) {
	sev, err := result.ParseSeverity(r.Severity)
	if err != nil {
		return result.Result{}, err
	}
	return result.New(r.DataSourceID, sev, r.Title, r.Message), nil
}

// =============================================================================
// Archive
// =============================================================================

// Archive is a directory of run files.
type Archive struct {
	dir  string
	opts Options
}

// New creates an archive rooted at dir.
func New(dir string, opts Options) *Archive {
	return &Archive{dir: dir, opts: opts}
}

// Dir returns the archive root.
func (a *Archive) Dir() string {
	return a.dir
}

// WriteRun writes one run and returns the file path. The file is written
// under a temporary name and renamed when complete.
func (a *Archive) WriteRun(run store.Run, results []result.Result) (string, error) {
	dir := filepath.Join(a.dir, safeName(run.Group))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.parquet", run.FinishedAt.UnixMilli()))
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{
			RunID:        run.ID,
			Group:        run.Group,
			StartedMs:    run.StartedAt.UnixMilli(),
			FinishedMs:   run.FinishedAt.UnixMilli(),
			Position:     int32(i),
			DataSourceID: r.DataSourceID,
			Severity:     r.Severity.String(),
			Title:        r.Title,
			Message:      r.Message,
		}
	}

	writer := parquet.NewGenericWriter[Row](f, parquet.Compression(getCompression(a.opts.Compression)))
	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("close writer: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename: %w", err)
	}

	log.Debug("run archived", "group", run.Group, "run_id", run.ID, "rows", len(rows), "path", path)
	return path, nil
}

// Files returns the run files of a group, oldest first.
func (a *Archive) Files(group string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(a.dir, safeName(group), "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadAll reads every archived row of a group, oldest run first.
func (a *Archive) ReadAll(group string) ([]Row, error) {
	paths, err := a.Files(group)
	if err != nil {
		return nil, err
	}
	var out []Row
	for _, p := range paths {
		rows, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// ReadFile reads every row of one run file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, 0, reader.NumRows())
	buf := make([]Row, 512)
	for {
		n, err := reader.Read(buf)
		rows = append(rows, buf[:n]...)
		if err == io.EOF || (err == nil && n == 0) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

// safeName turns a group name into a single path element.
func safeName(group string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, group)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
