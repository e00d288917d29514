// Package wire provides length-delimited protobuf framing for streams of
// sync runs and results.
//
// Each frame is a google.protobuf.Struct prefixed with its varint length.
// A stream holds a run header followed by the results of that run, and may
// carry several runs back to back. Errors travel as their own frame.
package wire

import (
	"bufio"
	"fmt"
	"io"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/store"
)

// Frame kinds.
const (
	KindRun    = "run"
	KindResult = "result"
	KindError  = "error"
)

// Frame is one decoded message.
type Frame struct {
	Kind string

	// KindRun
	Run store.Run

	// KindResult
	RunID    int64
	Position int
	Result   result.Result

	// KindError
	Code    int32
	Message string
}

// =============================================================================
// Reader
// =============================================================================

// Reader reads frames from an io.Reader.
// It is safe for concurrent use.
type Reader struct {
	r       *bufio.Reader
	mu      sync.Mutex
	maxSize int
}

// NewReader creates a Reader wrapping the given io.Reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), maxSize: config.DefaultMaxMessageSize}
}

// Read reads and decodes the next frame. It returns io.EOF at the end of a
// well formed stream and an error if a frame exceeds the maximum size.
func (r *Reader) Read() (Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := &structpb.Struct{}
	opts := protodelim.UnmarshalOptions{MaxSize: int64(r.maxSize)}
	if err := opts.UnmarshalFrom(r.r, msg); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return decode(msg)
}

// ReadAll reads frames until the end of the stream.
func (r *Reader) ReadAll() ([]Frame, error) {
	var out []Frame
	for {
		f, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
}

// =============================================================================
// Writer
// =============================================================================

// Writer writes frames to an io.Writer.
// It is safe for concurrent use.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a Writer wrapping the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(fields map[string]any) error {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := protodelim.MarshalTo(w.w, msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// WriteRun writes a run header.
func (w *Writer) WriteRun(run store.Run) error {
	return w.write(map[string]any{
		"kind":        KindRun,
		"run_id":      run.ID,
		"group":       run.Group,
		"started_ms":  run.StartedAt.UnixMilli(),
		"finished_ms": run.FinishedAt.UnixMilli(),
	})
}

// WriteResult writes one result of a run.
func (w *Writer) WriteResult(runID int64, position int, r result.Result) error {
	return w.write(map[string]any{
		"kind":           KindResult,
		"run_id":         runID,
		"position":       position,
		"data_source_id": r.DataSourceID,
		"severity":       r.Severity.String(),
		"title":          r.Title,
		"message":        r.Message,
	})
}

// WriteRunResults writes a run header followed by its results.
func (w *Writer) WriteRunResults(run store.Run, results []result.Result) error {
	if err := w.WriteRun(run); err != nil {
		return err
	}
	for i, r := range results {
		if err := w.WriteResult(run.ID, i, r); err != nil {
			return err
		}
	}
	return nil
}

// WriteError writes an error frame, mapping err to its wire code.
func (w *Writer) WriteError(err error) error {
	return w.write(map[string]any{
		"kind":    KindError,
		"code":    errors.ErrorToCode(err),
		"message": err.Error(),
	})
}

// =============================================================================
// Decoding
// =============================================================================

func decode(msg *structpb.Struct) (Frame, error) {
	fields := msg.GetFields()
	str := func(k string) string { return fields[k].GetStringValue() }
	num := func(k string) int64 { return int64(fields[k].GetNumberValue()) }

	f := Frame{Kind: str("kind")}
	switch f.Kind {
	case KindRun:
		f.Run = store.Run{
			ID:         num("run_id"),
			Group:      str("group"),
			StartedAt:  time.UnixMilli(num("started_ms")).UTC(),
			FinishedAt: time.UnixMilli(num("finished_ms")).UTC(),
		}

	case KindResult:
		sev, err := result.ParseSeverity(str("severity"))
		if err != nil {
			return Frame{}, fmt.Errorf("decode result: %w", err)
		}
		f.RunID = num("run_id")
		f.Position = int(num("position"))
		f.Result = result.New(num("data_source_id"), sev, str("title"), str("message"))

	case KindError:
		f.Code = int32(num("code"))
		f.Message = str("message")

	default:
		return Frame{}, errors.NewInvalidArgument("unknown frame kind %q", f.Kind)
	}
	return f, nil
}
