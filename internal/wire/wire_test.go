package wire

import (
	"bytes"
	"fmt"
	"io"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/store"
)

func TestWriter_RunResults(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run := store.Run{ID: 12, Group: "core", StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	results := []result.Result{
		result.New(7, result.SeveritySuccess, "Add Subnet", "10.0.0.0/24 was created"),
		result.New(7, result.SeverityError, "Search in the current structure", "gi0/9 not found"),
	}

	if err := w.WriteRunResults(run, results); err != nil {
		t.Fatalf("WriteRunResults() error = %v", err)
	}

	frames, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(frames))
	}

	if frames[0].Kind != KindRun || frames[0].Run.ID != 12 || frames[0].Run.Group != "core" ||
		!frames[0].Run.StartedAt.Equal(run.StartedAt) || !frames[0].Run.FinishedAt.Equal(run.FinishedAt) {
		t.Errorf("run frame = %+v", frames[0])
	}
	for i, f := range frames[1:] {
		if f.Kind != KindResult || f.RunID != 12 || f.Position != i || f.Result != results[i] {
			t.Errorf("result frame %d = %+v", i, f)
		}
	}
}

func TestWriter_Error(t *testing.T) {
	var buf bytes.Buffer
	if err := NewWriter(&buf).WriteError(fmt.Errorf("run 9: %w", errors.ErrRunNotFound)); err != nil {
		t.Fatalf("WriteError() error = %v", err)
	}

	f, err := NewReader(&buf).Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if f.Kind != KindError || f.Code != errors.ErrorToCode(errors.ErrRunNotFound) || f.Message != "run 9: sync run not found" {
		t.Errorf("frame = %+v", f)
	}
}

func TestReader_EOF(t *testing.T) {
	if _, err := NewReader(&bytes.Buffer{}).Read(); err != io.EOF {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestReader_UnknownKind(t *testing.T) {
	var buf bytes.Buffer
	msg, _ := structpb.NewStruct(map[string]any{"kind": "bogus"})
	if _, err := protodelim.MarshalTo(&buf, msg); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReader(&buf).Read(); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Read() error = %v", err)
	}
}

func TestReader_MaxSize(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	big := string(bytes.Repeat([]byte("x"), 64))
	if err := w.WriteResult(1, 0, result.New(1, result.SeverityInformation, "t", big)); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	r.maxSize = 16
	if _, err := r.Read(); err == nil || err == io.EOF {
		t.Errorf("Read() error = %v, want size error", err)
	}
}
