package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestTaxonomy(t *testing.T) {
	t.Log("Test 1 - invalid argument")
	err := InvalidArgument("batch size %v", 0)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if err.Error() != "invalid argument: batch size 0" {
		t.Fatalf("unexpected message %q", err.Error())
	}

	t.Log("Test 2 - transient wrapping keeps the cause")
	err = fmt.Errorf("extract: %w", TransientRemote(io.ErrUnexpectedEOF))
	if !errors.Is(err, ErrTransientRemote) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected transient wrapping of the cause, got %v", err)
	}
	if TransientRemote(nil) != nil {
		t.Fatal("expected nil for a nil cause")
	}

	t.Log("Test 3 - status errors")
	if !errors.Is(&StatusError{Code: 503}, ErrTransientRemote) {
		t.Fatal("expected 503 to be transient")
	}
	if errors.Is(&StatusError{Code: 404}, ErrTransientRemote) {
		t.Fatal("expected 404 to be fatal")
	}

	t.Log("Test 4 - partial write")
	var pw *PartialWriteError
	err = fmt.Errorf("load: %w", &PartialWriteError{Table: "db.t", Partition: "202501", Err: io.EOF})
	if !errors.Is(err, ErrPartialWrite) || !errors.As(err, &pw) || pw.Partition != "202501" {
		t.Fatalf("unexpected partial write matching for %v", err)
	}

	t.Log("Test 5 - skip reasons")
	if !IsSkip(ErrGuardedNoOp) || !IsSkip(fmt.Errorf("x: %w", ErrUpstreamSkipped)) || IsSkip(io.EOF) {
		t.Fatal("unexpected IsSkip result")
	}
}
