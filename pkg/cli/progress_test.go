package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSampleProgress(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSampleProgress(buf, 30)

	progress.Update(15, "collecting")
	progress.Update(30, "promote")
	progress.Finish()

	output := buf.String()
	if !strings.Contains(output, "15/30 collecting") {
		t.Errorf("missing first update in %q", output)
	}
	if !strings.Contains(output, "30/30 promote") {
		t.Errorf("missing second update in %q", output)
	}
	if strings.Count(output, "\r") != 2 {
		t.Errorf("expected 2 redraws, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Error("Finish() should end the line")
	}
}

func TestSampleProgressOvershoot(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSampleProgress(buf, 10)

	progress.Update(25, "")
	if strings.Contains(buf.String(), "░") {
		t.Errorf("bar should be full past the target: %q", buf.String())
	}
}

func TestSampleProgressZeroTarget(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSampleProgress(buf, 0)

	progress.Update(5, "none")
	progress.Finish()
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestSampleProgressError(t *testing.T) {
	buf := &bytes.Buffer{}
	progress := NewSampleProgress(buf, 30)

	progress.Update(3, "collecting")
	progress.Error(errors.New("connection refused"))

	if !strings.Contains(buf.String(), "Error: connection refused") {
		t.Errorf("missing error in %q", buf.String())
	}
}
