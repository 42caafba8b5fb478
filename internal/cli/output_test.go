package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_DashesEmptyCells(t *testing.T) {
	var buf bytes.Buffer
	o := &Output{w: &buf, errW: &buf}

	o.Table([]string{"ID", "STATE", "ERROR"}, [][]string{
		{"kf", "SUCCEEDED", ""},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header, separator and one row, got %d lines", len(lines))
	}
	row := strings.Fields(lines[2])
	if len(row) != 3 || row[2] != "-" {
		t.Errorf("empty cell must render as a dash, got %q", lines[2])
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(3, 5); got != "3/5" {
		t.Errorf("expected 3/5, got %q", got)
	}
	if got := ratio(0, 0); got != "0/0" {
		t.Errorf("expected 0/0, got %q", got)
	}
}
