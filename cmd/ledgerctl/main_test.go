package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mmdatafocus/backoffice/models"
	"github.com/mmdatafocus/backoffice/utils"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"invalid", fmt.Errorf("%w: bad date", utils.ErrInvalidInput), exitInvalid},
		{"tenant not found", fmt.Errorf("authorize: %w: acme", utils.ErrTenantNotFound), exitTenantNotFound},
		{"report not found", fmt.Errorf("%w: report r1", utils.ErrNotFound), exitInvalid},
		{"partial", fmt.Errorf("sync: %w", &partialFailure{failed: 2}), exitPartialFailure},
		{"other", errors.New("boom"), exitInvalid},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("%s: exitCode = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestParseSyncKind(t *testing.T) {
	for _, value := range []string{"", "all", "ALL"} {
		kind, err := parseSyncKind(value)
		if err != nil || kind != nil {
			t.Fatalf("parseSyncKind(%q) = %v, %v; want nil, nil", value, kind, err)
		}
	}
	kind, err := parseSyncKind("job_order")
	if err != nil || kind == nil || *kind != models.SourceKindJobOrder {
		t.Fatalf("parseSyncKind(job_order) = %v, %v", kind, err)
	}
	for _, value := range []string{"manual_entry", "manual", "inventory", "expense"} {
		if _, err := parseSyncKind(value); !errors.Is(err, utils.ErrInvalidInput) {
			t.Fatalf("parseSyncKind(%q): expected invalid input, got %v", value, err)
		}
	}
}

func TestReportFailures(t *testing.T) {
	if err := reportFailures(syncCmd, 0); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	err := reportFailures(syncCmd, 3)
	var partial *partialFailure
	if !errors.As(err, &partial) || partial.failed != 3 {
		t.Fatalf("expected partial failure of 3, got %v", err)
	}
}
