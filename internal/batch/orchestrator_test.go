package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smarchal/reformulator/internal/csvio"
	"github.com/smarchal/reformulator/internal/rewrite"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	return path
}

const scenarioCSV = "id;name;moduledescription\n" +
	"1;alpha;<p>A</p>\n" +
	"2;beta;\n" +
	"3;gamma;<p>C</p>\n"

func TestOrchestrator_Run(t *testing.T) {
	t.Run("mixed outcomes keep the batch alive", func(t *testing.T) {
		// Row 1 rewrites, row 2 is an empty no-op, row 3 fails
		// permanently and keeps its original value.
		mock := rewrite.NewMockRewriter()
		mock.Latency = 0
		mock.Func = func(ctx context.Context, req *rewrite.Request) (*rewrite.Response, error) {
			switch req.Text {
			case "<p>A</p>":
				return &rewrite.Response{RewrittenHTML: "<p>A2</p>"}, nil
			default:
				return nil, rewrite.NewPermanent("content rejected", nil)
			}
		}

		input := writeCSV(t, scenarioCSV)
		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			Workers:   2,
			Retry:     fastRetry(5),
		}, mock, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		result, err := orch.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}

		if result.Total != 3 || result.Succeeded != 1 || result.Failed != 1 || result.Skipped != 1 {
			t.Errorf("unexpected summary: %+v", result)
		}

		out, err := csvio.Load(orch.OutputPath(), 0)
		if err != nil {
			t.Fatalf("failed to load output: %v", err)
		}
		if len(out.Records) != 3 {
			t.Fatalf("expected 3 output rows, got %d", len(out.Records))
		}
		if got := out.Records[0]["moduledescription"]; got != "<p>A2</p>" {
			t.Errorf("row 1: expected rewritten value, got %q", got)
		}
		if got := out.Records[1]["moduledescription"]; got != "" {
			t.Errorf("row 2: expected empty value preserved, got %q", got)
		}
		if got := out.Records[2]["moduledescription"]; got != "<p>C</p>" {
			t.Errorf("row 3: expected original value preserved, got %q", got)
		}

		// Column isolation: non-target columns are untouched.
		for i, wantName := range []string{"alpha", "beta", "gamma"} {
			if out.Records[i]["name"] != wantName {
				t.Errorf("row %d: name column changed to %q", i+1, out.Records[i]["name"])
			}
		}
	})

	t.Run("dry run skips every row and preserves content", func(t *testing.T) {
		input := writeCSV(t, scenarioCSV)
		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			DryRun:    true,
		}, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		result, err := orch.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Skipped != 3 || result.Succeeded != 0 || result.Failed != 0 {
			t.Errorf("unexpected summary: %+v", result)
		}

		in, _ := csvio.Load(input, 0)
		out, err := csvio.Load(orch.OutputPath(), 0)
		if err != nil {
			t.Fatalf("failed to load output: %v", err)
		}
		for i := range in.Records {
			for _, col := range in.Header {
				if out.Records[i][col] != in.Records[i][col] {
					t.Errorf("row %d column %s changed: %q vs %q",
						i, col, out.Records[i][col], in.Records[i][col])
				}
			}
		}
	})

	t.Run("row limit excludes rows beyond the cap", func(t *testing.T) {
		input := writeCSV(t, scenarioCSV)
		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			DryRun:    true,
			LimitRows: 2,
		}, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		result, err := orch.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if result.Total != 2 {
			t.Errorf("expected 2 rows processed, got %d", result.Total)
		}

		out, _ := csvio.Load(orch.OutputPath(), 0)
		if len(out.Records) != 2 {
			t.Errorf("expected 2 output rows, got %d", len(out.Records))
		}
	})

	t.Run("missing target column fails fast", func(t *testing.T) {
		input := writeCSV(t, "id;name\n1;alpha\n")
		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			DryRun:    true,
		}, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		if _, err := orch.Run(context.Background()); err == nil {
			t.Error("expected error for missing column")
		}
	})

	t.Run("missing input file fails fast", func(t *testing.T) {
		orch, err := NewOrchestrator(RunOptions{
			InputPath: filepath.Join(t.TempDir(), "nope.csv"),
			Column:    "moduledescription",
			DryRun:    true,
		}, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}
		if _, err := orch.Run(context.Background()); err == nil {
			t.Error("expected error for missing input")
		}
	})

	t.Run("abort still writes a complete output file", func(t *testing.T) {
		mock := rewrite.NewMockRewriter()
		mock.Latency = 20 * time.Millisecond
		mock.Func = func(ctx context.Context, req *rewrite.Request) (*rewrite.Response, error) {
			return &rewrite.Response{RewrittenHTML: "R-" + req.Text}, nil
		}

		var sb strings.Builder
		sb.WriteString("id;moduledescription\n")
		for i := 0; i < 12; i++ {
			fmt.Fprintf(&sb, "%d;<p>v%d</p>\n", i+1, i)
		}
		input := writeCSV(t, sb.String())

		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			Workers:   2,
			Retry:     fastRetry(3),
		}, mock, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(5 * time.Millisecond)
			cancel()
		}()

		result, err := orch.Run(ctx)
		if err != nil {
			t.Fatalf("Run after abort: %v", err)
		}
		if result.Total != 12 {
			t.Errorf("expected 12 rows in result, got %d", result.Total)
		}
		if result.Failed != 0 {
			t.Errorf("abort must not count rows as failed, got %d", result.Failed)
		}

		out, err := csvio.Load(orch.OutputPath(), 0)
		if err != nil {
			t.Fatalf("output file missing after abort: %v", err)
		}
		if len(out.Records) != 12 {
			t.Fatalf("expected all 12 rows in output, got %d", len(out.Records))
		}
		for i, rec := range out.Records {
			orig := fmt.Sprintf("<p>v%d</p>", i)
			got := rec["moduledescription"]
			if got != orig && got != "R-"+orig {
				t.Errorf("row %d: expected original or rewritten value, got %q", i+1, got)
			}
		}
	})

	t.Run("row count is conserved", func(t *testing.T) {
		mock := rewrite.NewMockRewriter()
		mock.Latency = 0

		input := writeCSV(t, scenarioCSV)
		orch, err := NewOrchestrator(RunOptions{
			InputPath: input,
			Column:    "moduledescription",
			Workers:   3,
			Retry:     fastRetry(2),
		}, mock, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}

		result, err := orch.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		out, _ := csvio.Load(orch.OutputPath(), 0)
		if len(out.Records) != result.Total {
			t.Errorf("output rows %d != processed rows %d", len(out.Records), result.Total)
		}
	})
}

func TestNewOrchestrator_Validation(t *testing.T) {
	t.Run("requires input path", func(t *testing.T) {
		if _, err := NewOrchestrator(RunOptions{Column: "x", DryRun: true}, nil, nil, nil); err == nil {
			t.Error("expected error for missing input path")
		}
	})

	t.Run("requires column", func(t *testing.T) {
		if _, err := NewOrchestrator(RunOptions{InputPath: "in.csv", DryRun: true}, nil, nil, nil); err == nil {
			t.Error("expected error for missing column")
		}
	})

	t.Run("requires rewriter unless dry run", func(t *testing.T) {
		if _, err := NewOrchestrator(RunOptions{InputPath: "in.csv", Column: "x"}, nil, nil, nil); err == nil {
			t.Error("expected error for missing rewriter")
		}
	})

	t.Run("derives output path", func(t *testing.T) {
		orch, err := NewOrchestrator(RunOptions{InputPath: "data/in.csv", Column: "x", DryRun: true}, nil, nil, nil)
		if err != nil {
			t.Fatalf("NewOrchestrator: %v", err)
		}
		if orch.OutputPath() != "data/in_rewritten.csv" {
			t.Errorf("unexpected output path %q", orch.OutputPath())
		}
	})
}
