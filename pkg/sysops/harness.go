package sysops

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"rollguard/pkg/snapshot"
)

var (
	passedRe = regexp.MustCompile(`(\d+) passed`)
	failedRe = regexp.MustCompile(`(\d+) failed`)
)

// CommandHarness runs the configured test command and parses its summary
// output.
type CommandHarness struct {
	Command string        // run via sh -c
	Dir     string        // working directory
	Timeout time.Duration // hard wall clock; default 5m
}

// RunAll executes the full suite. A timeout is an error of this step, never a
// hang. A non-zero exit with parsable output is not an error: failing tests
// are an outcome, not an exception.
func (h CommandHarness) RunAll(ctx context.Context) (snapshot.TestReport, error) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", h.Command)
	cmd.Dir = h.Dir
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return snapshot.TestReport{}, fmt.Errorf("harness timed out after %s", timeout)
	}
	report := ParseSummary(string(out))
	if err != nil && report.Total == 0 {
		// Could not even run the suite.
		return snapshot.TestReport{}, fmt.Errorf("harness failed: %v output=%s", err, truncateOut(string(out)))
	}
	return report, nil
}

// ParseSummary extracts "<N> passed" / "<N> failed" counts from harness
// output. Missing patterns default to 0.
func ParseSummary(out string) snapshot.TestReport {
	report := snapshot.TestReport{Output: out}
	if m := passedRe.FindStringSubmatch(out); len(m) == 2 {
		report.Passing, _ = strconv.Atoi(m[1])
	}
	if m := failedRe.FindStringSubmatch(out); len(m) == 2 {
		report.Failing, _ = strconv.Atoi(m[1])
	}
	report.Total = report.Passing + report.Failing
	return report
}

func truncateOut(s string) string {
	const max = 2048
	if len(s) > max {
		return s[:max]
	}
	return s
}
