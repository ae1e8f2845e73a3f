package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/internal/period"
)

const probeIdentifier = "storyctl-verify-probe"

type CheckResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail"`
}

type VerifyReport struct {
	Checks []CheckResult `json:"checks"`
}

func (r *VerifyReport) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r *VerifyReport) Print(w io.Writer) {
	for _, c := range r.Checks {
		mark := "ok  "
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "[%s] %-24s %s\n", mark, c.Name, c.Detail)
	}
}

func (r *VerifyReport) add(name string, err error, detail string) {
	if err != nil {
		r.Checks = append(r.Checks, CheckResult{Name: name, Detail: err.Error()})
		return
	}
	r.Checks = append(r.Checks, CheckResult{Name: name, OK: true, Detail: detail})
}

// Verify checks that both tables answer, that a probe read can be written
// and read back, and, when procs is non-nil, that every delegated procedure
// is installed and callable. The probe read is deleted afterwards.
func Verify(ctx context.Context, store *SQLStore, procs *PGProcedures) *VerifyReport {
	report := &VerifyReport{}

	stories, err := store.CountStories(ctx)
	report.add("stories table", err, fmt.Sprintf("%d stories", stories))
	reads, err := store.CountReads(ctx, analytics.Filter{})
	report.add("story_reads table", err, fmt.Sprintf("%d reads", reads))

	verifyProbe(ctx, store, report)

	if procs != nil {
		verifyProcedures(ctx, procs, report)
	}
	return report
}

func verifyProbe(ctx context.Context, store *SQLStore, report *VerifyReport) {
	catalog, err := store.ListStories(ctx)
	if err != nil {
		report.add("probe read", err, "")
		return
	}
	if len(catalog) == 0 {
		report.add("probe read", nil, "skipped, catalog is empty")
		return
	}

	storyID := catalog[0].ID
	inserted, err := store.InsertRead(ctx, analytics.ReadEvent{StoryID: storyID, UserIdentifier: probeIdentifier})
	if err != nil {
		report.add("probe read", err, "")
		return
	}
	defer func() {
		report.add("probe cleanup", store.DeleteRead(ctx, inserted.ID), fmt.Sprintf("deleted read %d", inserted.ID))
	}()

	readers, err := store.ReaderReads(ctx, analytics.Filter{StoryID: storyID})
	if err != nil {
		report.add("probe read", err, "")
		return
	}
	for _, r := range readers {
		if r.UserIdentifier == probeIdentifier {
			report.add("probe read", nil, fmt.Sprintf("wrote and read back read %d on story %d", inserted.ID, storyID))
			return
		}
	}
	report.add("probe read", fmt.Errorf("read %d not visible after insert", inserted.ID), "")
}

func verifyProcedures(ctx context.Context, procs *PGProcedures, report *VerifyReport) {
	installed, err := procs.Installed(ctx)
	if err != nil {
		report.add("procedures installed", err, "")
		return
	}
	for _, name := range ProcedureNames {
		if !installed[name] {
			report.add("procedure "+name, fmt.Errorf("%s is not installed, run storyctl migrate", name), "")
		}
	}

	ranked, err := procs.RankStories(ctx, period.SummaryDefault, 5)
	report.add("get_top_stories", err, fmt.Sprintf("%d stories ranked", len(ranked)))
	series, err := procs.Trend(ctx, 0, period.SummaryDefault)
	report.add("get_time_series_data", err, fmt.Sprintf("%d days", len(series)))
	trend, err := procs.Trend(ctx, 1, period.SummaryDefault)
	report.add("get_story_read_trend", err, fmt.Sprintf("%d days", len(trend)))
}
