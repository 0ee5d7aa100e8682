package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// renderSummaries prints one row per completed stage run
func renderSummaries(w io.Writer, summaries ...*Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Stage", "Total", "Succeeded", "Failed", "Skipped"})

	for _, s := range summaries {
		if s == nil {
			continue
		}
		t.AppendRow(table.Row{s.Stage, s.Total, s.Succeeded, s.Failed, s.Skipped})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// stageStatus is the on-disk progress of one stage
type stageStatus struct {
	Stage   string
	Done    int
	Outputs int
	Errors  int
}

// collectStatus counts ledger entries, output records and error lines per stage
func collectStatus(settings *Settings) ([]stageStatus, error) {
	stages := []struct {
		name    string
		ledger  string
		output  string
		errors  string
		records func(path string) (int, error)
	}{
		{"ingest", settings.Ingest.LedgerFile, settings.Ingest.ArticlesFile, settings.Ingest.ErrorsFile, countArticles},
		{"generate", settings.Generate.LedgerFile, settings.Generate.PostsFile, settings.Generate.ErrorsFile, CountLines},
		{"render", settings.Render.LedgerFile, settings.Render.PostsFile, settings.Render.ErrorsFile, CountLines},
	}

	statuses := make([]stageStatus, 0, len(stages))
	for _, st := range stages {
		ledger, err := LoadLedger(st.ledger)
		if err != nil {
			return nil, err
		}
		outputs, err := st.records(st.output)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", st.output, err)
		}
		errorLines, err := CountLines(st.errors)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", st.errors, err)
		}
		statuses = append(statuses, stageStatus{
			Stage:   st.name,
			Done:    ledger.Len(),
			Outputs: outputs,
			Errors:  errorLines,
		})
	}
	return statuses, nil
}

// countArticles counts data rows in the article store; multi-line abstracts
// make a plain line count wrong
func countArticles(path string) (int, error) {
	articles, err := ReadArticlesCSV(path)
	if err != nil {
		return 0, err
	}
	return len(articles), nil
}

func renderStatus(w io.Writer, statuses []stageStatus) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Stage", "Done", "Records", "Errors"})
	for _, s := range statuses {
		t.AppendRow(table.Row{s.Stage, s.Done, s.Outputs, s.Errors})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
