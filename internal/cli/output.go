// Package cli renders retrieval results, answers and history for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperjump/schemarag/internal/models"
	"github.com/hyperjump/schemarag/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// MaxCellWidth bounds a result cell in text output.
const MaxCellWidth = 40

// ParseOutputFormat accepts "text", "json" or "" (text).
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRetrieval writes the ranked tables for question.
func WriteRetrieval(w io.Writer, question string, results []models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		if results == nil {
			results = []models.RetrievalResult{}
		}
		return writeJSON(w, map[string]any{"question": question, "results": results})
	}
	fmt.Fprintf(w, "\nTop %d tables for %q\n\n", len(results), question)
	writeRanked(w, results, true)
	return nil
}

func writeRanked(w io.Writer, results []models.RetrievalResult, withSummary bool) {
	for _, r := range results {
		if r.Relevance > 0 {
			fmt.Fprintf(w, "%d. %s (distance %.4f, relevance %.4f)\n", r.Rank, r.Table, r.Score, r.Relevance)
		} else {
			fmt.Fprintf(w, "%d. %s (distance %.4f)\n", r.Rank, r.Table, r.Score)
		}
		if withSummary && r.Summary != "" {
			fmt.Fprintf(w, "   %s\n", r.Summary)
		}
	}
}

// WriteAnswer writes the generated SQL and, when present, the result rows.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\nQuestion: %s\n\nTables:\n", answer.Question)
	writeRanked(w, answer.Retrieved, false)
	fmt.Fprintf(w, "\nSQL:\n%s\n", answer.SQL)
	if answer.Result != nil {
		fmt.Fprintln(w)
		if err := WriteResult(w, answer.Result); err != nil {
			return err
		}
	}
	return nil
}

// WriteResult writes rows as an aligned table followed by a row count.
func WriteResult(w io.Writer, result *models.QueryResult) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := make([]string, len(result.Columns))
	for i, c := range result.Columns {
		headers[i] = c.Name
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range result.Rows {
		cells := row.Strings()
		for i, c := range cells {
			cells[i] = utils.Truncate(strings.ReplaceAll(c, "\n", " "), MaxCellWidth)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	noun := "rows"
	if result.RowCount() == 1 {
		noun = "row"
	}
	fmt.Fprintf(w, "\n(%d %s in %s)\n", result.RowCount(), noun, result.Duration.Round(time.Microsecond))
	return nil
}

// WriteHistory writes question history records, newest first.
func WriteHistory(w io.Writer, records []*models.QuestionRecord, format OutputFormat) error {
	if format == OutputJSON {
		if records == nil {
			records = []*models.QuestionRecord{}
		}
		return writeJSON(w, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No questions yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tQUESTION\tTABLES\tROWS\tOUTCOME")
	for _, r := range records {
		outcome := utils.Truncate(r.SQL, MaxCellWidth)
		if r.Error != "" {
			outcome = "error: " + utils.Truncate(r.Error, MaxCellWidth)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			utils.Truncate(r.Question, MaxCellWidth),
			strings.Join(r.Tables, ","),
			r.RowCount,
			outcome)
	}
	return tw.Flush()
}
