package db

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nickyhof/MiniDB/core"
)

type ResultType int

const (
	QueryResultType ResultType = iota
	CommitResultType
)

type Result interface {
	Type() ResultType
	Display()
	Render(w io.Writer)
}

type QueryResult struct {
	Columns          []string   `json:"columns"`
	Rows             []core.Row `json:"rows"`
	RecordsRead      int        `json:"recordsRead"`
	ExecutionTimeSec float64    `json:"executionTimeSec"`
	ExecutionOps     int        `json:"executionOps"`
	Plan             []string   `json:"plan,omitempty"`
}

type CommitResult struct {
	TablesCreated    int     `json:"tablesCreated,omitempty"`
	TablesDeleted    int     `json:"tablesDeleted,omitempty"`
	IndexesCreated   int     `json:"indexesCreated,omitempty"`
	IndexesDeleted   int     `json:"indexesDeleted,omitempty"`
	RecordsWritten   int     `json:"recordsWritten,omitempty"`
	RecordsUpdated   int     `json:"recordsUpdated,omitempty"`
	RecordsDeleted   int     `json:"recordsDeleted,omitempty"`
	ExecutionTimeSec float64 `json:"executionTimeSec"`
	ExecutionOps     int     `json:"executionOps"`
}

func (result QueryResult) Type() ResultType {
	return QueryResultType
}

func (result CommitResult) Type() ResultType {
	return CommitResultType
}

// RowsAffected counts the rows inserted, updated or deleted.
func (result CommitResult) RowsAffected() int {
	return result.RecordsWritten + result.RecordsUpdated + result.RecordsDeleted
}

// Cells is Data with NULL cells left nil, so NULL stays distinct from the
// text 'NULL'.
func (result QueryResult) Cells() [][]*string {
	cells := make([][]*string, len(result.Rows))
	for i, row := range result.Rows {
		cells[i] = make([]*string, len(row))
		for j, v := range row {
			if !v.IsNull() {
				s := v.String()
				cells[i][j] = &s
			}
		}
	}
	return cells
}

// Data renders every cell as text, NULL included.
func (result QueryResult) Data() [][]string {
	data := make([][]string, len(result.Rows))
	for i, row := range result.Rows {
		data[i] = make([]string, len(row))
		for j, v := range row {
			data[i][j] = v.String()
		}
	}
	return data
}

// formatDuration formats a duration in human-readable form
func formatDuration(secs float64) string {
	if secs < 0.001 {
		return "<1ms"
	} else if secs < 1 {
		ms := secs * 1000
		if ms < 10 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	} else if secs < 60 {
		if secs < 10 {
			return fmt.Sprintf("%.1fs", secs)
		}
		return fmt.Sprintf("%ds", int(secs))
	}
	mins := int(secs / 60)
	remainSecs := int(secs) % 60
	if remainSecs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, remainSecs)
}

func formatThroughput(secs float64, opCount int) string {
	if secs <= 0 || opCount <= 0 {
		return ""
	}
	ops := float64(opCount) / secs
	switch {
	case ops >= 1000000:
		return fmt.Sprintf(", %.1fM ops/s", ops/1000000)
	case ops >= 1000:
		return fmt.Sprintf(", %.1fK ops/s", ops/1000)
	default:
		return fmt.Sprintf(", %.0f ops/s", ops)
	}
}

func (result QueryResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result CommitResult) ExecutionTime() string {
	return formatDuration(result.ExecutionTimeSec)
}

func (result QueryResult) Display() {
	result.Render(os.Stdout)
}

func (result CommitResult) Display() {
	result.Render(os.Stdout)
}

// Render writes the result table followed by a one-line summary.
func (result QueryResult) Render(w io.Writer) {
	if len(result.Rows) > 0 {
		fmt.Fprintln(w, RenderTable(result.Columns, result.Data(), func(row, col int) bool {
		return result.Rows[row][col].IsNull()
	}))
	}

	plan := ""
	if len(result.Plan) > 0 {
		plan = "; " + strings.Join(result.Plan, ", ")
	}
	fmt.Fprintf(w, "%d rows (%s%s%s)\n", result.RecordsRead, result.ExecutionTime(),
		formatThroughput(result.ExecutionTimeSec, result.ExecutionOps), plan)
}

func (result CommitResult) Render(w io.Writer) {
	var parts []string

	counts := []struct {
		n    int
		what string
	}{
		{result.TablesCreated, "table(s) created"},
		{result.TablesDeleted, "table(s) deleted"},
		{result.IndexesCreated, "index(es) created"},
		{result.IndexesDeleted, "index(es) deleted"},
		{result.RecordsWritten, "record(s) written"},
		{result.RecordsUpdated, "record(s) updated"},
		{result.RecordsDeleted, "record(s) deleted"},
	}
	for _, c := range counts {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.what))
		}
	}

	throughput := formatThroughput(result.ExecutionTimeSec, result.ExecutionOps)
	if len(parts) == 0 {
		fmt.Fprintf(w, "OK (%s%s)\n", result.ExecutionTime(), throughput)
	} else {
		fmt.Fprintf(w, "%s (%s%s)\n", strings.Join(parts, ", "), result.ExecutionTime(), throughput)
	}
}
