package main

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/phrazzld/scry-tasks/internal/store"
)

// column renders one field of T. Numeric columns set alignRight.
type column[T any] struct {
	header     string
	alignRight bool
	cell       func(T) string
}

// renderTable lays out rows under columns in a rounded table.
func renderTable[T any](columns []column[T], rows []T) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, c := range columns {
		header[i] = c.header
		align := text.AlignLeft
		if c.alignRight {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, v := range rows {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			row[i] = c.cell(v)
		}
		tw.AppendRow(row)
	}
	return tw.Render()
}

var taskColumns = []column[store.IndexEntry]{
	{header: "ID", cell: func(e store.IndexEntry) string { return e.ID }},
	{header: "Status", cell: func(e store.IndexEntry) string { return string(e.Status) }},
	{header: "Priority", cell: func(e store.IndexEntry) string { return string(e.Priority) }},
	{header: "Category", cell: func(e store.IndexEntry) string { return e.Category }},
	{header: "Created", cell: func(e store.IndexEntry) string { return e.CreatedAt.Local().Format(time.DateTime) }},
	{header: "Bytes", alignRight: true, cell: func(e store.IndexEntry) string { return strconv.Itoa(e.Size) }},
}

// integrityCount is one line of the verify summary.
type integrityCount struct {
	check string
	count int
}

var integrityColumns = []column[integrityCount]{
	{header: "Check", cell: func(c integrityCount) string { return c.check }},
	{header: "Count", alignRight: true, cell: func(c integrityCount) string { return strconv.Itoa(c.count) }},
}

func integrityCounts(report store.IntegrityReport) []integrityCount {
	return []integrityCount{
		{"Valid", report.Valid},
		{"Invalid", report.Invalid},
		{"Checksum mismatches", report.ChecksumMismatches},
		{"Parse failures", report.ParseFailures},
		{"Misplaced", report.Misplaced},
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
