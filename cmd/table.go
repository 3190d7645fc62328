package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/MimeLyc/tiered-sub-translator/internal/pipeline"
	"github.com/MimeLyc/tiered-sub-translator/internal/record"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// summaryTable lays a run summary out as a two column table.
func summaryTable(summary *pipeline.Summary, output string) string {
	if summary == nil {
		return ""
	}

	rows := [][]string{
		{"Lines", strconv.Itoa(summary.Total)},
		{"Batches", strconv.Itoa(summary.Batches)},
	}
	for _, status := range record.Statuses {
		if n := summary.Statuses[status]; n > 0 {
			rows = append(rows, []string{"Status " + string(status), strconv.Itoa(n)})
		}
	}
	for _, tier := range []record.Tier{record.TierFast, record.TierQuality} {
		rows = append(rows, []string{fmt.Sprintf("Tier %s", tier), strconv.Itoa(summary.Tiers[tier])})
	}
	rows = append(rows,
		[]string{"Failed batches", strconv.Itoa(summary.FailedBatches)},
		[]string{"Recovered batches", strconv.Itoa(summary.RecoveredBatches)},
		[]string{"Duration", summary.Duration.Round(time.Millisecond).String()},
	)
	if summary.Cancelled {
		rows = append(rows, []string{"Cancelled", "yes"})
	}
	if output != "" {
		rows = append(rows, []string{"Output", output})
	}
	return renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
