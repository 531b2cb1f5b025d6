package report

import (
	"sort"
	"strconv"

	"github.com/fedragon/go-sidecar/internal/db"
	"github.com/fedragon/go-sidecar/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type Summary struct {
	Sidecars    int
	Outcomes    map[models.Outcome]int
	Strategies  map[models.Strategy]int
	Unparseable int
	Unmatched   int
	NoMetadata  int
	Resumed     int
	Ignored     int
}

func (r *Report) Summary() Summary {
	s := Summary{
		Outcomes:    make(map[models.Outcome]int),
		Strategies:  make(map[models.Strategy]int),
		Unparseable: len(r.Unparseable),
		Unmatched:   len(r.Unmatched),
		NoMetadata:  len(r.NoMetadata),
		Resumed:     len(r.Resumed),
		Ignored:     len(r.Ignored),
	}

	for _, res := range r.Results {
		s.Outcomes[res.Outcome]++
		s.Strategies[res.Item.Strategy]++
	}
	s.Sidecars = len(r.Results) + s.Unparseable + s.Unmatched + s.NoMetadata + s.Resumed

	return s
}

// Failed counts items that were attempted and did not succeed.
func (s Summary) Failed() int {
	return s.Outcomes[models.CopyFailed] + s.Outcomes[models.ToolFailed] + s.Outcomes[models.Exception]
}

func (s Summary) Table() string {
	rows := [][]string{{"sidecars", strconv.Itoa(s.Sidecars)}}

	for _, o := range []models.Outcome{models.Success, models.SuccessWithWarning, models.DryRun, models.CopyFailed, models.ToolFailed, models.Exception} {
		if n := s.Outcomes[o]; n > 0 {
			rows = append(rows, []string{o.String(), strconv.Itoa(n)})
		}
	}

	rows = append(rows,
		[]string{"already_restored", strconv.Itoa(s.Resumed)},
		[]string{"unparseable", strconv.Itoa(s.Unparseable)},
		[]string{"unmatched", strconv.Itoa(s.Unmatched)},
		[]string{"no_metadata", strconv.Itoa(s.NoMetadata)},
		[]string{"ignored_json", strconv.Itoa(s.Ignored)},
	)

	strategies := make([]models.Strategy, 0, len(s.Strategies))
	for st := range s.Strategies {
		strategies = append(strategies, st)
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i] < strategies[j] })
	for _, st := range strategies {
		rows = append(rows, []string{"matched by " + st.String(), strconv.Itoa(s.Strategies[st])})
	}

	return renderTable([]string{"", "count"}, rows, 2)
}

// JournalTable renders journal entries, one per sidecar.
func JournalTable(entries []db.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.Sidecar,
			e.Outcome,
			e.Media,
			e.Destination,
			e.RunID,
			e.RecordedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return renderTable([]string{"sidecar", "outcome", "media", "destination", "run", "recorded"}, rows)
}

// renderTable right-aligns the columns numbered in rightAligned (from 1).
func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	columns := len(headers)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, n := range rightAligned {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
