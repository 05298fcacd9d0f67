// Package roster ingests agent and call rosters from spreadsheet exports.
// Column positions are auto-detected from header text.
package roster

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

// Row is one parsed roster line.
type Row struct {
	EmployeeID string
	AgentName  string
	Department string
	AudioPath  string
	CallDate   time.Time
	CallerNum  string
}

// ImportResult summarizes one roster import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	CallIDs  []int64  `json:"call_ids"`
	Problems []string `json:"problems,omitempty"`
}

type Importer struct {
	store *store.Store
}

func New(s *store.Store) *Importer {
	return &Importer{store: s}
}

// Import parses the spreadsheet and creates agents and pending calls. Rows
// without a usable recording reference are skipped, not fatal.
func (im *Importer) Import(ctx context.Context, path string) (*ImportResult, error) {
	rows, problems, err := Parse(path)
	if err != nil {
		return nil, err
	}
	log := logger.New().WithField("module", "roster")

	result := &ImportResult{Problems: problems}
	for _, row := range rows {
		agent, err := im.store.GetOrCreateAgent(ctx, row.EmployeeID, row.AgentName, row.Department)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", row.EmployeeID, err)
		}
		call, err := im.store.CreateCall(ctx, store.NewCall{
			AgentID:      agent.ID,
			AudioPath:    row.AudioPath,
			CallDate:     row.CallDate,
			CallerNumber: row.CallerNum,
		})
		if err != nil {
			return nil, fmt.Errorf("call for agent %s: %w", row.EmployeeID, err)
		}
		result.Imported++
		result.CallIDs = append(result.CallIDs, call.ID)
	}
	result.Skipped = len(problems)
	log.WithField("imported", result.Imported).WithField("skipped", result.Skipped).Info("roster import finished")
	return result, nil
}

// Parse reads the first sheet and auto-detects columns by header heuristics.
func Parse(path string) ([]Row, []string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open roster: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("roster has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil, fmt.Errorf("roster has no data rows")
	}

	idx := detectColumns(rows[0])
	if idx.audio == -1 {
		return nil, nil, fmt.Errorf("roster has no recording column")
	}

	var (
		out      []Row
		problems []string
	)
	for i, r := range rows[1:] {
		row := Row{
			EmployeeID: cell(r, idx.employee),
			AgentName:  cell(r, idx.name),
			Department: cell(r, idx.department),
			AudioPath:  cell(r, idx.audio),
			CallerNum:  cell(r, idx.caller),
		}
		if row.AudioPath == "" {
			problems = append(problems, fmt.Sprintf("row %d: no recording reference", i+2))
			continue
		}
		if row.EmployeeID == "" {
			problems = append(problems, fmt.Sprintf("row %d: no employee id", i+2))
			continue
		}
		if row.AgentName == "" {
			row.AgentName = row.EmployeeID
		}
		row.CallDate = parseCallDate(cell(r, idx.date))
		out = append(out, row)
	}
	return out, problems, nil
}

type columns struct {
	employee   int
	name       int
	department int
	audio      int
	date       int
	caller     int
}

func detectColumns(header []string) columns {
	idx := columns{employee: -1, name: -1, department: -1, audio: -1, date: -1, caller: -1}
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "employee") || strings.Contains(l, "agent id"):
			if idx.employee == -1 {
				idx.employee = i
			}
		case strings.Contains(l, "name"):
			if idx.name == -1 {
				idx.name = i
			}
		case strings.Contains(l, "department") || strings.Contains(l, "team"):
			if idx.department == -1 {
				idx.department = i
			}
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "url") || strings.Contains(l, "link"):
			if idx.audio == -1 {
				idx.audio = i
			}
		case strings.Contains(l, "date") || strings.Contains(l, "time"):
			if idx.date == -1 {
				idx.date = i
			}
		case strings.Contains(l, "caller") || strings.Contains(l, "phone") || strings.Contains(l, "number"):
			if idx.caller == -1 {
				idx.caller = i
			}
		}
	}
	return idx
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseCallDate accepts the formats the exports are known to use and falls
// back to now for anything else.
func parseCallDate(value string) time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		types.DateLayout,
		"01-02-06",
		"1/2/06 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}
