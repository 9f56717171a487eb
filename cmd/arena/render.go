package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-arena/internal/domain"
)

// Output formats accepted by -o.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	winnerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// battleReport is the machine-readable form of a finished battle.
type battleReport struct {
	ID            int64                       `json:"id,omitempty" yaml:"id,omitempty"`
	Prompt        string                      `json:"prompt" yaml:"prompt"`
	Winner        string                      `json:"winner" yaml:"winner"`
	WinnerDisplay string                      `json:"winner_display" yaml:"winner_display"`
	Responses     []domain.ResponseRecord     `json:"responses" yaml:"responses"`
	Tiebreak      domain.TiebreakRecord       `json:"tiebreaker_info" yaml:"tiebreaker_info"`
	ParseModes    map[string]domain.ParseMode `json:"parse_modes" yaml:"parse_modes"`
	Timing        map[string]any              `json:"timing" yaml:"timing"`
}

func newBattleReport(id int64, result *domain.BattleResult, record domain.BattleRecord) battleReport {
	return battleReport{
		ID:            id,
		Prompt:        result.Prompt,
		Winner:        result.Winner,
		WinnerDisplay: result.DisplayName(result.Winner),
		Responses:     record.SortedByScore(),
		Tiebreak:      result.Tiebreak,
		ParseModes:    result.ParseModes,
		Timing:        result.Timing.Report(),
	}
}

func validFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderBattle(w io.Writer, r battleReport, display func(string) string) {
	fmt.Fprintln(w, titleStyle.Render("Prompt"))
	fmt.Fprintln(w, r.Prompt)
	fmt.Fprintln(w)

	rows := make([][]string, 0, len(r.Responses))
	for i, resp := range r.Responses {
		mark := ""
		if resp.IsWinner {
			mark = "★"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			display(resp.Model),
			strconv.FormatFloat(resp.AverageScore, 'f', 2, 64),
			string(r.ParseModes[resp.Model]),
			mark,
		})
	}
	fmt.Fprintln(w, newTable([]string{"#", "Model", "Average", "Judge output", "Winner"}, rows))

	for _, resp := range r.Responses {
		fmt.Fprintln(w)
		name := display(resp.Model)
		if resp.IsWinner {
			name = winnerStyle.Render(name + " ★")
		} else {
			name = titleStyle.Render(name)
		}
		fmt.Fprintln(w, name)
		fmt.Fprintln(w, strings.TrimSpace(resp.Text))
		for _, judge := range slices.Sorted(maps.Keys(resp.Ratings)) {
			rating := resp.Ratings[judge]
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %s: %.1f  %s", display(judge), rating.Score, rating.Reasoning)))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Winner: %s\n", winnerStyle.Render(r.WinnerDisplay))
	if r.Tiebreak.TieOccurred {
		fmt.Fprintf(w, "Tie between %s resolved by %s\n",
			strings.Join(r.Tiebreak.TiedModels, ", "), r.Tiebreak.Method)
	}
	if total, ok := r.Timing["total"].(float64); ok {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("Total time: %.2fs", total)))
	}
}

func renderLeaderboard(w io.Writer, lb domain.Leaderboard) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Leaderboard (%d battles)", lb.TotalBattles)))
	if len(lb.Entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No battles yet."))
		return
	}

	rows := make([][]string, 0, len(lb.Entries))
	for i, e := range lb.Entries {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			e.Model,
			strconv.Itoa(e.Wins),
			strconv.FormatFloat(e.AverageScore, 'f', 2, 64),
			strconv.FormatFloat(e.WinRate, 'f', 2, 64) + "%",
		})
	}
	fmt.Fprintln(w, newTable([]string{"#", "Model", "Wins", "Avg score", "Win rate"}, rows))
}

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

