// Package journal keeps the closed trades of a session and renders them as
// tables and Excel workbooks.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/xuri/excelize/v2"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
)

// Summary aggregates closed trades.
type Summary struct {
	Trades       int            `json:"trades"`
	Wins         int            `json:"wins"`
	Losses       int            `json:"losses"`
	WinRate      float64        `json:"win_rate"` // percent
	NetPnL       float64        `json:"net_pnl"`
	GrossProfit  float64        `json:"gross_profit"`
	GrossLoss    float64        `json:"gross_loss"`
	ProfitFactor float64        `json:"profit_factor"`
	BestTrade    float64        `json:"best_trade"`
	WorstTrade   float64        `json:"worst_trade"`
	AvgHold      time.Duration  `json:"avg_hold"`
	ByReason     map[string]int `json:"by_reason"`
}

// Journal is safe for concurrent use.
type Journal struct {
	mu      sync.RWMutex
	entries []registry.ClosedTrade
	limit   int
}

// New creates a journal keeping at most limit entries (0 = unbounded).
func New(limit int) *Journal {
	return &Journal{limit: limit}
}

func (j *Journal) Record(c registry.ClosedTrade) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, c)
	if j.limit > 0 && len(j.entries) > j.limit {
		j.entries = j.entries[len(j.entries)-j.limit:]
	}
}

// Entries returns a copy, oldest first.
func (j *Journal) Entries() []registry.ClosedTrade {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]registry.ClosedTrade, len(j.entries))
	copy(out, j.entries)
	return out
}

// Since returns entries closed at or after t.
func (j *Journal) Since(t time.Time) []registry.ClosedTrade {
	var out []registry.ClosedTrade
	for _, e := range j.Entries() {
		if !e.ExitTime.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) Summary() Summary {
	return Summarize(j.Entries())
}

// Summarize computes aggregate statistics over entries.
func Summarize(entries []registry.ClosedTrade) Summary {
	s := Summary{ByReason: make(map[string]int)}
	var held time.Duration
	for i, e := range entries {
		s.Trades++
		s.NetPnL += e.PnL
		held += e.Held
		s.ByReason[e.CloseReason]++
		if e.PnL > 0 {
			s.Wins++
			s.GrossProfit += e.PnL
		} else {
			s.Losses++
			s.GrossLoss += -e.PnL
		}
		if i == 0 || e.PnL > s.BestTrade {
			s.BestTrade = e.PnL
		}
		if i == 0 || e.PnL < s.WorstTrade {
			s.WorstTrade = e.PnL
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades) * 100
		s.AvgHold = held / time.Duration(s.Trades)
	}
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

// RenderTable renders the most recent max entries (0 = all) as a text table.
func (j *Journal) RenderTable(max int) string {
	entries := j.Entries()
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}

	t := table.NewWriter()
	t.SetTitle("CLOSED TRADES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Side", "Entry", "Exit", "PnL", "PnL %", "Reason", "Held"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.Symbol, e.Side.Label(),
			fmt.Sprintf("%.6g", e.EntryPrice), fmt.Sprintf("%.6g", e.ExitPrice),
			fmt.Sprintf("%+.2f", e.PnL), fmt.Sprintf("%+.2f%%", e.PnLPercent),
			e.CloseReason, e.Held.Round(time.Second).String(),
		})
	}

	s := Summarize(entries)
	t.AppendFooter(table.Row{"Total", "", "", "", fmt.Sprintf("%+.2f", s.NetPnL), fmt.Sprintf("win %.0f%%", s.WinRate), fmt.Sprintf("%d trades", s.Trades), ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})
	return t.Render()
}

// ExportXLSX writes a "Trades" and a "Summary" sheet to path.
func (j *Journal) ExportXLSX(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const summarySheet = "Summary"
	if err := fx.SetSheetName(fx.GetSheetName(0), tradesSheet); err != nil {
		return err
	}
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return err
	}

	header, err := fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	entries := j.Entries()
	if err := writeTradesSheet(fx, tradesSheet, entries, header); err != nil {
		return err
	}
	if err := writeSummarySheet(fx, summarySheet, Summarize(entries), header); err != nil {
		return err
	}
	return fx.SaveAs(path)
}

func writeTradesSheet(fx *excelize.File, sheet string, entries []registry.ClosedTrade, header int) error {
	headers := []interface{}{"ID", "Symbol", "Side", "Qty", "Entry", "Exit", "Leverage", "Margin",
		"PnL", "PnL %", "Score", "Reason", "Opened", "Closed", "Held (min)"}
	if err := fx.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := fx.SetCellStyle(sheet, "A1", last, header); err != nil {
		return err
	}

	for i, e := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []interface{}{
			e.ID, e.Symbol, e.Side.Label(), e.Qty, e.EntryPrice, e.ExitPrice, e.Leverage, e.Margin,
			e.PnL, e.PnLPercent, e.Score, e.CloseReason,
			e.StartTime.UTC().Format(time.RFC3339), e.ExitTime.UTC().Format(time.RFC3339),
			e.Held.Minutes(),
		}
		if err := fx.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return fx.SetColWidth(sheet, "A", "A", 38)
}

func writeSummarySheet(fx *excelize.File, sheet string, s Summary, header int) error {
	rows := [][]interface{}{
		{"Metric", "Value"},
		{"Trades", s.Trades},
		{"Wins", s.Wins},
		{"Losses", s.Losses},
		{"Win rate %", s.WinRate},
		{"Net PnL", s.NetPnL},
		{"Gross profit", s.GrossProfit},
		{"Gross loss", s.GrossLoss},
		{"Profit factor", s.ProfitFactor},
		{"Best trade", s.BestTrade},
		{"Worst trade", s.WorstTrade},
		{"Avg hold (min)", s.AvgHold.Minutes()},
	}
	for i := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := fx.SetSheetRow(sheet, cell, &rows[i]); err != nil {
			return err
		}
	}
	if err := fx.SetCellStyle(sheet, "A1", "B1", header); err != nil {
		return err
	}
	return fx.SetColWidth(sheet, "A", "A", 18)
}
