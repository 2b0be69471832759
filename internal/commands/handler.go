// Package commands answers operator commands from chat or any other text transport.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ducminhle1904/crypto-futures-bot/internal/bot"
	"github.com/ducminhle1904/crypto-futures-bot/internal/journal"
	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
)

// Controller is the part of the bot commands operate on.
type Controller interface {
	Status(ctx context.Context) bot.Status
	Pause()
	Resume()
	IsPaused() bool
	CloseSymbol(ctx context.Context, symbol string) error
	PanicCloseAll(ctx context.Context) (int, error)
	RefreshBalance(ctx context.Context) (float64, error)
	Journal() *journal.Journal
}

const helpText = `Commands:
/status - bot state and open trades
/positions - open trades with live PnL
/balance - account balance
/pnl - session results
/watchers - position watchers
/pause - stop new entries
/resume - allow new entries
/close SYMBOL - close one trade
/panic confirm - close everything and pause
/help - this message`

// Handler maps command text to a reply. Replies are plain text; tables are wrapped
// in a code block so chat clients keep the alignment.
type Handler struct {
	ctl     Controller
	timeout time.Duration
}

func NewHandler(ctl Controller) *Handler {
	return &Handler{ctl: ctl, timeout: 30 * time.Second}
}

// Handle runs one command line such as "/close BTCUSDT".
func (h *Handler) Handle(ctx context.Context, line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return helpText
	}
	cmd := strings.ToLower(fields[0])
	// "/status@MyBot" in group chats
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	args := fields[1:]

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/status":
		return h.status(ctx)
	case "/positions":
		return h.positions(ctx)
	case "/balance":
		return h.balance(ctx)
	case "/pnl":
		return h.pnl()
	case "/watchers":
		return h.watchers(ctx)
	case "/pause":
		if h.ctl.IsPaused() {
			return "Already paused."
		}
		h.ctl.Pause()
		return "⏸ Paused. Open trades stay managed."
	case "/resume":
		if !h.ctl.IsPaused() {
			return "Not paused."
		}
		h.ctl.Resume()
		return "▶️ Resumed."
	case "/close":
		return h.closeSymbol(ctx, args)
	case "/panic":
		return h.panicClose(ctx, args)
	}
	return fmt.Sprintf("Unknown command %s. Send /help for the list.", fields[0])
}

func (h *Handler) status(ctx context.Context) string {
	st := h.ctl.Status(ctx)
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(strings.ToUpper(st.BotName))

	mode := "LIVE"
	if st.DryRun {
		mode = "DRY RUN"
	}
	state := "running"
	switch {
	case st.Paused:
		state = "paused"
	case st.DailyBlocked:
		state = "daily loss limit"
	}
	t.AppendRows([]table.Row{
		{"Exchange", st.Exchange},
		{"Mode", mode},
		{"State", state},
		{"Uptime", st.Uptime.String()},
		{"Balance", fmt.Sprintf("%.2f", st.Balance)},
		{"Open", fmt.Sprintf("%d/%d", st.Capacity.Open, st.Capacity.MaxOpen)},
		{"Margin", fmt.Sprintf("%.2f", st.Capacity.AllocatedMargin)},
		{"Unrealized", fmt.Sprintf("%+.2f", st.UnrealizedPnL())},
		{"Today", fmt.Sprintf("%+.2f (%d trades)", st.Daily.PnL, st.Daily.Trades)},
	})
	out := t.Render()
	if len(st.Trades) > 0 {
		out += "\n" + tradesTable(st.Trades)
	}
	return codeBlock(out)
}

func (h *Handler) positions(ctx context.Context) string {
	st := h.ctl.Status(ctx)
	if len(st.Trades) == 0 {
		return "No open trades."
	}
	return codeBlock(tradesTable(st.Trades))
}

func tradesTable(trades []bot.TradeStatus) string {
	sort.Slice(trades, func(i, j int) bool { return trades[i].Symbol < trades[j].Symbol })
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Side", "Entry", "Price", "TP", "SL", "PnL", "PnL %"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.Symbol, tr.Side.Label(),
			fmt.Sprintf("%.6g", tr.EntryPrice), fmt.Sprintf("%.6g", tr.Price),
			fmt.Sprintf("%.6g", tr.TPPrice), fmt.Sprintf("%.6g", tr.SLPrice),
			fmt.Sprintf("%+.2f", tr.PnL), fmt.Sprintf("%+.2f%%", tr.PnLPercent),
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
	})
	return t.Render()
}

func (h *Handler) balance(ctx context.Context) string {
	bal, err := h.ctl.RefreshBalance(ctx)
	if err != nil {
		return fmt.Sprintf("⚠️ Balance refresh failed: %v\nLast known: %.2f", err, bal)
	}
	return fmt.Sprintf("💰 Balance: %.2f", bal)
}

func (h *Handler) pnl() string {
	j := h.ctl.Journal()
	s := j.Summary()
	if s.Trades == 0 {
		return "No closed trades this session."
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("SESSION")
	t.AppendRows([]table.Row{
		{"Trades", s.Trades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", s.Wins, s.Losses)},
		{"Win rate", fmt.Sprintf("%.1f%%", s.WinRate)},
		{"Net PnL", fmt.Sprintf("%+.2f", s.NetPnL)},
		{"Profit factor", fmt.Sprintf("%.2f", s.ProfitFactor)},
		{"Best / Worst", fmt.Sprintf("%+.2f / %+.2f", s.BestTrade, s.WorstTrade)},
		{"Avg hold", s.AvgHold.Round(time.Second).String()},
	})
	return codeBlock(t.Render() + "\n" + j.RenderTable(10))
}

func (h *Handler) watchers(ctx context.Context) string {
	st := h.ctl.Status(ctx)
	if len(st.Watchers) == 0 {
		return "No active watchers."
	}
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Symbol", "Kind", "State", "Detail"})
	for _, w := range st.Watchers {
		t.AppendRow(table.Row{w.Symbol, w.Kind, w.State, w.Detail})
	}
	return codeBlock(t.Render())
}

func (h *Handler) closeSymbol(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: /close SYMBOL"
	}
	symbol := strings.ToUpper(args[0])
	err := h.ctl.CloseSymbol(ctx, symbol)
	switch {
	case errors.Is(err, registry.ErrTradeNotFound):
		return fmt.Sprintf("No open trade on %s.", symbol)
	case errors.Is(err, registry.ErrAlreadyClosing):
		return fmt.Sprintf("%s is already closing.", symbol)
	case err != nil:
		return fmt.Sprintf("❌ Close %s failed: %v", symbol, err)
	}
	return fmt.Sprintf("✅ %s closed.", symbol)
}

func (h *Handler) panicClose(ctx context.Context, args []string) string {
	if len(args) != 1 || strings.ToLower(args[0]) != "confirm" {
		return "⚠️ This closes every open trade and pauses entries. Send /panic confirm to proceed."
	}
	n, err := h.ctl.PanicCloseAll(ctx)
	if err != nil {
		return fmt.Sprintf("🚨 Closed %d trade(s), errors:\n%v", n, err)
	}
	return fmt.Sprintf("🚨 Closed %d trade(s). Entries paused, /resume to continue.", n)
}

func codeBlock(s string) string {
	return "```\n" + s + "\n```"
}
