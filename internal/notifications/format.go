package notifications

import (
	"fmt"
	"strings"
	"time"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
	"github.com/ducminhle1904/crypto-futures-bot/internal/signal"
)

func modeTag(dryRun bool) string {
	if dryRun {
		return " (dry run)"
	}
	return ""
}

// FormatTradeOpened renders an entry alert.
func FormatTradeOpened(t registry.Trade, dryRun bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 *%s %s opened*%s\n", t.Side.Label(), EscapeMarkdown(t.Symbol), modeTag(dryRun))
	fmt.Fprintf(&b, "Entry: `%.6g` Qty: `%.6g` Lev: `%dx`\n", t.EntryPrice, t.Qty, t.Leverage)
	fmt.Fprintf(&b, "TP: `%.6g` (%.2f%%) SL: `%.6g` (%.2f%%)\n", t.TPPrice, t.TPPercent, t.SLPrice, t.SLPercent)
	fmt.Fprintf(&b, "Margin: `%.2f` Score: `%d/%d`", t.Margin, t.Score, signal.MaxScore)
	return b.String()
}

// FormatTradeClosed renders an exit alert.
func FormatTradeClosed(c registry.ClosedTrade, dryRun bool) string {
	icon := "🟢"
	if c.PnL < 0 {
		icon = "🔴"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s %s closed*%s\n", icon, c.Side.Label(), EscapeMarkdown(c.Symbol), modeTag(dryRun))
	fmt.Fprintf(&b, "Reason: %s\n", EscapeMarkdown(c.CloseReason))
	fmt.Fprintf(&b, "Entry: `%.6g` Exit: `%.6g`\n", c.EntryPrice, c.ExitPrice)
	fmt.Fprintf(&b, "PnL: `%+.2f` (%+.2f%%) Held: %s", c.PnL, c.PnLPercent, c.Held.Round(time.Second))
	return b.String()
}

// FormatSignal renders a scored signal with its reasons.
func FormatSignal(s signal.Signal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 *Signal %s %s* score `%d/%d` at `%.6g`", EscapeMarkdown(s.Symbol), s.Direction.Label(), s.Score, signal.MaxScore, s.Price)
	for _, r := range s.Reasons {
		fmt.Fprintf(&b, "\n• %s", EscapeMarkdown(r))
	}
	return b.String()
}

// FormatError renders a failure alert.
func FormatError(context string, err error) string {
	return fmt.Sprintf("*%s* failed\n`%s`", EscapeMarkdown(context), strings.ReplaceAll(err.Error(), "`", "'"))
}
