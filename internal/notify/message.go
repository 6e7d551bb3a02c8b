package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/utrading/utrading-liq-monitor/internal/models"
)

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

// NewPositionMessage 新开仓提醒
func NewPositionMessage(p models.Position, side models.Side, risk float64) string {
	var sb strings.Builder
	sb.WriteString("🔍 *NEW POSITION OPENED*\n")
	fmt.Fprintf(&sb, "📊 *Symbol:* %s\n", esc(p.Symbol))
	fmt.Fprintf(&sb, "📈 *Side:* %s\n", side)
	if p.Leverage > 0 {
		fmt.Fprintf(&sb, "💰 *Leverage:* %dx\n", p.Leverage)
	}
	fmt.Fprintf(&sb, "🎯 *Entry:* %s\n", formatPrice(p.EntryPrice))
	fmt.Fprintf(&sb, "📉 *Liquidation:* %s\n", formatPrice(p.LiquidationPrice))
	fmt.Fprintf(&sb, "⚠️ *Initial risk:* %.2f%%", risk)
	return sb.String()
}

// HighRiskMessage 接近强平提醒
func HighRiskMessage(p models.Position, side models.Side, risk, threshold float64) string {
	var sb strings.Builder
	sb.WriteString("🚨 *LIQUIDATION RISK*\n")
	fmt.Fprintf(&sb, "📊 *Symbol:* %s\n", esc(p.Symbol))
	fmt.Fprintf(&sb, "📈 *Side:* %s\n", side)
	fmt.Fprintf(&sb, "💥 *Risk:* %.2f%% (threshold %.2f%%)\n", risk, threshold)
	fmt.Fprintf(&sb, "🎯 *Entry:* %s\n", formatPrice(p.EntryPrice))
	fmt.Fprintf(&sb, "💰 *Mark:* %s\n", formatPrice(p.MarkPrice))
	fmt.Fprintf(&sb, "🛑 *Liquidation:* %s\n", formatPrice(p.LiquidationPrice))
	sb.WriteString("🔴 *Action:* reduce or close the position")
	return sb.String()
}

func formatPrice(v float64) string {
	switch {
	case v >= 1000:
		return fmt.Sprintf("%.2f", v)
	case v >= 1:
		return fmt.Sprintf("%.4f", v)
	}
	return fmt.Sprintf("%.6f", v)
}

// SplitMessage 按行拆分超长消息，单行超长时按字节硬切
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var (
		parts   []string
		current string
	)
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			if current != "" {
				parts = append(parts, current)
				current = ""
			}
			parts = append(parts, line[:maxLen])
			line = line[maxLen:]
		}

		candidate := line
		if current != "" {
			candidate = current + "\n" + line
		}
		if len(candidate) > maxLen {
			parts = append(parts, current)
			current = line
		} else {
			current = candidate
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return parts
}
