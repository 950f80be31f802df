package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/moverwatch/internal/models"
)

// SystemPrompt walks the session through mover, history, analysis and report.
// The email step is included only when recipients are configured.
func SystemPrompt(period models.Period, recipients []string, today time.Time) string {
	date := today.Format("2006-01-02")

	var b strings.Builder
	fmt.Fprintf(&b, "You are an automated NASDAQ stock analysis assistant. Today is %s.\n\n", date)
	b.WriteString("When asked to run the daily analysis, follow these steps in order without asking the user for input:\n\n")

	b.WriteString("1. Call get_top_mover to find the #1 top gaining NASDAQ stock right now.\n\n")

	fmt.Fprintf(&b, "2. Call get_stock_history on that symbol with period=%q to get %s of daily OHLCV data.\n", period, periodPhrase(period))
	b.WriteString("   Optionally call get_stock_news on the symbol for context on the move.\n\n")

	b.WriteString("3. Call analyze_data with the history JSON as data to compute:\n")
	b.WriteString("   - Daily closing prices and percentage returns for each day\n")
	b.WriteString("   - Total return over the period\n")
	b.WriteString("   - Average daily volume vs today's volume (volume spike ratio)\n")
	b.WriteString("   - Highest and lowest close over the period\n")
	b.WriteString("   - Today's price range (high - low) as a percentage of open price (intraday volatility)\n")
	b.WriteString("   The code must print() every result. If it returns an error, fix the code and retry.\n\n")

	b.WriteString("4. Write a concise markdown report covering:\n")
	b.WriteString("   - Stock name, symbol, exchange, and today's gain\n")
	b.WriteString("   - Price trend and total return over the period\n")
	b.WriteString("   - Volume analysis: how unusual is today's volume vs the period average\n")
	b.WriteString("   - Key observations about the price action and any relevant headlines\n")

	if len(recipients) > 0 {
		b.WriteString("\n5. Call generate_chart with the history JSON, chart_type \"candlestick\" and a descriptive title.\n\n")
		fmt.Fprintf(&b, "6. Call send_email with to=%q, subject \"[%s] <SYMBOL> Daily Analysis\", ", strings.Join(recipients, ","), date)
		b.WriteString("the full report as body and the chart_path from step 5. Do not ask for confirmation.\n")
		b.WriteString("\nFinish by replying with the report.")
	} else {
		b.WriteString("\nFinish by replying with the report. Do not send email.")
	}

	return b.String()
}

// UserPrompt is the task message that starts a run
func UserPrompt(period models.Period) string {
	return fmt.Sprintf("Run the %s analysis.", period)
}

func periodPhrase(p models.Period) string {
	n := p.TradingDays()
	if n == 1 {
		return "the last trading day"
	}
	return fmt.Sprintf("about the last %d trading days", n)
}
