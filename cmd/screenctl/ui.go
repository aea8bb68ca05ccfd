package main

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"ScreenRadar/pkg/model"
)

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED"))

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)

	addedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	removedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))
)

func renderTable(headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return mutedStyle.Render("(none)")
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

func renderStocks(stocks []model.StockSnapshot) string {
	rows := make([][]string, 0, len(stocks))
	for _, s := range stocks {
		sector := s.Sector
		if sector == "" {
			sector = "N/A"
		}
		rows = append(rows, []string{
			s.Symbol,
			s.Name,
			formatNumber(s.Price, 2),
			formatMarketCap(s.MarketCap),
			formatNumber(s.PERatio, 2),
			sector,
		})
	}
	return renderTable([]string{"Symbol", "Name", "Price", "Market Cap", "P/E", "Sector"}, rows)
}

func renderWatchlists(watches []*model.Watchlist) string {
	rows := make([][]string, 0, len(watches))
	for _, w := range watches {
		fundamental, technical := w.WatchCriteria().Compile()
		checked := "never"
		if w.LastChecked != nil {
			checked = w.LastChecked.Local().Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			w.ID,
			w.Name,
			string(w.Index),
			string(fundamental),
			string(technical),
			strconv.Itoa(len(w.Matches)),
			strconv.FormatBool(w.IsActive),
			checked,
		})
	}
	return renderTable([]string{"ID", "Name", "Index", "Fundamental", "Technical", "Matches", "Active", "Last Checked"}, rows)
}

func formatNumber(p *float64, places int32) string {
	if p == nil {
		return "-"
	}
	return decimal.NewFromFloat(*p).StringFixed(places)
}

// formatMarketCap renders large caps with a B/T suffix.
func formatMarketCap(p *float64) string {
	if p == nil {
		return "-"
	}
	v := *p
	d := decimal.NewFromFloat(v)
	switch {
	case v >= 1e12:
		return d.Div(decimal.New(1, 12)).StringFixed(2) + "T"
	case v >= 1e9:
		return d.Div(decimal.New(1, 9)).StringFixed(2) + "B"
	case v >= 1e6:
		return d.Div(decimal.New(1, 6)).StringFixed(2) + "M"
	}
	return d.StringFixed(0)
}
