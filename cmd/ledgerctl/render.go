package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ineyio/botledger"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		})
}

// renderTiers prints one column per tier and one row per model.
func renderTiers(w io.Writer, infos []botledger.TierInfo, catalog botledger.Catalog) {
	headers := []string{"model"}
	for _, info := range infos {
		headers = append(headers, info.Name)
	}
	t := newTable(headers...)

	price := []string{"price"}
	for _, info := range infos {
		price = append(price, info.Price)
	}
	t.Row(price...)

	for _, m := range catalog {
		row := []string{m.Key}
		for _, info := range infos {
			row = append(row, formatQuota(info.Limits[m.Key]))
		}
		t.Row(row...)
	}
	fmt.Fprintln(w, t.Render())
}

// renderAccount prints the account's tier, quotas and history sizes.
func renderAccount(w io.Writer, userID string, acc botledger.Account) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("user "+userID), dimStyle.Render("tier "+acc.Tier))

	keys := make([]string, 0, len(acc.Limits))
	for k := range acc.Limits {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	t := newTable("model", "remaining", "history")
	for _, k := range keys {
		t.Row(k, formatQuota(acc.Limits[k]), strconv.Itoa(len(acc.History[k])))
	}
	fmt.Fprintln(w, t.Render())
}

func formatQuota(n int64) string {
	if n >= botledger.UnlimitedQuota {
		return "unlimited"
	}
	return strconv.FormatInt(n, 10)
}
