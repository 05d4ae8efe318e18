package main

import (
	"time"

	"wg-confkeeper/models"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	purple = lipgloss.Color("99")
	dim    = lipgloss.Color("243")
	faint  = lipgloss.Color("238")
)

var peerHeaders = []string{"NAME", "ADDRESS", "PUBLIC KEY", "CREATED", "PRIVATE KEY"}

func peerRows(peers []*models.PeerRecord) [][]string {
	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		addr := "-"
		if p.AllowedIPs != nil {
			addr = p.AllowedIPs.String()
		}
		created := "-"
		if t := p.Created(); !t.IsZero() {
			created = t.Format(time.DateTime)
		}
		priv := "unknown"
		if p.PrivateKey != "" {
			priv = "known"
		}
		name := p.Name
		if name == "" {
			name = "-"
		}
		rows = append(rows, []string{name, addr, p.PublicKey, created, priv})
	}
	return rows
}

// peerTable renders the registry with rounded borders.
func peerTable(peers []*models.PeerRecord) string {
	headerStyle := lipgloss.NewStyle().
		Foreground(purple).
		Bold(true).
		Padding(0, 1)

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	oddStyle := cellStyle.Foreground(dim)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(faint)).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return cellStyle
			default:
				return oddStyle
			}
		}).
		Headers(peerHeaders...).
		Rows(peerRows(peers)...)

	return t.String()
}
