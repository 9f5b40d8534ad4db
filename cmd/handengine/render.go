package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/handengine/internal/cards"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/sanitize"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	indexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	phaseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	redCardStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	blackCardStyle = lipgloss.NewStyle().
			Bold(true)

	winStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	loseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// renderLog prints a hand log entry by entry. With a viewer the players are
// shown through the sanitizer, as that player would have seen them.
func renderLog(w io.Writer, l *handlog.Log, viewer string) {
	fmt.Fprintln(w, headerStyle.Render("Hand "+l.HandID()))
	fmt.Fprintf(w, "commitment %s\n", l.Commitment())
	if proof, ok := l.Proof(); ok {
		fmt.Fprintf(w, "seed       %s\nnonce      %s\n", proof.Seed, proof.Nonce)
	} else {
		fmt.Fprintln(w, mutedStyle.Render("unrevealed"))
	}
	fmt.Fprintln(w)

	entries := l.All()
	for _, e := range entries {
		line := fmt.Sprintf("%s %-22s %-14s pot %-6d",
			indexStyle.Render(fmt.Sprintf("#%03d", e.Index)),
			actionStyle.Render(e.Action.String()),
			phaseStyle.Render(string(e.Post.Phase)),
			e.Post.Pot,
		)
		if len(e.Post.CommunityCards) > 0 {
			line += " " + renderCards(e.Post.CommunityCards)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no actions"))
		return
	}

	final := entries[len(entries)-1].Post
	fmt.Fprintln(w)
	for _, p := range players(final, viewer) {
		line := fmt.Sprintf("%-12s stack %-6d", p.ID, p.Stack)
		if len(p.HoleCards) > 0 {
			line += " " + renderCards(p.HoleCards)
		}
		if p.Folded {
			line += " " + mutedStyle.Render("folded")
		}
		fmt.Fprintln(w, line)
	}
	for _, s := range final.Settlements {
		style := winStyle
		if s.Delta < 0 {
			style = loseStyle
		}
		fmt.Fprintf(w, "%-12s %s\n", s.PlayerID, style.Render(fmt.Sprintf("%+d", s.Delta)))
	}
}

func players(s hand.State, viewer string) []sanitize.PublicPlayer {
	view := sanitize.ForViewer(s, viewer)
	if viewer == "" {
		for i := range view.Players {
			view.Players[i].HoleCards = slices.Clone(s.Players[i].HoleCards)
		}
	}
	return view.Players
}

func renderCards(cs []cards.Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		style := blackCardStyle
		if s := c.Suit(); s == cards.Hearts || s == cards.Diamonds {
			style = redCardStyle
		}
		parts[i] = style.Render(c.String())
	}
	return strings.Join(parts, " ")
}
