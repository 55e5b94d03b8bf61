package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/junrei/internal/dialogue"
	"github.com/ashureev/junrei/internal/domain"
	"github.com/ashureev/junrei/internal/progression"
	"github.com/fatih/color"
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow     = color.New(color.FgYellow).SprintFunc()
	magenta    = color.New(color.FgMagenta).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

const (
	userPrompt     = "あなた: "
	narratorPrompt = "語り部: "
)

func renderNarrator(w io.Writer, content string) {
	fmt.Fprintf(w, "%s%s\n", boldCyan(narratorPrompt), content)
}

// renderTurn prints the narrator's reply followed by the rewards it earned.
func renderTurn(w io.Writer, turn dialogue.Turn) {
	switch turn.Status {
	case dialogue.TurnIgnored:
		fmt.Fprintln(w, faint("(送信中のため無視されました)"))
		return
	case dialogue.TurnFailed:
		fmt.Fprintf(w, "%s%s\n", boldCyan(narratorPrompt), errorColor(turn.Reply.Content))
		return
	}

	renderNarrator(w, turn.Reply.Content)

	var rewards []string
	if turn.ExpAwarded > 0 {
		rewards = append(rewards, fmt.Sprintf("+%d exp", turn.ExpAwarded))
	}
	if turn.Bonus != progression.TierNone {
		rewards = append(rewards, fmt.Sprintf("思考の深さ %d (%s)", turn.ThoughtDepth, turn.Bonus))
	}
	if len(rewards) > 0 {
		fmt.Fprintln(w, yellow("  "+strings.Join(rewards, " / ")))
	}
	if q, ok := turn.Quote.Get(); ok {
		fmt.Fprintln(w, magenta(fmt.Sprintf("  「%s」 %s", q.Text, q.Author)))
	}
	if turn.Profile != nil {
		fmt.Fprintln(w, faint(fmt.Sprintf("  Lv.%d  %d exp", turn.Profile.Level, turn.Profile.Exp)))
	}
}

func renderTranscript(w io.Writer, t domain.Transcript) {
	for _, m := range t {
		switch m.Role {
		case domain.RoleUser:
			fmt.Fprintf(w, "%s%s\n", boldGreen(userPrompt), m.Content)
		case domain.RoleAssistant:
			renderNarrator(w, m.Content)
		}
	}
}

func renderProfile(w io.Writer, p *domain.UserProfile, toNext int, info *domain.TemperamentInfo) {
	name := p.DisplayName
	if name == "" {
		name = p.UserID
	}
	fmt.Fprintln(w, boldGreen(name))
	fmt.Fprintf(w, "  レベル    Lv.%d (%d exp", p.Level, p.Exp)
	if toNext > 0 {
		fmt.Fprintf(w, ", 次まで %d", toNext)
	}
	fmt.Fprintln(w, ")")
	if p.Title != "" {
		fmt.Fprintf(w, "  称号      %s\n", p.Title)
	}
	switch {
	case info != nil:
		fmt.Fprintf(w, "  気質      %s %s\n", info.Emoji, info.Name)
	case p.Temperament != "":
		fmt.Fprintf(w, "  気質      %s\n", p.Temperament)
	default:
		fmt.Fprintln(w, faint("  気質      未診断 ('junrei onboard' で診断)"))
	}
}

func renderQuotes(w io.Writer, quotes []*domain.CollectedQuote) {
	if len(quotes) == 0 {
		fmt.Fprintln(w, faint("まだ言葉を集めていません。"))
		return
	}
	for _, q := range quotes {
		fmt.Fprintf(w, "%s %s\n", magenta("「"+q.Quote+"」"), q.Author)
		fmt.Fprintln(w, faint(fmt.Sprintf("    %s  %s", q.EncounterID, q.CollectedAt.Format("2006-01-02"))))
	}
}

func renderEncounters(w io.Writer, encounters []domain.Encounter, progress map[string]*domain.EncounterProgress, temperament domain.Temperament) {
	for i := range encounters {
		e := &encounters[i]
		mark := " "
		if temperament != "" && e.HasAffinity(temperament) {
			mark = yellow("*")
		}
		status := fmt.Sprintf("0/%d", e.Sessions)
		if p, ok := progress[e.ID]; ok {
			status = fmt.Sprintf("%d/%d", p.CurrentSession, p.TotalSessions)
			if p.IsCompleted {
				status += " 完了"
			}
		}
		fmt.Fprintf(w, "%s %-16s %s (%s)  %s\n", mark, boldCyan(e.ID), e.Title, e.Author, faint(status))
	}
}
