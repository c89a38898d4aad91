// ABOUTME: Exports a board as a Markdown document, one section per column in display order.
// ABOUTME: Cards list their number, text, votes and stopwatch; participants close the document.
package export

import (
	"fmt"
	"strings"

	"github.com/2389-research/retroboard/board/core"
)

// ExportMarkdown renders state as Markdown under the given title.
func ExportMarkdown(title string, state *core.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", title)

	for _, col := range core.Columns {
		cards := state.Cards.Column(col)
		fmt.Fprintf(&b, "\n## %s\n\n", col.Title())
		if len(cards) == 0 {
			b.WriteString("_No cards._\n")
			continue
		}
		for _, c := range cards {
			b.WriteString(markdownCard(c))
		}
	}

	if len(state.ActiveUsers) > 0 {
		b.WriteString("\n## Participants\n\n")
		for _, u := range state.ActiveUsers {
			fmt.Fprintf(&b, "- %s\n", escapeInline(u))
		}
	}
	return b.String()
}

func markdownCard(c core.Card) string {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		text = "_(empty)_"
	} else {
		text = escapeInline(strings.Join(strings.Fields(text), " "))
	}

	details := []string{pluralVotes(c.Votes)}
	if c.Seconds > 0 || c.IsTimerRunning {
		timer := core.FormatSeconds(c.Seconds)
		if c.IsTimerRunning {
			timer += " running"
		}
		if c.Overtime() {
			timer += " overtime"
		}
		details = append(details, timer)
	}
	return fmt.Sprintf("- **#%d** %s (%s)\n", c.CardNumber, text, strings.Join(details, ", "))
}

func pluralVotes(n int) string {
	if n == 1 {
		return "1 vote"
	}
	return fmt.Sprintf("%d votes", n)
}

// escapeInline keeps card text from opening Markdown or HTML constructs.
func escapeInline(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"[", `\[`,
		"]", `\]`,
		"<", "&lt;",
		">", "&gt;",
		"#", `\#`,
	)
	return r.Replace(s)
}
