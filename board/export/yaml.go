// ABOUTME: Exports a board as a YAML document with columns in display order.
// ABOUTME: Uses gopkg.in/yaml.v3; voter maps are emitted with sorted keys.
package export

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/2389-research/retroboard/board/core"
)

// YamlCard is the YAML representation of a card.
type YamlCard struct {
	Number       int            `yaml:"number"`
	ID           string         `yaml:"id"`
	Text         string         `yaml:"text"`
	Votes        int            `yaml:"votes"`
	Voters       map[string]int `yaml:"voters,omitempty"`
	Seconds      int            `yaml:"seconds,omitempty"`
	TimerRunning bool           `yaml:"timer_running,omitempty"`
}

// YamlColumn is the YAML representation of a column.
type YamlColumn struct {
	Name  string     `yaml:"name"`
	Title string     `yaml:"title"`
	Cards []YamlCard `yaml:"cards"`
}

// YamlBoard is the top-level YAML document.
type YamlBoard struct {
	Board        string       `yaml:"board"`
	Columns      []YamlColumn `yaml:"columns"`
	Participants []string     `yaml:"participants"`
}

// ExportYAML renders state as YAML.
func ExportYAML(name string, state *core.State) (string, error) {
	doc := YamlBoard{
		Board:        name,
		Columns:      make([]YamlColumn, 0, len(core.Columns)),
		Participants: append([]string{}, state.ActiveUsers...),
	}
	for _, col := range core.Columns {
		cards := state.Cards.Column(col)
		yc := YamlColumn{Name: string(col), Title: col.Title(), Cards: make([]YamlCard, 0, len(cards))}
		for _, c := range cards {
			card := YamlCard{
				Number:       c.CardNumber,
				ID:           c.ID,
				Text:         c.Text,
				Votes:        c.Votes,
				Seconds:      c.Seconds,
				TimerRunning: c.IsTimerRunning,
			}
			if len(c.UserVotes) > 0 {
				card.Voters = c.UserVotes
			}
			yc.Cards = append(yc.Cards, card)
		}
		doc.Columns = append(doc.Columns, yc)
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return "", fmt.Errorf("marshal board yaml: %w", err)
	}
	return string(data), nil
}
