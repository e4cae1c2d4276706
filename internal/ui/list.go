package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/tasting/internal/models"
)

var _ list.Item = optionItem{}

// optionItem wraps [models.ChoiceOption] to implement [list.Item].
type optionItem struct {
	option   models.ChoiceOption
	selected bool
}

func (i optionItem) FilterValue() string { return i.option.Text }
func (i optionItem) Title() string {
	if i.selected {
		return "[x] " + i.option.Text
	}
	return "[ ] " + i.option.Text
}
func (i optionItem) Description() string { return i.option.ID }

// optionItems builds list items for p, marking the ids in selected.
func optionItems(p models.ChoicePayload, selected []string) []list.Item {
	marked := make(map[string]bool, len(selected))
	for _, id := range selected {
		marked[id] = true
	}

	items := make([]list.Item, len(p.Options))
	for i, o := range p.Options {
		items[i] = optionItem{option: o, selected: marked[o.ID]}
	}
	return items
}
