package companion

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Templates holds canned remarks keyed by pet mood. The "default" key is
// the fallback when a mood has no entries.
type Templates struct {
	Remarks map[string][]string `toml:"remarks"`
}

// defaultTemplates covers the moods the pet can be in out of the box.
const defaultTemplates = `
[remarks]
happy = [
	"Look at us, keeping it together today!",
	"I had a great nap. Did you have a great meeting?",
	"Today feels like a good day to get things done.",
]
hungry = [
	"A snack would really help my productivity. Yours too, probably.",
	"Is it lunch yet? Asking for me.",
]
sleepy = [
	"Five more minutes. Then we conquer the calendar.",
	"Yawn. Busy day ahead, better pace ourselves.",
]
excited = [
	"So many plans today! I can barely sit still.",
	"Big day! I believe in us.",
]
default = [
	"I'm here, watching the calendar so you don't have to.",
	"Another day, another timeline.",
	"Ping me if anything fun comes up.",
]
`

// LoadTemplates reads remark templates from path, or returns the built-in
// set when path is empty. A file on disk replaces moods it defines and
// inherits the rest from the defaults.
func LoadTemplates(path string) (*Templates, error) {
	var base Templates
	if _, err := toml.Decode(defaultTemplates, &base); err != nil {
		return nil, fmt.Errorf("built-in templates are invalid: %w", err)
	}

	if path == "" {
		return &base, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	var override Templates
	if _, err := toml.Decode(string(data), &override); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for mood, remarks := range override.Remarks {
		if len(remarks) > 0 {
			base.Remarks[mood] = remarks
		}
	}
	return &base, nil
}

// Pick returns one remark for the mood using the given index chooser.
// Unknown moods fall back to the default set.
func (t *Templates) Pick(mood string, pick func(n int) int) string {
	remarks := t.Remarks[mood]
	if len(remarks) == 0 {
		remarks = t.Remarks["default"]
	}
	if len(remarks) == 0 {
		return "..."
	}
	return remarks[pick(len(remarks))]
}
