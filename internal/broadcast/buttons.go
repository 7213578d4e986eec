// Package broadcast composes a message with optional URL buttons and fans it out to every
// known user.
package broadcast

import (
	"strings"
	"unicode/utf8"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

const (
	// MaxButtons is the most URL buttons one broadcast may carry.
	MaxButtons = 5
	// MaxLabelLength is the longest accepted button label, in characters.
	MaxLabelLength = 64
)

var skipKeywords = []string{"skip", "o'tkazish", "yoq", "yo'q"}

// IsSkip reports whether text asks for a broadcast without buttons.
func IsSkip(text string) bool {
	s := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range skipKeywords {
		if s == kw {
			return true
		}
	}
	return false
}

// ParseButtons parses newline-delimited "label - url" lines. Blank lines are ignored.
func ParseButtons(text string) ([]session.ButtonSpec, error) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, invalid("❌ Tugmalarni yuboring yoki 'skip' deb yozing.")
	}
	if len(lines) > MaxButtons {
		return nil, invalid("❌ Bir vaqtda eng ko'pi bilan 5 ta tugma qo'shishingiz mumkin.")
	}
	out := make([]session.ButtonSpec, 0, len(lines))
	for _, line := range lines {
		label, url, found := strings.Cut(line, "-")
		if !found {
			return nil, invalid("❌ Har bir qatorda <code>Matn - https://link</code> formatidan foydalaning.")
		}
		label = strings.TrimSpace(label)
		url = strings.TrimSpace(url)
		if label == "" || url == "" {
			return nil, invalid("❌ Matn yoki link bo'sh bo'lishi mumkin emas.")
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "tg://") {
			return nil, invalid("❌ Link http://, https:// yoki tg:// bilan boshlanishi kerak.")
		}
		if utf8.RuneCountInString(label) > MaxLabelLength {
			return nil, invalid("❌ Tugma matni 64 ta belgidan oshmasligi kerak.")
		}
		out = append(out, session.ButtonSpec{Label: label, URL: url})
	}
	return out, nil
}

func invalid(msg string) error {
	return errkind.New(errkind.Validation, "broadcast.parse_buttons", msg)
}

// Keyboard renders one button per row.
func Keyboard(specs []session.ButtonSpec) messenger.Keyboard {
	if len(specs) == 0 {
		return nil
	}
	kb := make(messenger.Keyboard, 0, len(specs))
	for _, b := range specs {
		kb = append(kb, []messenger.Button{{Text: b.Label, URL: b.URL}})
	}
	return kb
}
