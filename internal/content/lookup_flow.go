package content

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
	log "github.com/sirupsen/logrus"
)

// MinSearchLength is the shortest accepted search query, in characters.
const MinSearchLength = 2

// LookupFlow reads one code to delete or one name to search for.
type LookupFlow struct {
	registry *Registry
}

// NewLookupFlow constructs the flow.
func NewLookupFlow(registry *Registry) *LookupFlow {
	return &LookupFlow{registry: registry}
}

func (f *LookupFlow) Kind() session.Kind { return session.KindMovieLookup }

func (f *LookupFlow) Capability() string { return permissions.Movies }

func (f *LookupFlow) Begin(_ context.Context, _ int64, initial session.Fields) (session.Fields, []messenger.Payload, error) {
	fields, _ := initial.(session.MovieLookupFields)
	switch fields.Action {
	case session.LookupDelete:
		return fields, prompt("🗑 O'chiriladigan kino kodini yuboring.\n\nBekor qilish: /cancel"), nil
	case session.LookupSearch:
		return fields, prompt("🔎 Kino nomini yuboring.\n\nBekor qilish: /cancel"), nil
	default:
		return nil, nil, errkind.New(errkind.Validation, "movie_lookup.begin", "❌ Noma'lum amal.")
	}
}

func (f *LookupFlow) Step(ctx context.Context, s session.FlowSession, ev flow.Event) (flow.Transition, error) {
	fields, _ := s.Fields.(session.MovieLookupFields)
	text := ev.TrimmedText()
	if text == "" || ev.Media != nil {
		return flow.Transition{}, errkind.New(errkind.Validation, "movie_lookup.input", "❌ Matn ko'rinishida yuboring.")
	}
	switch fields.Action {
	case session.LookupDelete:
		if err := f.registry.Delete(ctx, text); err != nil {
			if errkind.Is(err, errkind.NotFound) {
				return flow.Transition{}, errkind.Wrapf(errkind.Validation, "movie_lookup.delete", err, "%s", errkind.Message(err, "❌ Kino topilmadi."))
			}
			return flow.Transition{}, err
		}
		log.WithFields(log.Fields{"code": normalizeCode(text), "user_id": ev.UserID}).Info("content deleted")
		return flow.Transition{Done: true, Replies: prompt(DeletedText(text))}, nil

	case session.LookupSearch:
		if utf8.RuneCountInString(text) < MinSearchLength {
			return flow.Transition{}, errkind.New(errkind.Validation, "movie_lookup.search", fmt.Sprintf("❌ Kamida %d ta harf yozing.", MinSearchLength))
		}
		items, err := f.registry.Search(ctx, text)
		if err != nil {
			return flow.Transition{}, err
		}
		return flow.Transition{Done: true, Replies: prompt(SearchResultsText(items))}, nil

	default:
		return flow.Transition{}, fmt.Errorf("movie_lookup: unknown action %q", fields.Action)
	}
}

// DeletedText confirms the removal of code.
func DeletedText(code string) string {
	return "✅ <code>" + html.EscapeString(normalizeCode(code)) + "</code> kodli kino o'chirildi."
}

// SearchResultsText lists search hits, one code and name per line.
func SearchResultsText(items []models.ContentItem) string {
	if len(items) == 0 {
		return "🔎 Hech narsa topilmadi."
	}
	var b strings.Builder
	b.WriteString("🔎 <b>Natijalar:</b>\n\n")
	writeItemLines(&b, items)
	return b.String()
}

// RecentText lists the newest items for the movie menu.
func RecentText(items []models.ContentItem) string {
	var b strings.Builder
	b.WriteString("📋 <b>So'nggi kinolar</b>\n\n")
	if len(items) == 0 {
		b.WriteString("Hali kino qo'shilmagan.")
		return b.String()
	}
	writeItemLines(&b, items)
	return b.String()
}

func writeItemLines(b *strings.Builder, items []models.ContentItem) {
	for _, item := range items {
		name := "Noma'lum"
		if item.Name != nil && strings.TrimSpace(*item.Name) != "" {
			name = *item.Name
		}
		fmt.Fprintf(b, "<code>%s</code> - %s\n", item.Code, html.EscapeString(name))
	}
}
