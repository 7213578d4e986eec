package channels

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ibrohim2505/prokinobot/internal/db"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/messenger/messengertest"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/store"
	"gorm.io/gorm"
)

const botID int64 = 999

func openTestStore(t *testing.T) *store.GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:channels_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return store.NewGormStore(conn)
}

func TestLinkClassification(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"https://t.me/+AbCdEf":        true,
		"t.me/joinchat/xyz":           true,
		"https://telegram.me/+q":      true,
		"https://t.me/prokino":        false,
		"@prokino":                    false,
		"https://instagram.com/kino1": false,
	}
	for in, want := range cases {
		if got := IsInviteLink(in); got != want {
			t.Fatalf("IsInviteLink(%q): expected %v, got %v", in, want, got)
		}
	}

	req := models.ChannelRequirement{Target: "https://t.me/+secret", VerificationClass: models.VerificationCheckable}
	if EffectiveClass(req) != models.VerificationRequestOnly {
		t.Fatalf("expected invite-link target to be request-only")
	}
	if got := JoinURL(models.ChannelRequirement{Target: "-100", Username: "news"}); got != "https://t.me/news" {
		t.Fatalf("unexpected join url %q", got)
	}
	if got := JoinURL(models.ChannelRequirement{Target: "-100"}); got != "" {
		t.Fatalf("expected no join url, got %q", got)
	}
}

func TestPublicUsernameAndInstagram(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"@prokino", "t.me/prokino", "https://t.me/prokino/"} {
		name, ok := PublicUsername(in)
		if !ok || name != "prokino" {
			t.Fatalf("PublicUsername(%q): got %q %v", in, name, ok)
		}
	}
	if _, ok := PublicUsername("https://t.me/+abc"); ok {
		t.Fatalf("expected invite link to be refused")
	}
	profile, username, ok := NormalizeInstagram("https://www.instagram.com/kino.uz/?hl=en")
	if !ok || username != "kino.uz" || profile != "https://instagram.com/kino.uz" {
		t.Fatalf("unexpected instagram result %q %q %v", profile, username, ok)
	}
	if _, _, ok := NormalizeInstagram("bad name!"); ok {
		t.Fatalf("expected invalid instagram name to be refused")
	}
}

func newFlow(t *testing.T) (*ConfigFlow, *messengertest.Fake, *store.GormStore) {
	t.Helper()
	st := openTestStore(t)
	fake := messengertest.New()
	return NewConfigFlow(st, fake, botID), fake, st
}

func configSession(class string) session.FlowSession {
	return session.FlowSession{UserID: 1, Kind: session.KindChannelConfig, Fields: session.ChannelConfigFields{Class: class, Required: true}}
}

func TestCheckableRequiresBotAdmin(t *testing.T) {
	t.Parallel()
	f, fake, st := newFlow(t)
	ctx := context.Background()
	fake.Chats["@prokino"] = messenger.Chat{ID: -1001, Type: messenger.ChatChannel, Title: "ProKino", Username: "prokino"}

	_, err := f.Step(ctx, configSession(models.VerificationCheckable), flow.Event{UserID: 1, Text: "@prokino"})
	if !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected validation while bot is not admin, got %v", err)
	}

	fake.SetMember("-1001", botID, messenger.StatusAdministrator)
	tr, err := f.Step(ctx, configSession(models.VerificationCheckable), flow.Event{UserID: 1, Text: "https://t.me/prokino"})
	if err != nil || !tr.Done {
		t.Fatalf("expected completion, got %+v %v", tr, err)
	}
	rows, _ := st.ListChannelRequirements(ctx)
	if len(rows) != 1 || rows[0].Target != "-1001" || !rows[0].Required || rows[0].VerificationClass != models.VerificationCheckable {
		t.Fatalf("unexpected rows %+v", rows)
	}

	_, err = f.Step(ctx, configSession(models.VerificationCheckable), flow.Event{UserID: 1, ForwardedChat: &messenger.ChatInfo{ID: -1001, Type: messenger.ChatChannel}})
	if err == nil {
		t.Fatalf("expected duplicate forward to fail")
	}
	fake.Chats["-1001"] = fake.Chats["@prokino"]
	_, err = f.Step(ctx, configSession(models.VerificationCheckable), flow.Event{UserID: 1, ForwardedChat: &messenger.ChatInfo{ID: -1001, Type: messenger.ChatChannel}})
	if !errkind.Is(err, errkind.Conflict) {
		t.Fatalf("expected conflict on duplicate, got %v", err)
	}
}

func TestCheckableRefusesInviteLink(t *testing.T) {
	t.Parallel()
	f, _, _ := newFlow(t)

	_, err := f.Step(context.Background(), configSession(models.VerificationCheckable), flow.Event{UserID: 1, Text: "https://t.me/+AAAA"})
	if !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestRequestOnlyAndExternal(t *testing.T) {
	t.Parallel()
	f, _, st := newFlow(t)
	ctx := context.Background()

	if _, err := f.Step(ctx, configSession(models.VerificationRequestOnly), flow.Event{UserID: 1, Text: "https://t.me/prokino"}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected public link to be refused, got %v", err)
	}
	if _, err := f.Step(ctx, configSession(models.VerificationRequestOnly), flow.Event{UserID: 1, Text: "VIP | t.me/+Secret"}); err != nil {
		t.Fatalf("request-only: %v", err)
	}
	if _, err := f.Step(ctx, configSession(models.VerificationExternalLink), flow.Event{UserID: 1, Text: "Sayt | ftp://x"}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected ftp to be refused, got %v", err)
	}
	if _, err := f.Step(ctx, configSession(models.VerificationExternalLink), flow.Event{UserID: 1, Text: "@kino.uz"}); err != nil {
		t.Fatalf("instagram: %v", err)
	}
	if _, err := f.Step(ctx, configSession(models.VerificationExternalLink), flow.Event{UserID: 1, Text: "Sayt | https://kino.uz"}); err != nil {
		t.Fatalf("external: %v", err)
	}

	rows, _ := st.ListChannelRequirements(ctx)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Target != "https://t.me/+Secret" || rows[0].DisplayName != "VIP" {
		t.Fatalf("unexpected request-only row %+v", rows[0])
	}
	if rows[1].URL != "https://instagram.com/kino.uz" {
		t.Fatalf("unexpected instagram row %+v", rows[1])
	}
}
