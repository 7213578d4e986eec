package gate

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/messenger/messengertest"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
)

const (
	userID  int64 = 42
	adminID int64 = 1
)

type staticRequirements []models.ChannelRequirement

func (s staticRequirements) ListChannelRequirements(context.Context) ([]models.ChannelRequirement, error) {
	return s, nil
}

type adminSet map[int64]bool

func (a adminSet) IsAdmin(_ context.Context, id int64) (bool, error) { return a[id], nil }

type recordingDeliverer struct {
	codes []string
}

func (d *recordingDeliverer) Deliver(_ context.Context, chatID int64, code string) (messenger.MessageRef, error) {
	d.codes = append(d.codes, code)
	return messenger.MessageRef{ChatID: chatID, MessageID: 900 + len(d.codes)}, nil
}

type fixture struct {
	gate      *Gate
	fake      *messengertest.Fake
	markers   *session.MemoryMarkers
	delivered *recordingDeliverer
}

func newFixture(reqs ...models.ChannelRequirement) fixture {
	fake := messengertest.New()
	markers := session.NewMemoryMarkers()
	delivered := &recordingDeliverer{}
	return fixture{
		gate:      New(staticRequirements(reqs), adminSet{adminID: true}, fake, markers, delivered),
		fake:      fake,
		markers:   markers,
		delivered: delivered,
	}
}

func checkable(target string) models.ChannelRequirement {
	return models.ChannelRequirement{Target: target, DisplayName: "Kanal " + target, Required: true, VerificationClass: models.VerificationCheckable}
}

func TestNoRequirementsNeverBlocks(t *testing.T) {
	fx := newFixture()
	res, err := fx.gate.Request(context.Background(), userID, userID, "5")
	if err != nil || res.Blocked {
		t.Fatalf("expected delivery, got %+v %v", res, err)
	}
	if len(fx.delivered.codes) != 1 || fx.delivered.codes[0] != "5" {
		t.Fatalf("expected code 5 delivered, got %v", fx.delivered.codes)
	}
	if len(fx.fake.Sent) != 0 {
		t.Fatalf("expected no prompt, got %d messages", len(fx.fake.Sent))
	}
}

func TestBlockRecheckDeliver(t *testing.T) {
	fx := newFixture(checkable("@prokino"))
	ctx := context.Background()

	res, err := fx.gate.Request(ctx, userID, userID, "5")
	if err != nil || !res.Blocked || res.Prompt == nil {
		t.Fatalf("expected block, got %+v %v", res, err)
	}
	prompt, _ := fx.fake.LastSentTo(userID)
	rows := prompt.Payload.Keyboard
	if len(rows) != 2 || rows[0][0].URL != "https://t.me/prokino" || rows[1][0].CallbackData != "verify_sub:5" {
		t.Fatalf("unexpected prompt keyboard %+v", rows)
	}
	if pending, _ := fx.markers.PendingCode(ctx, userID); pending != "5" {
		t.Fatalf("expected pending code 5, got %q", pending)
	}

	res, alert, err := fx.gate.Recheck(ctx, userID, userID, "5", *res.Prompt)
	if err != nil || !res.Blocked || alert == "" {
		t.Fatalf("expected still blocked, got %+v %q %v", res, alert, err)
	}
	if len(fx.delivered.codes) != 0 {
		t.Fatalf("expected nothing delivered while left")
	}
	if len(fx.fake.Edits) != 1 {
		t.Fatalf("expected prompt redraw, got %d edits", len(fx.fake.Edits))
	}

	fx.fake.SetMember("@prokino", userID, messenger.StatusMember)
	res, alert, err = fx.gate.Recheck(ctx, userID, userID, "", *res.Prompt)
	if err != nil || res.Blocked || alert != "" {
		t.Fatalf("expected delivery, got %+v %q %v", res, alert, err)
	}
	if len(fx.delivered.codes) != 1 || fx.delivered.codes[0] != "5" {
		t.Fatalf("expected pending code delivered, got %v", fx.delivered.codes)
	}
	if pending, _ := fx.markers.PendingCode(ctx, userID); pending != "" {
		t.Fatalf("expected pending marker cleared, got %q", pending)
	}
	if len(fx.fake.Deleted) != 1 {
		t.Fatalf("expected prompt deleted")
	}

	res, _, _ = fx.gate.Recheck(ctx, userID, userID, "", messenger.MessageRef{})
	if !res.NothingPending {
		t.Fatalf("expected nothing pending after delivery")
	}
}

func TestMembershipErrorFailsClosed(t *testing.T) {
	fx := newFixture(checkable("-1001"))
	fx.fake.SetMember("-1001", userID, messenger.StatusMember)
	fx.fake.MemberErrors["-1001"] = true

	decision, err := fx.gate.Evaluate(context.Background(), userID)
	if err != nil || decision.Allowed {
		t.Fatalf("expected blocked on lookup error, got %+v %v", decision, err)
	}
}

func TestRestrictedNonMemberIsUnsatisfied(t *testing.T) {
	fx := newFixture(checkable("-1001"))
	fx.fake.Members["-1001"] = map[int64]messenger.Member{userID: {Status: messenger.StatusRestricted, IsMember: false}}

	decision, _ := fx.gate.Evaluate(context.Background(), userID)
	if decision.Allowed {
		t.Fatalf("expected restricted non-member to be blocked")
	}

	fx.fake.Members["-1001"][userID] = messenger.Member{Status: messenger.StatusRestricted, IsMember: true}
	decision, _ = fx.gate.Evaluate(context.Background(), userID)
	if !decision.Allowed {
		t.Fatalf("expected restricted member to pass")
	}
}

func TestUnverifiableShownOncePerSignature(t *testing.T) {
	invite := models.ChannelRequirement{Target: "https://t.me/+Secret", DisplayName: "VIP", URL: "https://t.me/+Secret", Required: true, VerificationClass: models.VerificationRequestOnly}
	insta := models.ChannelRequirement{Target: "https://instagram.com/kino", DisplayName: "Instagram", URL: "https://instagram.com/kino", Required: true, VerificationClass: models.VerificationExternalLink}
	fx := newFixture(invite, insta)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := fx.gate.Request(ctx, userID, userID, "7")
		if err != nil || res.Blocked {
			t.Fatalf("request %d: expected delivery, got %+v %v", i, res, err)
		}
	}
	if len(fx.delivered.codes) != 2 {
		t.Fatalf("expected two deliveries, got %v", fx.delivered.codes)
	}
	if got := len(fx.fake.SentTo(userID)); got != 1 {
		t.Fatalf("expected informational prompt once, got %d", got)
	}

	other := newFixture(invite)
	_ = other.markers.SetShownSignature(ctx, userID, "stale")
	if _, err := other.gate.Request(ctx, userID, userID, "7"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if got := len(other.fake.SentTo(userID)); got != 1 {
		t.Fatalf("expected prompt for a changed set, got %d", got)
	}
}

func TestOptionalEntriesAndInviteTargetsNeverBlock(t *testing.T) {
	optional := checkable("-2002")
	optional.Required = false
	inviteTarget := checkable("https://t.me/+abc")
	fx := newFixture(optional, inviteTarget)

	decision, err := fx.gate.Evaluate(context.Background(), userID)
	if err != nil || !decision.Allowed {
		t.Fatalf("expected allow, got %+v %v", decision, err)
	}
	if len(decision.Unverifiable) != 1 || decision.Unverifiable[0].Target != "https://t.me/+abc" {
		t.Fatalf("expected invite target to be unverifiable, got %+v", decision.Unverifiable)
	}
}

func TestAdminAndDisabledGateBypass(t *testing.T) {
	fx := newFixture(checkable("@prokino"))
	ctx := context.Background()

	res, err := fx.gate.Request(ctx, adminID, adminID, "3")
	if err != nil || res.Blocked {
		t.Fatalf("expected admin bypass, got %+v %v", res, err)
	}

	settings.StoreSnapshot(time.Now(), map[string]json.RawMessage{
		settings.SubscriptionKey: json.RawMessage(`{"enabled":false,"message":"x"}`),
	})
	t.Cleanup(func() { settings.StoreSnapshot(time.Time{}, nil) })

	res, err = fx.gate.Request(ctx, userID, userID, "3")
	if err != nil || res.Blocked {
		t.Fatalf("expected disabled gate to allow, got %+v %v", res, err)
	}
}

func TestSignatureIsOrderSensitive(t *testing.T) {
	a := models.ChannelRequirement{Target: "a"}
	b := models.ChannelRequirement{Target: "b"}
	first := Decision{Unverifiable: []models.ChannelRequirement{a, b}}.Signature()
	second := Decision{Unverifiable: []models.ChannelRequirement{b, a}}.Signature()
	if first == second || len(first) != 64 || strings.Trim(first, "0123456789abcdef") != "" {
		t.Fatalf("unexpected signatures %q %q", first, second)
	}
}
