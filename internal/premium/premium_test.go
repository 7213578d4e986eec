package premium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ibrohim2505/prokinobot/internal/db"
	"github.com/ibrohim2505/prokinobot/internal/directory"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/messenger/messengertest"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	"github.com/ibrohim2505/prokinobot/internal/store"
	"gorm.io/gorm"
)

const (
	superadminID int64 = 1
	adminA       int64 = 2
	adminB       int64 = 3
	buyerID      int64 = 50
)

type fixture struct {
	svc   *Service
	store *store.GormStore
	dir   *directory.Directory
	fake  *messengertest.Fake
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:premium_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if sqlDB, errDB := conn.DB(); errDB == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	st := store.NewGormStore(conn)
	dir := directory.New(st, superadminID)
	ctx := context.Background()
	if err := dir.EnsureSuperadmin(ctx); err != nil {
		t.Fatalf("ensure superadmin: %v", err)
	}
	for _, id := range []int64{adminA, adminB} {
		if err := dir.AddAdmin(ctx, superadminID, directory.Account{UserID: id, Capabilities: []string{permissions.Premium}}); err != nil {
			t.Fatalf("add admin: %v", err)
		}
	}
	fake := messengertest.New()
	return fixture{svc: NewService(st, dir, fake), store: st, dir: dir, fake: fake}
}

func activatePremium(t *testing.T) {
	t.Helper()
	settings.StoreSnapshot(time.Now(), map[string]json.RawMessage{
		settings.PremiumKey: json.RawMessage(`{"active":true,"card_info":"8600 0000 0000 0000","prices":{"3":40000}}`),
	})
	t.Cleanup(func() { settings.StoreSnapshot(time.Time{}, nil) })
}

func (fx fixture) submit(t *testing.T) *models.PremiumRequest {
	t.Helper()
	req := &models.PremiumRequest{
		RequesterID:     buyerID,
		RequesterChatID: buyerID,
		FirstName:       "Aziz",
		PlanLabel:       PlanLabel(1),
		DurationMonths:  1,
		Amount:          12000,
		ReceiptFileID:   "receipt-1",
		ReceiptKind:     models.ReceiptKindPhoto,
	}
	if err := fx.svc.Submit(context.Background(), req); err != nil {
		t.Fatalf("submit: %v", err)
	}
	return req
}

func TestFirstDecisionWinsSecondIsAlreadyReviewed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	req := fx.submit(t)

	controls := messenger.MessageRef{ChatID: adminA, MessageID: 77}
	decided, err := fx.svc.Decide(ctx, adminA, req.ID, ActionApprove, controls)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if decided.Request.Status != models.PremiumStatusApproved {
		t.Fatalf("expected approved, got %s", decided.Request.Status)
	}
	last, ok := fx.fake.LastSentTo(buyerID)
	if !ok || !strings.Contains(last.Payload.Text, "tasdiqlandi") {
		t.Fatalf("expected requester notification, got %+v", last)
	}
	if len(fx.fake.Edits) != 1 || len(fx.fake.Edits[0].Payload.Keyboard) != 0 {
		t.Fatalf("expected controls stripped, got %+v", fx.fake.Edits)
	}

	_, err = fx.svc.Decide(ctx, adminB, req.ID, ActionReject, messenger.MessageRef{ChatID: adminB, MessageID: 78})
	if !errkind.Is(err, errkind.Conflict) || !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("expected already reviewed, got %v", err)
	}
	if errkind.Message(err, "") != AlreadyReviewedText {
		t.Fatalf("unexpected message %q", errkind.Message(err, ""))
	}
	stored, _ := fx.store.GetPremiumRequest(ctx, req.ID)
	if stored.Status != models.PremiumStatusApproved || stored.DecidedBy == nil || *stored.DecidedBy != adminA {
		t.Fatalf("expected approved by A, got %+v", stored)
	}
	if got := len(fx.fake.SentTo(buyerID)); got != 1 {
		t.Fatalf("expected one requester notification, got %d", got)
	}
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	fx := newFixture(t)
	req := fx.submit(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		reviewed int
	)
	for _, action := range []string{ActionApprove, ActionReject, ActionPartial, ActionApprove} {
		action := action
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.svc.Decide(context.Background(), adminA, req.ID, action, messenger.MessageRef{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrAlreadyReviewed):
				reviewed++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 || reviewed != 3 {
		t.Fatalf("expected 1 winner and 3 reviewed, got %d and %d", winners, reviewed)
	}
}

func TestDecideRequiresPremiumCapability(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	req := fx.submit(t)
	if err := fx.dir.AddAdmin(ctx, superadminID, directory.Account{UserID: 9}); err != nil {
		t.Fatalf("add admin: %v", err)
	}

	if _, err := fx.svc.Decide(ctx, 9, req.ID, ActionApprove, messenger.MessageRef{}); !errkind.Is(err, errkind.Permission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, err := fx.svc.Decide(ctx, adminA, 999, ActionApprove, messenger.MessageRef{}); !errkind.Is(err, errkind.NotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	stored, _ := fx.store.GetPremiumRequest(ctx, req.ID)
	if stored.Status != models.PremiumStatusPending {
		t.Fatalf("expected request to stay pending, got %s", stored.Status)
	}
}

func TestNotifyReachesPremiumReviewers(t *testing.T) {
	fx := newFixture(t)
	req := fx.submit(t)

	for _, id := range []int64{superadminID, adminA, adminB} {
		sent := fx.fake.SentTo(id)
		if len(sent) != 1 || sent[0].Payload.Kind != messenger.KindPhoto || len(sent[0].Payload.Keyboard) != 2 {
			t.Fatalf("admin %d: unexpected notification %+v", id, sent)
		}
	}
	if got := fx.fake.SentTo(adminA)[0].Payload.Keyboard[0][0].CallbackData; got != fmt.Sprintf("premreq:approve:%d", req.ID) {
		t.Fatalf("unexpected callback %q", got)
	}

	others := newFixture(t)
	_ = others.dir.RemoveAdmin(context.Background(), superadminID, adminA)
	_ = others.dir.RemoveAdmin(context.Background(), superadminID, adminB)
	_ = others.dir.AddAdmin(context.Background(), superadminID, directory.Account{UserID: 4})
	if reached := others.svc.Notify(context.Background(), req); reached != 1 {
		t.Fatalf("expected only the superadmin to be notified, reached %d", reached)
	}
	if len(others.fake.SentTo(4)) != 0 {
		t.Fatalf("expected admin without premium to be skipped")
	}
}

type noReviewers struct{ all []directory.Account }

func (noReviewers) Require(context.Context, int64, string) error { return nil }
func (noReviewers) AdminsWith(context.Context, string) ([]directory.Account, error) {
	return nil, nil
}
func (n noReviewers) ListAdmins(context.Context) ([]directory.Account, error) { return n.all, nil }

func TestNotifyFallsBackToAllAdmins(t *testing.T) {
	fake := messengertest.New()
	svc := NewService(nil, noReviewers{all: []directory.Account{{UserID: 5}, {UserID: 6}}}, fake)
	req := &models.PremiumRequest{ID: 3, RequesterID: buyerID, ReceiptFileID: "f", ReceiptKind: models.ReceiptKindDocument}
	if reached := svc.Notify(context.Background(), req); reached != 2 {
		t.Fatalf("expected fallback to every admin, reached %d", reached)
	}
	if sent, _ := fake.LastSentTo(6); sent.Payload.Kind != messenger.KindDocument {
		t.Fatalf("expected document receipt, got %+v", sent.Payload)
	}
}

func TestPurchaseFlow(t *testing.T) {
	activatePremium(t)
	fx := newFixture(t)
	f := NewPurchaseFlow(fx.svc)
	ctx := context.Background()

	fields, replies, err := f.Begin(ctx, buyerID, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if len(replies) != 1 || len(replies[0].Keyboard) != 5 || replies[0].Keyboard[1][0].Text != "3 oy - 40 000 so'm" {
		t.Fatalf("unexpected plans %+v", replies)
	}
	s := session.FlowSession{UserID: buyerID, Kind: session.KindPremium, Fields: fields}
	apply := func(tr flow.Transition) {
		s.Fields, s.Step = tr.Fields, tr.Step
	}

	if _, err := f.Step(ctx, s, flow.Event{UserID: buyerID, Action: UserCallback(userPlan, 2)}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected unknown plan to be rejected, got %v", err)
	}
	tr, err := f.Step(ctx, s, flow.Event{UserID: buyerID, Action: UserCallback(userPlan, 3)})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	apply(tr)
	if got := s.Fields.(session.PremiumFields); got.State != session.PremiumPlanSelected || got.Amount != 40000 {
		t.Fatalf("unexpected fields %+v", got)
	}

	tr, _ = f.Step(ctx, s, flow.Event{UserID: buyerID, Action: UserCallback(userBack, 0)})
	if tr.Fields.(session.PremiumFields).State != session.PremiumAwaitingPlan {
		t.Fatalf("expected back to return to plans")
	}

	tr, err = f.Step(ctx, s, flow.Event{UserID: buyerID, Action: UserCallback(userConfirm, 3)})
	if err != nil || !strings.Contains(tr.Replies[0].Text, "8600 0000 0000 0000") {
		t.Fatalf("confirm: %+v %v", tr, err)
	}
	apply(tr)

	pdf := &messenger.Media{Kind: messenger.KindDocument, FileID: "doc", MimeType: "application/zip"}
	if _, err := f.Step(ctx, s, flow.Event{UserID: buyerID, Media: pdf}); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected zip to be refused, got %v", err)
	}
	pdf.MimeType = "application/pdf"
	tr, err = f.Step(ctx, s, flow.Event{UserID: buyerID, ChatID: buyerID, From: messenger.User{ID: buyerID, FirstName: "Aziz"}, Media: pdf})
	if err != nil || !tr.Done {
		t.Fatalf("receipt: %+v %v", tr, err)
	}

	pending, err := fx.svc.Pending(ctx, buyerID)
	if err != nil || !pending {
		t.Fatalf("expected pending request, got %v %v", pending, err)
	}
	stored, _ := fx.store.PendingPremiumRequestFor(ctx, buyerID)
	if stored.DurationMonths != 3 || stored.Amount != 40000 || stored.ReceiptKind != models.ReceiptKindDocument {
		t.Fatalf("unexpected request %+v", stored)
	}

	if _, _, err := f.Begin(ctx, buyerID, nil); !errkind.Is(err, errkind.Conflict) {
		t.Fatalf("expected pending request to block a new purchase, got %v", err)
	}
}

func TestPurchaseFlowInactive(t *testing.T) {
	settings.StoreSnapshot(time.Time{}, nil)
	fx := newFixture(t)
	if _, _, err := NewPurchaseFlow(fx.svc).Begin(context.Background(), buyerID, nil); !errkind.Is(err, errkind.Validation) {
		t.Fatalf("expected inactive premium to refuse, got %v", err)
	}
}

func TestFormattingHelpers(t *testing.T) {
	cases := map[int64]string{0: "—", 500: "500 so'm", 12000: "12 000 so'm", 1100000: "1 100 000 so'm"}
	for in, want := range cases {
		if got := FormatAmount(in); got != want {
			t.Fatalf("FormatAmount(%d): expected %q, got %q", in, want, got)
		}
	}
	action, id, ok := ParseDecision("premreq:partial:17")
	if !ok || action != ActionPartial || id != 17 {
		t.Fatalf("unexpected parse %q %d %v", action, id, ok)
	}
	if _, _, ok := ParseDecision("premreq:approve:x"); ok {
		t.Fatalf("expected bad id to fail")
	}
}
