package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/ibrohim2505/prokinobot/internal/db"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	dsn := fmt.Sprintf("file:store_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewGormStore(conn)
}

func TestContentCodesAndNextCode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	maxCode, err := s.MaxNumericCode(ctx)
	if err != nil {
		t.Fatalf("max code: %v", err)
	}
	if maxCode != 0 {
		t.Fatalf("expected 0 on empty registry, got %d", maxCode)
	}

	for _, code := range []string{"7", "42", "AB12CD34", "11111111", "0050", "+60"} {
		if errCreate := s.CreateContentItem(ctx, &models.ContentItem{Code: code, OriginChannelID: -100, OriginMessageID: 1}); errCreate != nil {
			t.Fatalf("create %s: %v", code, errCreate)
		}
	}
	maxCode, err = s.MaxNumericCode(ctx)
	if err != nil {
		t.Fatalf("max code: %v", err)
	}
	if maxCode != 42 {
		t.Fatalf("expected 42, got %d", maxCode)
	}

	exists, err := s.CodeExists(ctx, "42")
	if err != nil || !exists {
		t.Fatalf("expected code 42 to exist, got %v %v", exists, err)
	}

	errDup := s.CreateContentItem(ctx, &models.ContentItem{Code: "42", OriginChannelID: -100, OriginMessageID: 2})
	if !errkind.Is(errDup, errkind.Conflict) {
		t.Fatalf("expected conflict, got %v", errDup)
	}

	if errDelete := s.DeleteContentItem(ctx, "404"); !errkind.Is(errDelete, errkind.NotFound) {
		t.Fatalf("expected not found, got %v", errDelete)
	}
	if _, errGet := s.GetContentItem(ctx, "404"); !errkind.Is(errGet, errkind.NotFound) {
		t.Fatalf("expected not found, got %v", errGet)
	}
}

func TestSearchContentByName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	name := "Interstellar"
	if errCreate := s.CreateContentItem(ctx, &models.ContentItem{Code: "1", Name: &name, OriginChannelID: -1, OriginMessageID: 1}); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	items, err := s.SearchContent(ctx, "stell", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 1 || items[0].Code != "1" {
		t.Fatalf("expected one match, got %+v", items)
	}
}

func TestTransitionPremiumRequestOnlyFromPending(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	req := &models.PremiumRequest{RequesterID: 5, RequesterChatID: 5, PlanLabel: "1 oy", DurationMonths: 1, Amount: 12000, ReceiptFileID: "f", ReceiptKind: models.ReceiptKindPhoto}
	if errCreate := s.CreatePremiumRequest(ctx, req); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	ok, err := s.TransitionPremiumRequest(ctx, req.ID, models.PremiumStatusPending, models.PremiumStatusApproved, 1)
	if err != nil || !ok {
		t.Fatalf("expected first transition to win, got %v %v", ok, err)
	}
	ok, err = s.TransitionPremiumRequest(ctx, req.ID, models.PremiumStatusPending, models.PremiumStatusRejected, 2)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if ok {
		t.Fatalf("expected second transition to lose")
	}

	stored, err := s.GetPremiumRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.PremiumStatusApproved {
		t.Fatalf("expected approved, got %s", stored.Status)
	}
	if stored.DecidedBy == nil || *stored.DecidedBy != 1 {
		t.Fatalf("expected decided by 1, got %v", stored.DecidedBy)
	}
	if _, errPending := s.PendingPremiumRequestFor(ctx, 5); !errkind.Is(errPending, errkind.NotFound) {
		t.Fatalf("expected no pending request, got %v", errPending)
	}
}

func TestTransitionPremiumRequestConcurrentSingleWinner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sqlDB, _ := s.DB().DB()
	sqlDB.SetMaxOpenConns(1)

	req := &models.PremiumRequest{RequesterID: 9, RequesterChatID: 9, PlanLabel: "3 oy", DurationMonths: 3, Amount: 36000, ReceiptFileID: "f", ReceiptKind: models.ReceiptKindPhoto}
	if errCreate := s.CreatePremiumRequest(ctx, req); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(admin int64) {
			defer wg.Done()
			ok, err := s.TransitionPremiumRequest(ctx, req.ID, models.PremiumStatusPending, models.PremiumStatusApproved, admin)
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(int64(i + 1))
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestAdminsLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if errSeed := s.EnsureSuperAdmin(ctx, 1, permissions.All()); errSeed != nil {
		t.Fatalf("seed: %v", errSeed)
	}
	if errSeed := s.EnsureSuperAdmin(ctx, 1, permissions.All()); errSeed != nil {
		t.Fatalf("seed again: %v", errSeed)
	}
	raw, _ := permissions.MarshalPermissions([]string{permissions.Movies})
	if errCreate := s.CreateAdmin(ctx, &models.Admin{UserID: 2, Permissions: raw}); errCreate != nil {
		t.Fatalf("create admin: %v", errCreate)
	}
	if errUpdate := s.UpdateAdminPermissions(ctx, 2, []string{permissions.Broadcast}); errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	admin, err := s.GetAdmin(ctx, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := permissions.ParsePermissions(admin.Permissions); len(got) != 1 || got[0] != permissions.Broadcast {
		t.Fatalf("expected [broadcast], got %v", got)
	}

	admins, err := s.ListAdmins(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(admins) != 2 || !admins[0].IsSuperAdmin {
		t.Fatalf("expected superadmin first, got %+v", admins)
	}

	if errDelete := s.DeleteAdmin(ctx, 1); !errkind.Is(errDelete, errkind.NotFound) {
		t.Fatalf("expected superadmin row to be protected, got %v", errDelete)
	}
	if errDelete := s.DeleteAdmin(ctx, 2); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
}

func TestUsersRegistryAndStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, u := range []models.User{{UserID: 10, Username: "Alice"}, {UserID: 11, Username: "bob"}} {
		u := u
		if errUpsert := s.UpsertUser(ctx, &u); errUpsert != nil {
			t.Fatalf("upsert: %v", errUpsert)
		}
	}
	if errUpsert := s.UpsertUser(ctx, &models.User{UserID: 10, Username: "alice_new"}); errUpsert != nil {
		t.Fatalf("upsert again: %v", errUpsert)
	}

	ids, err := s.ListUserIDs(ctx)
	if err != nil {
		t.Fatalf("list ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 11 {
		t.Fatalf("expected [10 11], got %v", ids)
	}

	user, err := s.FindUserByUsername(ctx, "@ALICE_NEW")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if user.UserID != 10 {
		t.Fatalf("expected user 10, got %d", user.UserID)
	}

	stats, err := s.Stats(ctx, time.Now())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 {
		t.Fatalf("expected 2 users, got %d", stats.Users)
	}
}

func TestChannelRequirementUniqueTarget(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	req := &models.ChannelRequirement{Target: "@movies", DisplayName: "Movies", Required: true, VerificationClass: models.VerificationCheckable}
	if errCreate := s.CreateChannelRequirement(ctx, req); errCreate != nil {
		t.Fatalf("create: %v", errCreate)
	}
	dup := &models.ChannelRequirement{Target: "@movies", DisplayName: "Again", VerificationClass: models.VerificationCheckable}
	if errDup := s.CreateChannelRequirement(ctx, dup); !errkind.Is(errDup, errkind.Conflict) {
		t.Fatalf("expected conflict, got %v", errDup)
	}
	if errDelete := s.DeleteChannelRequirement(ctx, req.ID); errDelete != nil {
		t.Fatalf("delete: %v", errDelete)
	}
	rows, err := s.ListChannelRequirements(ctx)
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected no rows, got %v %v", rows, err)
	}
}

func TestListRecentContentNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		if errCreate := s.CreateContentItem(ctx, &models.ContentItem{Code: strconv.Itoa(i), OriginChannelID: -100, OriginMessageID: i}); errCreate != nil {
			t.Fatalf("create %d: %v", i, errCreate)
		}
	}
	items, err := s.ListRecentContent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(items) != 10 || items[0].Code != "12" || items[9].Code != "3" {
		t.Fatalf("expected codes 12..3, got %d items starting %q", len(items), items[0].Code)
	}
}

func TestPremiumStatsAndListing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed := []struct {
		requester int64
		amount    int64
		to        string
	}{
		{5, 12000, models.PremiumStatusApproved},
		{5, 30000, models.PremiumStatusApproved},
		{6, 12000, models.PremiumStatusRejected},
		{7, 50000, ""},
	}
	for _, row := range seed {
		req := &models.PremiumRequest{RequesterID: row.requester, RequesterChatID: row.requester, PlanLabel: "1 oy", DurationMonths: 1, Amount: row.amount, ReceiptFileID: "f", ReceiptKind: models.ReceiptKindPhoto}
		if errCreate := s.CreatePremiumRequest(ctx, req); errCreate != nil {
			t.Fatalf("create: %v", errCreate)
		}
		if row.to == "" {
			continue
		}
		if _, errMove := s.TransitionPremiumRequest(ctx, req.ID, models.PremiumStatusPending, row.to, 1); errMove != nil {
			t.Fatalf("transition: %v", errMove)
		}
	}

	stats, err := s.PremiumStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.ByStatus[models.PremiumStatusApproved] != 2 || stats.ByStatus[models.PremiumStatusPending] != 1 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.ApprovedUsers != 1 || stats.ApprovedAmount != 42000 {
		t.Fatalf("expected 1 approved user and 42000, got %d %d", stats.ApprovedUsers, stats.ApprovedAmount)
	}

	approved, err := s.ListPremiumRequests(ctx, models.PremiumStatusApproved, 10)
	if err != nil || len(approved) != 2 || approved[0].Amount != 30000 {
		t.Fatalf("expected newest approved first, got %+v %v", approved, err)
	}
	all, err := s.ListPremiumRequests(ctx, "", 3)
	if err != nil || len(all) != 3 || all[0].RequesterID != 7 {
		t.Fatalf("expected 3 newest requests, got %+v %v", all, err)
	}
}
