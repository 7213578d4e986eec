package directory

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/flow"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/models"
	"github.com/ibrohim2505/prokinobot/internal/permissions"
	"github.com/ibrohim2505/prokinobot/internal/session"
)

// UserLookup resolves @usernames of users who have talked to the bot.
type UserLookup interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// ChatLookup resolves numeric ids through the messenger.
type ChatLookup interface {
	GetChat(ctx context.Context, chat string) (messenger.Chat, error)
}

// AddAdminFlow adds an admin from a forwarded message, an @username or a numeric id.
type AddAdminFlow struct {
	dir   *Directory
	users UserLookup
	chats ChatLookup
}

func NewAddAdminFlow(dir *Directory, users UserLookup, chats ChatLookup) *AddAdminFlow {
	return &AddAdminFlow{dir: dir, users: users, chats: chats}
}

func (f *AddAdminFlow) Kind() session.Kind { return session.KindAdminAdd }

func (f *AddAdminFlow) Capability() string { return permissions.Admins }

func (f *AddAdminFlow) Begin(context.Context, int64, session.Fields) (session.Fields, []messenger.Payload, error) {
	text := "👤 Yangi admin qo'shish\n\nFoydalanuvchi xabarini forward qiling, @username yoki ID yuboring.\n\nBekor qilish: /cancel"
	return session.AdminAddFields{}, []messenger.Payload{messenger.TextPayload(text, nil)}, nil
}

func (f *AddAdminFlow) Step(ctx context.Context, _ session.FlowSession, ev flow.Event) (flow.Transition, error) {
	account, err := f.resolve(ctx, ev)
	if err != nil {
		return flow.Transition{}, err
	}
	if account.UserID == ev.UserID {
		return flow.Transition{}, errkind.New(errkind.Validation, "admin_add.step", "❌ O'zingizni admin qila olmaysiz.")
	}
	account.Capabilities = permissions.DefaultForNewAdmin()
	if errAdd := f.dir.AddAdmin(ctx, ev.UserID, account); errAdd != nil {
		if errkind.Is(errAdd, errkind.Conflict) {
			return flow.Transition{}, errkind.Wrapf(errkind.Conflict, "admin_add.step", errAdd, "⚠️ Bu foydalanuvchi allaqachon admin.")
		}
		return flow.Transition{}, errAdd
	}
	name := account.DisplayName
	if name == "" {
		name = strconv.FormatInt(account.UserID, 10)
	}
	text := fmt.Sprintf("✅ Admin qo'shildi: <b>%s</b> (<code>%d</code>)\n\nHuquqlarni admin ro'yxatidan sozlang.", html.EscapeString(name), account.UserID)
	return flow.Transition{Done: true, Replies: []messenger.Payload{messenger.TextPayload(text, nil)}}, nil
}

func (f *AddAdminFlow) resolve(ctx context.Context, ev flow.Event) (Account, error) {
	if fu := ev.ForwardedUser; fu != nil {
		if fu.IsBot {
			return Account{}, errkind.New(errkind.Validation, "admin_add.resolve", "❌ Botni admin qilib bo'lmaydi.")
		}
		return Account{UserID: fu.ID, DisplayName: fu.FullName(), Username: fu.Username}, nil
	}
	if ev.ForwardedChat != nil {
		return Account{}, errkind.New(errkind.Validation, "admin_add.resolve", "❌ Foydalanuvchi xabarini forward qiling, kanal xabarini emas.")
	}

	text := ev.TrimmedText()
	switch {
	case text == "":
		return Account{}, errkind.New(errkind.Validation, "admin_add.resolve", "❌ Forward, @username yoki ID yuboring.")
	case strings.HasPrefix(text, "@"):
		user, errFind := f.users.FindUserByUsername(ctx, strings.TrimPrefix(text, "@"))
		if errFind == nil {
			return Account{UserID: user.UserID, DisplayName: strings.TrimSpace(user.FirstName + " " + user.LastName), Username: user.Username}, nil
		}
		if !errkind.Is(errFind, errkind.NotFound) {
			return Account{}, errFind
		}
		return f.fromChat(ctx, text)
	default:
		if _, errParse := strconv.ParseInt(text, 10, 64); errParse != nil {
			return Account{}, errkind.New(errkind.Validation, "admin_add.resolve", "❌ ID faqat raqamlardan iborat bo'lishi kerak.")
		}
		return f.fromChat(ctx, text)
	}
}

func (f *AddAdminFlow) fromChat(ctx context.Context, ref string) (Account, error) {
	chat, errChat := f.chats.GetChat(ctx, ref)
	if errChat != nil {
		return Account{}, errkind.Wrapf(errkind.Validation, "admin_add.resolve", errChat, "❌ Foydalanuvchi topilmadi. U avval botga /start yuborishi kerak.")
	}
	if chat.Type != messenger.ChatPrivate || chat.IsBot {
		return Account{}, errkind.New(errkind.Validation, "admin_add.resolve", "❌ Bu foydalanuvchi emas.")
	}
	return Account{UserID: chat.ID, DisplayName: chat.DisplayName(), Username: chat.Username}, nil
}
