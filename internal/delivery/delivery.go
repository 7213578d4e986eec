// Package delivery copies content items into a requester's chat.
package delivery

import (
	"context"

	"github.com/ibrohim2505/prokinobot/internal/content"
	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/settings"
	log "github.com/sirupsen/logrus"
)

const transportFailureText = "❌ Kinoni yuborib bo'lmadi. Birozdan so'ng qayta urinib ko'ring."

// Resolver resolves a code to its origin message.
type Resolver interface {
	Resolve(ctx context.Context, code string) (content.Ref, error)
}

// Service delivers content.
type Service struct {
	resolver Resolver
	msg      messenger.Messenger
}

// New constructs a Service.
func New(resolver Resolver, msg messenger.Messenger) *Service {
	return &Service{resolver: resolver, msg: msg}
}

// Deliver copies the item stored under code into chatID, with the promo button when it
// is configured. NotFound and Transport errors carry a user-facing message.
func (s *Service) Deliver(ctx context.Context, chatID int64, code string) (messenger.MessageRef, error) {
	ref, err := s.resolver.Resolve(ctx, code)
	if err != nil {
		return messenger.MessageRef{}, err
	}
	var kb messenger.Keyboard
	if button, ok := settings.LoadChannelButton(); ok {
		kb = content.PromoKeyboard(button)
	}
	sent, errCopy := s.msg.CopyMessage(ctx, ref.ChannelID, ref.MessageID, chatID, kb)
	if errCopy != nil {
		log.WithError(errCopy).WithFields(log.Fields{"code": code, "chat_id": chatID}).Warn("delivery failed")
		return messenger.MessageRef{}, errkind.Wrapf(errkind.Transport, "delivery.deliver", errCopy, transportFailureText)
	}
	log.WithFields(log.Fields{"code": code, "chat_id": chatID}).Debug("content delivered")
	return sent, nil
}
