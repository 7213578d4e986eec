// Package content maps retrieval codes to media posted in the origin channel.
package content

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/errkind"
	"github.com/ibrohim2505/prokinobot/internal/models"
)

const (
	// MinCode and MaxCode bound numeric codes.
	MinCode = models.MinNumericCode
	MaxCode = models.MaxNumericCode
	// GeneratedCodeLength is the length of random codes.
	GeneratedCodeLength = 8

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	// ErrCodeTaken is returned when a code already belongs to an item.
	ErrCodeTaken = errors.New("code already taken")
	// ErrNotFound is returned when no item has the code.
	ErrNotFound = errors.New("content not found")
)

// Store is the subset of the store the registry needs.
type Store interface {
	GetContentItem(ctx context.Context, code string) (*models.ContentItem, error)
	CreateContentItem(ctx context.Context, item *models.ContentItem) error
	DeleteContentItem(ctx context.Context, code string) error
	CodeExists(ctx context.Context, code string) (bool, error)
	MaxNumericCode(ctx context.Context) (int, error)
	SearchContent(ctx context.Context, query string, limit int) ([]models.ContentItem, error)
	ListRecentContent(ctx context.Context, limit int) ([]models.ContentItem, error)
}

// Ref locates the origin message of an item.
type Ref struct {
	ChannelID int64
	MessageID int
}

// Registry is the content registry.
type Registry struct {
	store Store
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Resolve returns the origin message of code.
func (r *Registry) Resolve(ctx context.Context, code string) (Ref, error) {
	item, err := r.Get(ctx, code)
	if err != nil {
		return Ref{}, err
	}
	return Ref{ChannelID: item.OriginChannelID, MessageID: item.OriginMessageID}, nil
}

// Get returns the item stored under code.
func (r *Registry) Get(ctx context.Context, code string) (*models.ContentItem, error) {
	item, err := r.store.GetContentItem(ctx, normalizeCode(code))
	if errkind.Is(err, errkind.NotFound) {
		return nil, errkind.Wrapf(errkind.NotFound, "content.get", ErrNotFound, "❌ %s kodli kino topilmadi.", code)
	}
	return item, err
}

// CodeExists reports whether code is taken.
func (r *Registry) CodeExists(ctx context.Context, code string) (bool, error) {
	return r.store.CodeExists(ctx, normalizeCode(code))
}

// NextCode suggests the next numeric code: the largest numeric code plus one, or 1.
func (r *Registry) NextCode(ctx context.Context) (int, error) {
	maxCode, err := r.store.MaxNumericCode(ctx)
	if err != nil {
		return 0, err
	}
	return maxCode + 1, nil
}

// Create stores item; a taken code yields a Conflict error wrapping ErrCodeTaken.
func (r *Registry) Create(ctx context.Context, item *models.ContentItem) error {
	item.Code = normalizeCode(item.Code)
	err := r.store.CreateContentItem(ctx, item)
	if errkind.Is(err, errkind.Conflict) {
		return errkind.Wrapf(errkind.Conflict, "content.create", ErrCodeTaken, "❌ %s kodi band.", item.Code)
	}
	return err
}

// Delete removes the item stored under code.
func (r *Registry) Delete(ctx context.Context, code string) error {
	err := r.store.DeleteContentItem(ctx, normalizeCode(code))
	if errkind.Is(err, errkind.NotFound) {
		return errkind.Wrapf(errkind.NotFound, "content.delete", ErrNotFound, "❌ %s kodli kino topilmadi.", code)
	}
	return err
}

// Recent returns the newest limit items.
func (r *Registry) Recent(ctx context.Context, limit int) ([]models.ContentItem, error) {
	return r.store.ListRecentContent(ctx, limit)
}

// Search returns items whose name contains query.
func (r *Registry) Search(ctx context.Context, query string) ([]models.ContentItem, error) {
	return r.store.SearchContent(ctx, query, 10)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ParseNumericCode validates an all-digit code in [MinCode, MaxCode].
func ParseNumericCode(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" || !isDigits(text) {
		return 0, errkind.New(errkind.Validation, "content.parse_code", "❌ Kod faqat raqamlardan iborat bo'lishi kerak.")
	}
	n, errAtoi := strconv.Atoi(text)
	if errAtoi != nil || n < MinCode || n > MaxCode {
		return 0, errkind.New(errkind.Validation, "content.parse_code", fmt.Sprintf("❌ Kod %d dan %d gacha bo'lishi kerak.", MinCode, MaxCode))
	}
	return n, nil
}

// ValidateUserCode checks a code typed by a user before any lookup. Numeric codes must
// be in range; generated codes must be GeneratedCodeLength characters of [A-Z0-9].
func ValidateUserCode(text string) (string, error) {
	text = strings.TrimSpace(text)
	if isDigits(text) {
		n, err := ParseNumericCode(text)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	}
	upper := strings.ToUpper(text)
	if len(upper) == GeneratedCodeLength && isGeneratedCode(upper) {
		return upper, nil
	}
	return "", errkind.New(errkind.Validation, "content.validate_code", "❌ Kod faqat raqamlardan iborat bo'lishi kerak.")
}

// LooksLikeCode reports whether text is plausibly a code rather than chat.
func LooksLikeCode(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \n\t") {
		return false
	}
	return isDigits(text) || (len(text) == GeneratedCodeLength && isGeneratedCode(strings.ToUpper(text)))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isGeneratedCode(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}

// GenerateCode returns a random code of GeneratedCodeLength characters from [A-Z0-9]
// holding at least one letter, so it never reads as a numeric code.
func GenerateCode() (string, error) {
	return generateCode(rand.Reader)
}

func generateCode(src io.Reader) (string, error) {
	// Bytes at or above limit are rejected.
	const limit = 256 - 256%len(codeAlphabet)
	out := make([]byte, 0, GeneratedCodeLength)
	buf := make([]byte, GeneratedCodeLength*2)
	for len(out) < GeneratedCodeLength {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == GeneratedCodeLength {
				break
			}
		}
		if len(out) == GeneratedCodeLength && isDigits(string(out)) {
			out = out[:0]
		}
	}
	return string(out), nil
}
