// Package channels classifies subscription requirements and runs the flow that adds them.
package channels

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ibrohim2505/prokinobot/internal/models"
)

var (
	invitePrefixes = []string{"t.me/+", "t.me/joinchat/", "telegram.me/+", "telegram.me/joinchat/"}
	publicNameRE   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	instagramRE    = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)
)

// IsInviteLink reports whether s is a private invite link, which cannot be checked for
// membership.
func IsInviteLink(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, prefix := range invitePrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// EffectiveClass returns the class the gate enforces. A checkable entry stored with an
// invite link as its target is treated as request-only.
func EffectiveClass(req models.ChannelRequirement) string {
	switch req.VerificationClass {
	case models.VerificationRequestOnly, models.VerificationExternalLink:
		return req.VerificationClass
	default:
		if IsInviteLink(req.Target) {
			return models.VerificationRequestOnly
		}
		return models.VerificationCheckable
	}
}

// JoinURL returns the URL a join button opens, or "" when none is known.
func JoinURL(req models.ChannelRequirement) string {
	if u := strings.TrimSpace(req.URL); u != "" {
		return u
	}
	if name := strings.TrimPrefix(strings.TrimSpace(req.Username), "@"); name != "" {
		return "https://t.me/" + name
	}
	target := strings.TrimSpace(req.Target)
	switch {
	case strings.HasPrefix(target, "@"):
		return "https://t.me/" + target[1:]
	case strings.HasPrefix(target, "https://"), strings.HasPrefix(target, "http://"):
		return target
	default:
		return ""
	}
}

// PublicUsername extracts a channel username from "@name", "t.me/name" or
// "https://t.me/name". ok is false for anything else.
func PublicUsername(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if IsInviteLink(s) {
		return "", false
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	for _, host := range []string{"t.me/", "telegram.me/"} {
		if strings.HasPrefix(strings.ToLower(s), host) {
			s = s[len(host):]
			break
		}
	}
	s = strings.TrimPrefix(s, "@")
	s = strings.TrimSuffix(s, "/")
	if !publicNameRE.MatchString(s) {
		return "", false
	}
	return s, true
}

// NormalizeInstagram turns an Instagram username or profile link into a profile URL.
func NormalizeInstagram(input string) (profileURL, username string, ok bool) {
	s := strings.TrimSpace(input)
	if strings.Contains(strings.ToLower(s), "instagram.com") {
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		parsed, err := url.Parse(s)
		if err != nil {
			return "", "", false
		}
		s = strings.Trim(parsed.Path, "/")
		if idx := strings.Index(s, "/"); idx >= 0 {
			s = s[:idx]
		}
	}
	s = strings.TrimPrefix(s, "@")
	if !instagramRE.MatchString(s) {
		return "", "", false
	}
	return "https://instagram.com/" + s, s, true
}

// ValidExternalURL reports whether s is an absolute http(s) URL.
func ValidExternalURL(s string) bool {
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "https" || parsed.Scheme == "http") && parsed.Host != ""
}
