// Package validator recognizes sticker pack links.
package validator

import (
	"regexp"
	"strings"

	"github.com/SaeedX302/tg-Sticker-Downloder/internal/entity"
)

var (
	linkRegexp = regexp.MustCompile(`^https?://(t|telegram)\.me/addstickers/[A-Za-z0-9_]{1,64}$`)
)

// Validate reports whether the trimmed candidate is a complete pack link.
func Validate(candidate string) bool {
	return linkRegexp.MatchString(strings.TrimSpace(candidate))
}

// ExtractIdentifier returns the pack name of a valid link. It does not change case or decode anything.
func ExtractIdentifier(candidate string) (entity.PackIdentifier, bool) {
	if !Validate(candidate) {
		return "", false
	}

	link := strings.TrimSpace(candidate)

	return entity.PackIdentifier(link[strings.LastIndex(link, "/")+1:]), true
}
