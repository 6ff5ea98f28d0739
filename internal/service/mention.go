package service

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/noah-isme/gema-chat/internal/models"
)

// resolveMentions scans content for @name tags and matches each against the
// display names of the scope's members. Names may contain spaces, so every
// tag takes the longest member name it starts with, compared
// case-insensitively and ending on a word boundary. Tags that match nobody
// stay plain text. The author is never returned.
func resolveMentions(content string, members []models.Member, authorProfileID uint) []models.Member {
	if !strings.Contains(content, "@") || len(members) == 0 {
		return nil
	}

	seen := make(map[uint]struct{})
	var mentioned []models.Member

	for i := 0; i < len(content); i++ {
		if content[i] != '@' || !tagStart(content, i) {
			continue
		}

		rest := content[i+1:]
		best := -1
		bestLen := 0
		for idx, member := range members {
			name := strings.TrimSpace(member.Profile.Name)
			if name == "" || len(name) <= bestLen || len(rest) < len(name) {
				continue
			}
			if !strings.EqualFold(rest[:len(name)], name) || !tagEnd(rest[len(name):]) {
				continue
			}
			best = idx
			bestLen = len(name)
		}
		if best < 0 {
			continue
		}

		member := members[best]
		i += bestLen
		if member.ProfileID == authorProfileID {
			continue
		}
		if _, dup := seen[member.ProfileID]; dup {
			continue
		}
		seen[member.ProfileID] = struct{}{}
		mentioned = append(mentioned, member)
	}

	return mentioned
}

// tagStart rejects @ inside a word, e.g. an email address.
func tagStart(content string, at int) bool {
	if at == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(content[:at])
	return !isWordRune(prev)
}

func tagEnd(rest string) bool {
	if rest == "" {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !isWordRune(next)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
