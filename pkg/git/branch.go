package git

import (
	"strconv"
	"strings"
)

// MaxBranchSlugLength caps the sanitized part of a branch name.
const MaxBranchSlugLength = 50

// SanitizeBranchName lowercases s, collapses every run of characters
// outside [a-z0-9] into a single hyphen and trims hyphens from both ends.
// The result is at most MaxBranchSlugLength characters and never ends in
// a hyphen.
func SanitizeBranchName(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingHyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	out := b.String()
	if len(out) > MaxBranchSlugLength {
		out = out[:MaxBranchSlugLength]
	}
	return strings.TrimRight(out, "-")
}

// BranchNameForTicket returns feature/<id>-<slug of title>. An empty slug
// yields feature/<id>.
func BranchNameForTicket(id int, title string) string {
	slug := SanitizeBranchName(title)
	if slug == "" {
		return "feature/" + strconv.Itoa(id)
	}
	return "feature/" + strconv.Itoa(id) + "-" + slug
}
