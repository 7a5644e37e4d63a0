package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ContentHash derives a dedup identity for items without a stable external
// ID. The hash covers the normalized notice body (type, URL, message) plus
// the UTC day bucket, so an identical notice re-posted on a later day is
// treated as a new item while same-day re-fetches collapse to one key.
func ContentHash(noticeType, url, message string, seenAt time.Time) string {
	content := strings.Join([]string{
		normalize(noticeType),
		normalize(url),
		normalize(message),
		seenAt.UTC().Format("2006-01-02"),
	}, "|")

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}

// normalize folds the text to NFC, lowercases it and collapses all runs of
// whitespace, so cosmetic edits on the remote side do not change identity.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
