package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ItemID derives a stable identifier from an item's link and publish date.
func ItemID(link, pubDate string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(link) + "\n" + strings.TrimSpace(pubDate)))
	return hex.EncodeToString(sum[:8])
}

// AssignIDs sets ID and Index on every item in order. Colliding IDs (same
// link and date published twice) get a positional suffix.
func AssignIDs(items []FeedItem) {
	seen := make(map[string]int, len(items))
	for i := range items {
		id := ItemID(items[i].Link, items[i].PubDate)
		if n, dup := seen[id]; dup {
			seen[id] = n + 1
			id = id + "-" + strconv.Itoa(n+1)
		} else {
			seen[id] = 0
		}
		items[i].ID = id
		items[i].Index = i
	}
}

// Lookup finds an item by stable ID, falling back to a positional index for
// links created before IDs existed.
func (f *Feed) Lookup(ref string) (FeedItem, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return FeedItem{}, false
	}
	for _, it := range f.Items {
		if it.ID == ref {
			return it, true
		}
	}
	idx, err := strconv.Atoi(ref)
	if err != nil || idx < 0 || idx >= len(f.Items) {
		return FeedItem{}, false
	}
	return f.Items[idx], true
}
