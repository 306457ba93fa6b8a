package payments

import (
	"fmt"
	"strconv"
	"strings"
)

// Metadata keys written on checkout sessions.
const (
	MetaUserID   = "userId"
	MetaSellerID = "sellerId"
	MetaPlanID   = "planId"
	MetaItems    = "items"
)

// Item is one album in an album checkout.
type Item struct {
	SellerID string
	PostID   string
	Amount   int64
}

// EncodeItems renders items as "seller|post|amount" joined by commas.
func EncodeItems(items []Item) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%s|%s|%d", it.SellerID, it.PostID, it.Amount)
	}
	return strings.Join(parts, ",")
}

// DecodeItems parses the output of EncodeItems.
func DecodeItems(raw string) ([]Item, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var items []Item
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Split(part, "|")
		if len(fields) != 3 || fields[0] == "" || fields[1] == "" {
			return nil, fmt.Errorf("%w: item %q", ErrMalformedEvent, part)
		}
		amount, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("%w: item amount %q", ErrMalformedEvent, fields[2])
		}
		items = append(items, Item{SellerID: fields[0], PostID: fields[1], Amount: amount})
	}
	return items, nil
}
