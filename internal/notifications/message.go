package notifications

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/model"
	"github.com/oshri1997/Deal-Hunter/internal/money"
	"github.com/oshri1997/Deal-Hunter/internal/region"
)

// dealGroup is every claimed reason for one (game, region, deal period).
type dealGroup struct {
	items []model.QueueItem
}

func (g dealGroup) head() model.QueueItem { return g.items[0] }

type dealKey struct {
	gameID   int64
	region   string
	openedAt time.Time
}

// groupByDeal collapses a user's claimed items into one group per deal,
// keeping the newest price snapshot first.
func groupByDeal(items []model.QueueItem) []dealGroup {
	idx := make(map[dealKey]int)
	var groups []dealGroup
	for _, it := range items {
		k := dealKey{it.GameID, it.Region, it.OpenedAt.UTC()}
		i, ok := idx[k]
		if !ok {
			idx[k] = len(groups)
			groups = append(groups, dealGroup{items: []model.QueueItem{it}})
			continue
		}
		groups[i].items = append(groups[i].items, it)
	}
	for i := range groups {
		g := groups[i].items
		sort.SliceStable(g, func(a, b int) bool { return g[a].CreatedAt.After(g[b].CreatedAt) })
	}
	sort.SliceStable(groups, func(a, b int) bool {
		ga, gb := groups[a].head(), groups[b].head()
		if ga.DiscountPercent != gb.DiscountPercent {
			return ga.DiscountPercent > gb.DiscountPercent
		}
		return ga.GameTitle < gb.GameTitle
	})
	return groups
}

// dealMessage renders a single-deal notification.
func dealMessage(g dealGroup) string {
	it := g.head()
	var b strings.Builder

	header := "🔥 New deal"
	if it.Event == model.EventPriceChanged {
		header = "📉 Price drop"
	}
	fmt.Fprintf(&b, "%s: %s\n", header, titleOf(it))
	b.WriteString(priceLine(it))
	b.WriteByte('\n')
	if r := reasonsLine(g.items); r != "" {
		b.WriteString(r)
		b.WriteByte('\n')
	}
	b.WriteString(linkOf(it))
	return b.String()
}

// digestMessage renders up to limit deals as one message, with an overflow
// count for the rest.
func digestMessage(groups []dealGroup, limit int) string {
	var b strings.Builder
	if len(groups) == 1 {
		fmt.Fprintf(&b, "🎮 Your daily deal digest: 1 deal\n")
	} else {
		fmt.Fprintf(&b, "🎮 Your daily deal digest: %d deals\n", len(groups))
	}
	shown := groups
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, g := range shown {
		it := g.head()
		fmt.Fprintf(&b, "\n• %s\n  %s\n  %s\n", titleOf(it), priceLine(it), linkOf(it))
	}
	if rest := len(groups) - len(shown); rest > 0 {
		fmt.Fprintf(&b, "\n…and %d more", rest)
	}
	return strings.TrimRight(b.String(), "\n")
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func titleOf(it model.QueueItem) string {
	if it.GameTitle != "" {
		return it.GameTitle
	}
	return fmt.Sprintf("game #%d", it.GameID)
}

func priceLine(it model.QueueItem) string {
	r, ok := region.Lookup(it.Region)
	symbol, flag := it.Currency+" ", it.Region
	if ok {
		symbol, flag = r.Symbol, r.Flag
	}
	line := fmt.Sprintf("%s %s", flag, money.FormatWithSymbol(it.Price, it.Currency, symbol))
	if it.ListPrice > it.Price {
		line += fmt.Sprintf(" (was %s, -%d%%)", money.FormatWithSymbol(it.ListPrice, it.Currency, symbol), it.DiscountPercent)
	}
	if it.Event == model.EventPriceChanged && it.OldPrice > it.Price {
		line += fmt.Sprintf(" ↓ from %s", money.FormatWithSymbol(it.OldPrice, it.Currency, symbol))
	}
	return line
}

func reasonsLine(items []model.QueueItem) string {
	var parts []string
	seen := make(map[string]bool)
	for _, it := range items {
		var p string
		switch {
		case it.Reason == model.ReasonWishlist:
			p = "on your wishlist"
		case it.AlertKind == model.AlertAbsolutePrice:
			p = "under your " + money.Format(it.Threshold, it.Currency) + " alert"
		case it.AlertKind == model.AlertDiscountPercent:
			p = fmt.Sprintf("at least %d%% off", it.Threshold)
		}
		if p != "" && !seen[p] {
			seen[p] = true
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Because it's " + strings.Join(parts, ", ")
}

func linkOf(it model.QueueItem) string {
	if it.SourceURL != "" {
		return it.SourceURL
	}
	if r, ok := region.Lookup(it.Region); ok {
		return r.SearchURL(titleOf(it))
	}
	return ""
}
