package discovery

import (
	"strconv"
	"strings"
)

// Strategy names. They lead every source label so metrics can group by
// strategy.
const (
	StrategySitemap    = "sitemap"
	StrategyCatalog    = "catalog"
	StrategyCollection = "collection"
	StrategySearch     = "search"
	StrategyCart       = "cart"
	StrategyGWP        = "gwp"
)

// sourceLabel joins parts with spaces, e.g. "catalog price:asc page 3".
func sourceLabel(prefix string, parts ...any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(' ')
		switch v := p.(type) {
		case int:
			b.WriteString(strconv.Itoa(v))
		case string:
			b.WriteString(v)
		}
	}
	return b.String()
}
