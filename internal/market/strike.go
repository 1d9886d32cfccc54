package market

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// priceHistoryPattern matches the per-window price history entries the
// event page embeds in its HTML. The strike ("price to beat") is the
// closePrice of the entry that ends exactly when this window opens.
var priceHistoryPattern = regexp.MustCompile(
	`\{"startTime":"([^"]+)","endTime":"([^"]+)","openPrice":([0-9.]+),"closePrice":([0-9.]+),"outcome":"([^"]+)"`)

// scrapeStrike fetches the event page and extracts the strike.
func (d *Directory) scrapeStrike(ctx context.Context, slug string, start time.Time) (float64, error) {
	body, err := d.client.GetBody(ctx, fmt.Sprintf("%s/event/%s", d.siteURL, slug))
	if err != nil {
		return 0, err
	}

	// The page formats timestamps with varying zone suffixes, so match
	// on the second-resolution prefix.
	target := start.UTC().Format("2006-01-02T15:04:05")
	for _, m := range priceHistoryPattern.FindAllSubmatch(body, -1) {
		if !strings.Contains(string(m[2]), target) {
			continue
		}
		strike, err := strconv.ParseFloat(string(m[4]), 64)
		if err != nil || strike <= 0 {
			continue
		}
		return strike, nil
	}
	return 0, fmt.Errorf("no price history entry ends at %s", target)
}
