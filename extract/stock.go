package extract

import "strings"

// outOfStockMarkers are lowercase fragments retailers print next to
// unavailable products.
var outOfStockMarkers = []string{
	"out of stock", "not in stock", "sold out", "currently unavailable", "not available",
	"uitverkocht", "niet leverbaar", "tijdelijk uitverkocht", "niet op voorraad",
	"ausverkauft", "nicht verfügbar", "nicht lieferbar",
	"épuisé", "rupture de stock", "indisponible",
	"agotado", "esaurito",
}

// StockFromText reads availability from a stock-field text. Anything that
// does not say otherwise counts as in stock.
func StockFromText(text string) bool {
	l := strings.ToLower(strings.TrimSpace(text))
	switch l {
	case "true":
		return true
	case "false":
		return false
	}
	for _, m := range outOfStockMarkers {
		if strings.Contains(l, m) {
			return false
		}
	}
	if in, known := availability(l); known {
		return in
	}
	return true
}
