package extract

// DefaultSelectors are the alternatives tried after every learned selector
// for a field has missed. They cover the markup most storefront themes ship.
var DefaultSelectors = map[Field]string{
	FieldPrice:         "[itemprop=price], [data-testid=price], [data-test=price], .sales-price, .product-price, .price",
	FieldOriginalPrice: ".was-price, .old-price, .price-old, .list-price, .strikethrough, del",
	FieldTitle:         "[itemprop=name], [data-testid=product-title], h1",
	FieldBrand:         "[itemprop=brand], [data-testid=brand], .product-brand, .brand",
	FieldStock:         "[itemprop=availability], [data-testid=stock], .availability, .stock-status, .stock",
}

// Plan lists, per field, the selector entries to try in order. Each entry
// may itself be a comma-separated list of alternatives.
type Plan map[Field][]string

// Outcome records how one tried selector entry fared.
type Outcome struct {
	Field       Field
	Selector    string // the plan entry as stored
	Matched     bool
	Alternative string // the alternative of Selector that matched
	Value       string
}

// Result is the raw output of a full extraction pass.
type Result struct {
	Fields   Fields
	Outcomes []Outcome
}

// Resolve runs structured extraction, then walks the plan for every required
// field still missing. accept validates a candidate value (for example that
// a price fragment parses); a rejected match counts as a miss for that entry,
// and a rejected structured value is discarded. Fields found in structured
// data never consult the plan, so they produce no outcomes.
func (d *Document) Resolve(required []Field, plan Plan, accept func(Field, string) bool) Result {
	res := Result{Fields: d.Structured()}
	for _, field := range required {
		check := func(text string) bool {
			return accept == nil || accept(field, text)
		}
		if res.Fields.Has(field) {
			if check(res.Fields.Get(field)) {
				continue
			}
			res.Fields.unset(field)
		}
		for _, entry := range plan[field] {
			m, ok := d.SelectFunc(entry, check)
			res.Outcomes = append(res.Outcomes, Outcome{
				Field:       field,
				Selector:    entry,
				Matched:     ok,
				Alternative: m.Selector,
				Value:       m.Text,
			})
			if ok {
				res.Fields.Set(field, m.Text, SourceSelector)
				break
			}
		}
	}
	return res
}
