package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/titanous/json5"
	"golang.org/x/net/html"
)

// Field names a product attribute an extraction target may require.
type Field string

const (
	FieldPrice         Field = "price"
	FieldOriginalPrice Field = "originalPrice"
	FieldTitle         Field = "title"
	FieldBrand         Field = "brand"
	FieldStock         Field = "stock"
)

// AllFields lists every field in extraction order.
var AllFields = []Field{FieldPrice, FieldOriginalPrice, FieldTitle, FieldBrand, FieldStock}

// Source records where a field value came from.
type Source string

const (
	SourceMeta        Source = "meta"
	SourceLinkedData  Source = "ld+json"
	SourceInlineState Source = "inline-state"
	SourceSelector    Source = "selector"
	SourceVision      Source = "vision"
)

// Fields holds raw field values. Prices stay unparsed here; the price parser
// normalises them.
type Fields struct {
	Price         string
	OriginalPrice string
	Title         string
	Brand         string
	Currency      string
	InStock       *bool
	Sources       map[Field]Source
}

// Get returns the raw value for f. Stock is rendered as "true"/"false".
func (f *Fields) Get(field Field) string {
	switch field {
	case FieldPrice:
		return f.Price
	case FieldOriginalPrice:
		return f.OriginalPrice
	case FieldTitle:
		return f.Title
	case FieldBrand:
		return f.Brand
	case FieldStock:
		if f.InStock == nil {
			return ""
		}
		return strconv.FormatBool(*f.InStock)
	}
	return ""
}

// Has reports whether field has a value.
func (f *Fields) Has(field Field) bool {
	return f.Get(field) != ""
}

// Set stores a raw value for field and tags its source, unless the field is
// already filled.
func (f *Fields) Set(field Field, value string, src Source) bool {
	value = strings.TrimSpace(value)
	if value == "" || f.Has(field) {
		return false
	}
	switch field {
	case FieldPrice:
		f.Price = value
	case FieldOriginalPrice:
		f.OriginalPrice = value
	case FieldTitle:
		f.Title = cleanText(value)
	case FieldBrand:
		f.Brand = cleanText(value)
	case FieldStock:
		in := StockFromText(value)
		f.InStock = &in
	default:
		return false
	}
	if f.Sources == nil {
		f.Sources = make(map[Field]Source)
	}
	f.Sources[field] = src
	return true
}

func (f *Fields) unset(field Field) {
	switch field {
	case FieldPrice:
		f.Price = ""
	case FieldOriginalPrice:
		f.OriginalPrice = ""
	case FieldTitle:
		f.Title = ""
	case FieldBrand:
		f.Brand = ""
	case FieldStock:
		f.InStock = nil
	}
	delete(f.Sources, field)
}

func (f *Fields) setStock(in bool, src Source) {
	if f.InStock != nil {
		return
	}
	f.InStock = &in
	if f.Sources == nil {
		f.Sources = make(map[Field]Source)
	}
	f.Sources[FieldStock] = src
}

// Structured runs the structured-data steps in priority order. Each field
// takes the first source that yields it.
func (d *Document) Structured() Fields {
	var f Fields
	d.fromMeta(&f)
	d.fromLinkedData(&f)
	d.fromInlineState(&f)
	return f
}

// --- 1. meta tags ---

var metaFields = []struct {
	selector string
	field    Field
}{
	{`meta[property="product:price:amount"]`, FieldPrice},
	{`meta[property="og:price:amount"]`, FieldPrice},
	{`meta[itemprop="price"]`, FieldPrice},
	{`meta[property="product:original_price:amount"]`, FieldOriginalPrice},
	{`meta[property="product:brand"]`, FieldBrand},
	{`meta[itemprop="brand"]`, FieldBrand},
	{`meta[property="og:title"]`, FieldTitle},
}

var metaCurrency = []string{
	`meta[property="product:price:currency"]`,
	`meta[property="og:price:currency"]`,
	`meta[itemprop="priceCurrency"]`,
}

var metaAvailability = []string{
	`meta[property="product:availability"]`,
	`meta[property="og:availability"]`,
	`link[itemprop="availability"]`,
	`meta[itemprop="availability"]`,
}

func (d *Document) fromMeta(f *Fields) {
	for _, m := range metaFields {
		if v, ok := d.doc.Find(m.selector).First().Attr("content"); ok {
			f.Set(m.field, v, SourceMeta)
		}
	}
	if f.Currency == "" {
		for _, sel := range metaCurrency {
			if v, ok := d.doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				f.Currency = strings.TrimSpace(v)
				break
			}
		}
	}
	for _, sel := range metaAvailability {
		s := d.doc.Find(sel).First()
		v, ok := s.Attr("content")
		if !ok {
			v, ok = s.Attr("href")
		}
		if ok {
			if in, known := availability(v); known {
				f.setStock(in, SourceMeta)
				break
			}
		}
	}
}

// --- 2. linked data ---

func (d *Document) fromLinkedData(f *Fields) {
	d.doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, ok := decodeLenient(s.Text())
		if !ok {
			return true
		}
		product := findProduct(v)
		if product == nil {
			return true
		}
		applyProduct(f, product)
		return !(f.Has(FieldPrice) && f.Has(FieldTitle))
	})
}

// decodeLenient parses strictly first and falls back to JSON5, which accepts
// the trailing commas and comments some storefront templates emit.
func decodeLenient(raw string) (any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	if err := json5.Unmarshal([]byte(raw), &v); err == nil {
		return v, true
	}
	return nil, false
}

func findProduct(v any) map[string]any {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if p := findProduct(item); p != nil {
				return p
			}
		}
	case map[string]any:
		if typeIs(t["@type"], "Product") {
			return t
		}
		for _, key := range []string{"@graph", "mainEntity", "itemListElement"} {
			if nested, ok := t[key]; ok {
				if p := findProduct(nested); p != nil {
					return p
				}
			}
		}
	}
	return nil
}

func typeIs(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want || strings.HasSuffix(t, "/"+want)
	case []any:
		for _, item := range t {
			if typeIs(item, want) {
				return true
			}
		}
	}
	return false
}

func applyProduct(f *Fields, p map[string]any) {
	f.Set(FieldTitle, scalar(p["name"]), SourceLinkedData)

	switch b := p["brand"].(type) {
	case string:
		f.Set(FieldBrand, b, SourceLinkedData)
	case map[string]any:
		f.Set(FieldBrand, scalar(b["name"]), SourceLinkedData)
	}

	offer := firstObject(p["offers"])
	if offer == nil {
		return
	}

	price := scalar(offer["price"])
	if price == "" {
		price = scalar(offer["lowPrice"])
	}
	for _, spec := range objects(offer["priceSpecification"]) {
		pt := scalar(spec["priceType"])
		if strings.Contains(pt, "ListPrice") || strings.Contains(pt, "StrikethroughPrice") {
			f.Set(FieldOriginalPrice, scalar(spec["price"]), SourceLinkedData)
			continue
		}
		if price == "" {
			price = scalar(spec["price"])
		}
	}
	f.Set(FieldPrice, price, SourceLinkedData)

	if f.Currency == "" {
		f.Currency = scalar(offer["priceCurrency"])
	}
	if in, known := availability(scalar(offer["availability"])); known {
		f.setStock(in, SourceLinkedData)
	}
}

func firstObject(v any) map[string]any {
	objs := objects(v)
	if len(objs) == 0 {
		return nil
	}
	return objs[0]
}

func objects(v any) []map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return []map[string]any{t}
	case []any:
		var out []map[string]any
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	}
	return ""
}

// --- 3. inline script state ---

var (
	inlinePriceRe = regexp.MustCompile(`"(?:price|salePrice|currentPrice|finalPrice|sellingPrice|sellPrice)"\s*:\s*"?(\d[\d.,]*)"?`)
	inlineOrigRe  = regexp.MustCompile(`"(?:originalPrice|listPrice|wasPrice|compareAtPrice|regularPrice|strikePrice)"\s*:\s*"?(\d[\d.,]*)"?`)
	inlineCurRe   = regexp.MustCompile(`"(?:priceCurrency|currencyCode|currency)"\s*:\s*"([A-Za-z]{3})"`)
	inlineStockRe = regexp.MustCompile(`"(?:available|inStock|isInStock|isAvailable)"\s*:\s*(true|false)`)
)

func (d *Document) fromInlineState(f *Fields) {
	d.doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		if t, _ := s.Attr("type"); t == "application/ld+json" {
			return
		}
		body := s.Text()
		if m := inlinePriceRe.FindStringSubmatch(body); m != nil {
			f.Set(FieldPrice, m[1], SourceInlineState)
		}
		if m := inlineOrigRe.FindStringSubmatch(body); m != nil {
			f.Set(FieldOriginalPrice, m[1], SourceInlineState)
		}
		if f.Currency == "" {
			if m := inlineCurRe.FindStringSubmatch(body); m != nil {
				f.Currency = m[1]
			}
		}
		if m := inlineStockRe.FindStringSubmatch(body); m != nil {
			f.setStock(m[1] == "true", SourceInlineState)
		}
	})
}

// --- helpers ---

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips any markup smuggled into structured titles or brands.
func cleanText(s string) string {
	return collapse(html.UnescapeString(textPolicy.Sanitize(s)))
}

// availability maps schema.org / Open Graph availability values.
func availability(v string) (inStock, known bool) {
	l := strings.ToLower(strings.TrimSpace(v))
	if l == "" {
		return false, false
	}
	switch {
	case strings.Contains(l, "outofstock"), strings.Contains(l, "out of stock"),
		strings.Contains(l, "soldout"), strings.Contains(l, "discontinued"), l == "oos":
		return false, true
	case strings.Contains(l, "instock"), strings.Contains(l, "in stock"),
		strings.Contains(l, "limitedavailability"), strings.Contains(l, "preorder"),
		strings.Contains(l, "onlineonly"), strings.Contains(l, "instoreonly"):
		return true, true
	}
	return false, false
}
