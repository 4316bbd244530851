package pricewatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pricewatch/extract"
	"github.com/hazyhaar/pricewatch/fingerprint"
	"github.com/hazyhaar/pricewatch/kit"
	"github.com/hazyhaar/pricewatch/scrape"
)

// RegisterMCP registers pricewatch tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerScrapeTool(srv)
	s.registerTrackTool(srv)
	s.registerTrendTool(srv)
	s.registerYearOverYearTool(srv)
	s.registerSelectorsTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Service) logged(name string, e kit.Endpoint) kit.Endpoint {
	return kit.Logging(s.logger, name)(e)
}

func tierEnum() []any {
	out := make([]any, len(scrape.TierOrder))
	for i, t := range scrape.TierOrder {
		out[i] = string(t)
	}
	return out
}

func fieldEnum() []any {
	out := make([]any, len(extract.AllFields))
	for i, f := range extract.AllFields {
		out[i] = string(f)
	}
	return out
}

func targetProperties() map[string]any {
	return map[string]any{
		"url":          map[string]any{"type": "string", "description": "Product page URL"},
		"fields":       map[string]any{"type": "array", "items": map[string]any{"type": "string", "enum": fieldEnum()}, "description": "Fields wanted besides price"},
		"max_tier":     map[string]any{"type": "string", "enum": tierEnum(), "description": "Most expensive tier allowed"},
		"max_cost":     map[string]any{"type": "number", "description": "Cost budget in USD (0 = no cap)"},
		"device_class": map[string]any{"type": "string", "enum": []any{"desktop", "mobile"}, "description": "Fingerprint device class"},
	}
}

type targetArgs struct {
	URL         string   `json:"url"`
	Fields      []string `json:"fields,omitempty"`
	MaxTier     string   `json:"max_tier,omitempty"`
	MaxCost     float64  `json:"max_cost,omitempty"`
	DeviceClass string   `json:"device_class,omitempty"`
}

func (a targetArgs) target() scrape.Target {
	t := scrape.Target{
		URL:         strings.TrimSpace(a.URL),
		MaxTier:     scrape.TierName(a.MaxTier),
		MaxCost:     a.MaxCost,
		DeviceClass: fingerprint.DeviceClass(a.DeviceClass),
	}
	for _, f := range a.Fields {
		t.Fields = append(t.Fields, extract.Field(f))
	}
	return t
}

// --- scrape ---

type scrapeRequest struct {
	targetArgs
}

func (s *Service) registerScrapeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pricewatch_scrape",
		Description: "Extract the current price of a product page, escalating from plain HTTP to browser, proxy and vision tiers as needed. Nothing is recorded in the price history.",
		InputSchema: inputSchema(targetProperties(), []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*scrapeRequest)
		return s.scraper.Scrape(ctx, r.target())
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r scrapeRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.logged(tool.Name, endpoint), decode)
}

// --- track ---

type trackRequest struct {
	ProductID string `json:"product_id"`
	Retailer  string `json:"retailer,omitempty"`
	targetArgs
}

func (s *Service) registerTrackTool(srv *mcp.Server) {
	props := targetProperties()
	props["product_id"] = map[string]any{"type": "string", "description": "Product identifier of the price series"}
	props["retailer"] = map[string]any{"type": "string", "description": "Retailer of the price series (default: URL domain)"}
	tool := &mcp.Tool{
		Name:        "pricewatch_track",
		Description: "Scrape a product page and record the price in its history. Unchanged prices are written at most once per staleness period.",
		InputSchema: inputSchema(props, []string{"product_id", "url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*trackRequest)
		return s.Track(ctx, TrackRequest{ProductID: r.ProductID, Retailer: r.Retailer, Target: r.target()})
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r trackRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.logged(tool.Name, endpoint), decode)
}

// --- trend ---

type trendRequest struct {
	ProductID string `json:"product_id"`
	Retailer  string `json:"retailer"`
	Days      int    `json:"days,omitempty"`
}

func (s *Service) registerTrendTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pricewatch_trend",
		Description: "Classify the price trend of a series over a window: increasing, decreasing, stable or insufficient_data.",
		InputSchema: inputSchema(map[string]any{
			"product_id": map[string]any{"type": "string", "description": "Product identifier"},
			"retailer":   map[string]any{"type": "string", "description": "Retailer"},
			"days":       map[string]any{"type": "integer", "description": "Window in days (default 30)"},
		}, []string{"product_id", "retailer"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*trendRequest)
		return s.history.Trend(ctx, r.ProductID, r.Retailer, r.Days)
	}

	kit.RegisterMCPTool(srv, tool, s.logged(tool.Name, endpoint), kit.DecodeJSON[trendRequest]())
}

// --- year_over_year ---

type yearOverYearRequest struct {
	ProductID string `json:"product_id"`
	Retailer  string `json:"retailer"`
	Event     string `json:"event"`
}

func (s *Service) registerYearOverYearTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pricewatch_year_over_year",
		Description: "Compare the lowest price around every edition of a commerce event (e.g. Black Friday), one row per year.",
		InputSchema: inputSchema(map[string]any{
			"product_id": map[string]any{"type": "string", "description": "Product identifier"},
			"retailer":   map[string]any{"type": "string", "description": "Retailer"},
			"event":      map[string]any{"type": "string", "description": "Event name, with or without year"},
		}, []string{"product_id", "retailer", "event"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*yearOverYearRequest)
		rows, err := s.history.YearOverYear(ctx, r.ProductID, r.Retailer, r.Event)
		if err != nil {
			return nil, err
		}
		return map[string]any{"event": r.Event, "years": rows}, nil
	}

	kit.RegisterMCPTool(srv, tool, s.logged(tool.Name, endpoint), kit.DecodeJSON[yearOverYearRequest]())
}

// --- selectors ---

type selectorsRequest struct {
	Domain string `json:"domain"`
	Field  string `json:"field,omitempty"`
}

func (s *Service) registerSelectorsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pricewatch_selectors",
		Description: "List the learned selectors of a domain, best first, with their success counts and scores.",
		InputSchema: inputSchema(map[string]any{
			"domain": map[string]any{"type": "string", "description": "Retailer domain (e.g. coolblue.nl)"},
			"field":  map[string]any{"type": "string", "enum": fieldEnum(), "description": "Restrict to one field"},
		}, []string{"domain"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*selectorsRequest)
		if strings.TrimSpace(r.Domain) == "" {
			return nil, fmt.Errorf("domain is required")
		}
		if r.Field != "" {
			return s.selectors.SelectorsFor(ctx, r.Domain, r.Field)
		}
		return s.selectors.SelectorsForDomain(ctx, r.Domain)
	}

	kit.RegisterMCPTool(srv, tool, s.logged(tool.Name, endpoint), kit.DecodeJSON[selectorsRequest]())
}
