package selectorstore

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"time"
)

// LeaderboardHTML renders the domain leaderboard as a standalone HTML page.
func (s *Store) LeaderboardHTML(ctx context.Context) ([]byte, error) {
	entries, err := s.Leaderboard(ctx, 200)
	if err != nil {
		return nil, fmt.Errorf("selectorstore: leaderboard: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>pricewatch selector leaderboard</title>
<style>
body{font-family:system-ui,sans-serif;background:#f8f9fa;color:#212529;max-width:960px;margin:0 auto;padding:2rem 1rem}
h1{font-size:1.4rem;margin-bottom:1rem}
table{width:100%;border-collapse:collapse;background:#fff;border:1px solid #dee2e6}
th{background:#e9ecef;padding:.5rem .75rem;text-align:left;font-size:.85rem}
td{padding:.5rem .75rem;border-top:1px solid #dee2e6;font-size:.85rem}
.badge{display:inline-block;padding:.1rem .4rem;border-radius:.25rem;font-size:.75rem;font-weight:600}
.good{background:#d3f9d8;color:#2b8a3e}
.warn{background:#fff3bf;color:#e67700}
.bad{background:#ffe3e3;color:#c92a2a}
.generated{text-align:center;font-size:.75rem;color:#868e96;margin-top:2rem}
</style>
</head>
<body>
<h1>Selector reliability by domain</h1>
<table>
<thead><tr><th>#</th><th>Domain</th><th>Success</th><th>Selectors</th><th>Fields</th><th>Hits</th><th>Misses</th><th>Vision</th><th>Last used</th></tr></thead>
<tbody>
`)

	for i, e := range entries {
		badge := "good"
		switch {
		case e.AvgSuccessRate < 50:
			badge = "bad"
		case e.AvgSuccessRate < 80:
			badge = "warn"
		}
		last := "never"
		if e.LastUsed > 0 {
			last = time.UnixMilli(e.LastUsed).UTC().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(&buf, `<tr><td>%d</td><td>%s</td><td><span class="badge %s">%.0f%%</span></td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>
`,
			i+1, html.EscapeString(e.Domain), badge, e.AvgSuccessRate,
			e.Selectors, e.Fields, e.Successes, e.Failures, e.VisionLearned, last)
	}

	fmt.Fprintf(&buf, `</tbody></table>
<div class="generated">Generated %s</div>
</body>
</html>
`, s.now().UTC().Format("2006-01-02 15:04:05 UTC"))

	return buf.Bytes(), nil
}
