package report

// htmlTemplate renders ReportData. It has no external assets so the file
// can be archived or attached to a ticket as is.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Name}} - Xray Performance Report</title>
<style>
  :root {
    --bg: #f8fafc; --card: #ffffff; --text: #1e293b; --muted: #64748b;
    --border: #e2e8f0; --accent: #3b82f6; --pass: #22c55e; --warn: #f59e0b; --fail: #ef4444;
  }
  @media (prefers-color-scheme: dark) {
    :root { --bg: #0f172a; --card: #1e293b; --text: #f1f5f9; --muted: #94a3b8; --border: #334155; }
  }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: var(--bg); color: var(--text); line-height: 1.5; }
  .container { max-width: 1280px; margin: 0 auto; padding: 2rem; }
  header { display: flex; justify-content: space-between; align-items: flex-start; margin-bottom: 2rem; }
  h1 { font-size: 1.75rem; }
  h2 { font-size: 1.15rem; margin: 2rem 0 1rem; }
  .meta { color: var(--muted); font-size: 0.9rem; }
  .meta span { margin-right: 1.25rem; }
  .status { padding: 0.5rem 1.25rem; border-radius: 999px; font-weight: 700; color: #fff; }
  .status.pass { background: var(--pass); }
  .status.fail { background: var(--fail); }
  .status.warn { background: var(--warn); }
  .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(180px, 1fr)); gap: 1rem; }
  .card { background: var(--card); border: 1px solid var(--border); border-radius: 0.75rem; padding: 1rem 1.25rem; }
  .card .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.04em; }
  .card .value { font-size: 1.6rem; font-weight: 700; }
  .card .unit { font-size: 0.9rem; color: var(--muted); margin-left: 0.25rem; }
  .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(480px, 1fr)); gap: 1rem; }
  .chart svg { width: 100%; height: 160px; }
  .chart polyline { fill: none; stroke: var(--accent); stroke-width: 2; }
  .chart .axis { stroke: var(--border); }
  table { width: 100%; border-collapse: collapse; background: var(--card); border: 1px solid var(--border); border-radius: 0.75rem; overflow: hidden; }
  th, td { padding: 0.6rem 0.9rem; text-align: right; border-bottom: 1px solid var(--border); font-size: 0.9rem; }
  th { color: var(--muted); font-weight: 600; background: var(--bg); }
  th:first-child, td:first-child { text-align: left; }
  td.pass { color: var(--pass); } td.warn { color: var(--warn); } td.fail { color: var(--fail); }
  .codes { color: var(--muted); font-size: 0.8rem; }
  .errors { list-style: none; }
  .errors li { background: var(--card); border: 1px solid var(--border); border-left: 4px solid var(--fail); border-radius: 0.5rem; padding: 0.6rem 0.9rem; margin-bottom: 0.5rem; font-family: ui-monospace, monospace; font-size: 0.85rem; word-break: break-all; }
  .errors .count { font-weight: 700; margin-right: 0.75rem; }
  .threshold { display: flex; gap: 1rem; align-items: center; padding: 0.6rem 0.9rem; background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; margin-bottom: 0.5rem; }
  .threshold .icon.pass { color: var(--pass); } .threshold .icon.fail { color: var(--fail); }
  .alert { margin-top: 1rem; padding: 0.75rem 1rem; border-radius: 0.5rem; background: var(--card); border: 1px solid var(--warn); }
  footer { margin-top: 3rem; color: var(--muted); font-size: 0.8rem; text-align: center; }
</style>
</head>
<body>
<div class="container">
  <header>
    <div>
      <h1>{{.Name}}</h1>
      <div class="meta">
        <span>Target: {{default "-" .Target}}</span>
        <span>Executor: {{.Executor | upper}}</span>
        <span>Started: {{dateInZone "2006-01-02 15:04:05" .StartTime "UTC"}} UTC</span>
        <span>Duration: {{formatDuration .Duration}}</span>
        <span title="{{.RunID}}">Run: {{trunc 8 .RunID}}</span>
      </div>
    </div>
    <div class="status {{if .Interrupted}}warn{{else if not .Passed}}fail{{else}}pass{{end}}">
      {{if .Interrupted}}⚠ INTERRUPTED{{else if not .Passed}}✗ FAILED{{else}}✓ PASSED{{end}}
    </div>
  </header>

  {{with .Metrics}}
  <div class="cards">
    <div class="card"><div class="label">Requests</div><div class="value">{{formatNumber .TotalRequests}}</div></div>
    <div class="card"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .RPS}}<span class="unit">req/s</span></div></div>
    <div class="card"><div class="label">Success rate</div><div class="value">{{printf "%.2f" (successRate .)}}<span class="unit">%</span></div></div>
    <div class="card"><div class="label">Failures</div><div class="value">{{formatNumber .FailedRequests}}</div></div>
    <div class="card"><div class="label">P95 latency</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
    <div class="card"><div class="label">Data received</div><div class="value">{{formatBytes .TotalBytes}}</div></div>
  </div>

  <h2>Latency</h2>
  <div class="cards">
    <div class="card"><div class="label">Min</div><div class="value">{{formatLatency .Latency.Min}}</div></div>
    <div class="card"><div class="label">Mean</div><div class="value">{{formatLatency .Latency.Mean}}</div></div>
    <div class="card"><div class="label">P50</div><div class="value">{{formatLatency .Latency.P50}}</div></div>
    <div class="card"><div class="label">P90</div><div class="value">{{formatLatency .Latency.P90}}</div></div>
    <div class="card"><div class="label">P95</div><div class="value">{{formatLatency .Latency.P95}}</div></div>
    <div class="card"><div class="label">P99</div><div class="value">{{formatLatency .Latency.P99}}</div></div>
    <div class="card"><div class="label">Max</div><div class="value">{{formatLatency .Latency.Max}}</div></div>
  </div>
  {{end}}

  {{if .Throughput.Max}}
  <h2>Throughput per interval</h2>
  <div class="cards">
    <div class="card"><div class="label">Mean</div><div class="value">{{printf "%.1f" .Throughput.Mean}}<span class="unit">req/s</span></div></div>
    <div class="card"><div class="label">Median</div><div class="value">{{printf "%.1f" .Throughput.Median}}<span class="unit">req/s</span></div></div>
    <div class="card"><div class="label">Std dev</div><div class="value">{{printf "%.1f" .Throughput.StdDev}}</div></div>
    <div class="card"><div class="label">P95</div><div class="value">{{printf "%.1f" .Throughput.P95}}<span class="unit">req/s</span></div></div>
    <div class="card"><div class="label">Peak</div><div class="value">{{printf "%.1f" .Throughput.Max}}<span class="unit">req/s</span></div></div>
  </div>
  {{end}}

  {{with .ExecutorStats}}{{if .Dropped}}
  <div class="alert">⚠ {{formatNumber .Dropped}} iterations were dropped because every VU was busy. Raise max_vus to sustain {{printf "%.1f" .Rate}}/s.</div>
  {{end}}{{end}}

  {{if .Charts}}
  <h2>Over time</h2>
  <div class="charts">
    {{range .Charts}}
    <div class="card chart">
      <div class="label">{{.Title}} <span class="unit">peak {{printf "%.1f" .Max}} {{.Unit}}</span></div>
      <svg viewBox="0 0 {{.Width}} {{.Height}}" preserveAspectRatio="none" role="img" aria-label="{{.Title}}">
        <line class="axis" x1="0" y1="{{.Height}}" x2="{{.Width}}" y2="{{.Height}}"></line>
        <polyline points="{{.Points}}"></polyline>
      </svg>
    </div>
    {{end}}
  </div>
  {{end}}

  {{if .Templates}}
  <h2>Templates</h2>
  <table>
    <thead>
      <tr><th>Template</th><th>Requests</th><th>Failures</th><th>Error rate</th><th>P50</th><th>P95</th><th>P99</th><th>Max</th><th>Status codes</th></tr>
    </thead>
    <tbody>
      {{range .Templates}}
      <tr>
        <td>{{.Name}}</td>
        <td>{{formatNumber .Requests}}</td>
        <td>{{formatNumber .Failures}}</td>
        <td class="{{rateClass .ErrorRate}}">{{percent .ErrorRate}}</td>
        <td>{{formatLatency .Latency.P50}}</td>
        <td>{{formatLatency .Latency.P95}}</td>
        <td>{{formatLatency .Latency.P99}}</td>
        <td>{{formatLatency .Latency.Max}}</td>
        <td class="codes">{{join ", " (statusCodes .StatusCodes)}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>

  {{range .Templates}}{{if .Errors}}
  <h2>{{.Name}}: top failures</h2>
  <ul class="errors">
    {{range topErrors 5 .Errors}}
    <li><span class="count">{{formatNumber .Count}}×</span>{{trunc 500 .Detail}}</li>
    {{end}}
  </ul>
  {{end}}{{end}}
  {{end}}

  {{if .Thresholds}}
  <h2>Thresholds</h2>
  {{range .Thresholds}}
  <div class="threshold">
    <span class="icon {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}✓{{else}}✗{{end}}</span>
    <strong>{{.Metric}}</strong>
    <code>{{.Expression}}</code>
    <span>actual: {{.Value}}</span>
    {{if and (not .Passed) .Message}}<span class="meta">{{.Message}}</span>{{end}}
  </div>
  {{end}}
  {{end}}

  {{if .Error}}
  <div class="alert">Run error: {{.Error}}</div>
  {{end}}

  <footer>Generated by xrayperf · {{dateInZone "2006-01-02 15:04:05" .EndTime "UTC"}} UTC</footer>
</div>
</body>
</html>
`
