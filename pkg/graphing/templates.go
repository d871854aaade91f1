package graphing

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/dustin/go-humanize"
)

type summaryPage struct {
	Title     string
	Processes []ProcessSummary
}

var templateFuncs = template.FuncMap{
	"formatBytes":   humanize.IBytes,
	"formatPercent": func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"formatSeconds": func(v float64) string { return fmt.Sprintf("%.2f s", v) },
}

// HTML fragments injected around the rendered charts
var templates = template.Must(template.New("").Funcs(templateFuncs).Parse(`
{{define "summary"}}
<div class="summary-container">
    <div class="summary-header">
        <h1>{{.Title}}</h1>
    </div>
    <div class="info-section">
        <h3>Processes ({{len .Processes}})</h3>
        <table class="info-table">
            <tr><th>PID</th><th>Parent</th><th>Samples</th><th>Observed</th><th>Mean CPU</th><th>Peak CPU</th><th>Peak RSS</th></tr>
            {{range .Processes}}
            <tr>
                <td>{{.PID}}</td>
                <td>{{.PPID}}</td>
                <td>{{.Samples}}</td>
                <td>{{.Duration | formatSeconds}}</td>
                <td>{{.MeanPercent | formatPercent}}</td>
                <td>{{.PeakPercent | formatPercent}}</td>
                <td>{{.PeakRSS | formatBytes}}</td>
            </tr>
            {{end}}
        </table>
    </div>
</div>
{{end}}

{{define "styles"}}
<style>
* {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Arial, sans-serif;
}
body {
    max-width: 1400px;
    margin: 0 auto;
    padding: 20px;
}
.summary-header {
    border-bottom: 2px solid #333;
    padding-bottom: 10px;
    margin-bottom: 15px;
}
.summary-header h1 {
    margin: 0;
    font-size: 18px;
}
.info-section {
    margin-bottom: 15px;
    padding: 15px;
    background: #f5f5f5;
    border: 1px solid #ddd;
}
.info-section h3 {
    margin: 0 0 10px 0;
    font-size: 13px;
}
.info-table {
    width: 100%;
    border-collapse: collapse;
    font-size: 12px;
}
.info-table th {
    text-align: left;
    color: #666;
    padding: 3px 8px;
}
.info-table td {
    padding: 3px 8px;
    border-bottom: 1px solid #eee;
    font-family: monospace;
}
.info-table tr:last-child td {
    border-bottom: none;
}
.container {
    display: block !important;
    margin: 0 0 10px 0 !important;
    padding: 15px !important;
    background: #f5f5f5 !important;
    border: 1px solid #ddd !important;
    overflow: hidden !important;
}
.item {
    margin: 0 !important;
}
</style>
{{end}}

{{define "scripts"}}
<script>
window.addEventListener('resize', function() {
    document.querySelectorAll('[_echarts_instance_]').forEach(function(el) {
        var c = echarts.getInstanceByDom(el);
        if (c) c.resize();
    });
});
</script>
{{end}}
`))

func renderSummaryHTML(title string, procs []ProcessSummary) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "summary", summaryPage{Title: title, Processes: procs}); err != nil {
		return "", fmt.Errorf("failed to execute summary template: %w", err)
	}
	return buf.String(), nil
}

// renderStylesAndScripts returns the CSS and JavaScript as a string.
func renderStylesAndScripts() (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "styles", nil); err != nil {
		return "", err
	}
	if err := templates.ExecuteTemplate(&buf, "scripts", nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}
