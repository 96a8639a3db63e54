package reporter

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Index Maintenance Report - {{.Summary.Headline}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif;
            background: #f5f7fa;
            color: #333;
            padding: 20px;
            line-height: 1.6;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
        }
        .header {
            background: linear-gradient(135deg, #326ce5 0%, #1a4d8f 100%);
            color: white;
            padding: 30px 40px;
        }
        .header.errors {
            background: linear-gradient(135deg, #d93025 0%, #a50e0e 100%);
        }
        .summary {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(180px, 1fr));
            gap: 20px;
            padding: 30px 40px;
        }
        .summary-card {
            background: #f8f9fa;
            padding: 20px;
            border-radius: 8px;
        }
        .summary-card .value {
            font-size: 2em;
            font-weight: bold;
        }
        .section {
            padding: 20px 40px;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th, td {
            text-align: left;
            padding: 8px 12px;
            border-bottom: 1px solid #e8eaed;
        }
        .status-failed { color: #d93025; font-weight: bold; }
        .status-success { color: #188038; }
        .status-pending { color: #5f6368; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header{{if eq (print .Summary.Headline) "errors encountered"}} errors{{end}}">
            <h1>Index Maintenance: {{.Summary.Headline}}</h1>
            <p><strong>Scope:</strong> {{if .Summary.Scope}}{{.Summary.Scope}}{{else}}current database{{end}}
               {{if .Summary.RunID}}| <strong>Run:</strong> {{.Summary.RunID}}{{end}}</p>
            {{if not .GeneratedAt.IsZero}}<p><strong>Generated:</strong> {{.GeneratedAt.Format "January 2, 2006 15:04:05 MST"}}</p>{{end}}
            {{if .Summary.AnalysisOnly}}<p>Analysis only, no commands were applied</p>{{end}}
        </div>

        <div class="summary">
            <div class="summary-card"><h3>Targets</h3><div class="value">{{.Summary.TargetsProcessed}}</div></div>
            <div class="summary-card"><h3>Structures</h3><div class="value">{{.Summary.StructuresAnalyzed}}</div></div>
            <div class="summary-card"><h3>Rebuilds</h3><div class="value">{{.Summary.RebuildsPerformed}}</div></div>
            <div class="summary-card"><h3>Reorganizes</h3><div class="value">{{.Summary.ReorganizesPerformed}}</div></div>
            <div class="summary-card"><h3>Errors</h3><div class="value">{{.Summary.Errors}}</div></div>
        </div>

        {{if .Summary.UnreachableTargets}}
        <div class="section">
            <h2>Unreachable Targets</h2>
            <table>
                <thead><tr><th>Target</th><th>Reason</th></tr></thead>
                <tbody>
                    {{range .Summary.UnreachableTargets}}
                    <tr><td>{{.Target}}</td><td>{{.Reason}}</td></tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .Entries}}
        <div class="section">
            <h2>Maintenance Entries</h2>
            <table>
                <thead>
                    <tr>
                        <th>Target</th>
                        <th>Index</th>
                        <th>Action</th>
                        <th>Fragmentation</th>
                        <th>Pages</th>
                        <th>Status</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Entries}}
                    <tr>
                        <td>{{.Target}}</td>
                        <td><strong>{{.Schema}}.{{.Object}}.{{.Index}}</strong></td>
                        <td>{{.Action}}</td>
                        <td>{{printf "%.1f" .FragmentationPercent}}%</td>
                        <td>{{.SizeUnits}}</td>
                        <td><span class="status-{{.Status | lower}}">{{.Status}}</span>{{if .Reason}}<br>{{.Reason}}{{end}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}
    </div>
</body>
</html>
`

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"lower": func(s interface{}) string {
		return strings.ToLower(fmt.Sprintf("%v", s))
	},
}).Parse(htmlTemplate))

// GenerateHTML creates an HTML report
func GenerateHTML(report *Report, writer io.Writer) error {
	if err := reportTemplate.Execute(writer, report); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}
