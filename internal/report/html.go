package report

import (
	"html/template"
	"io"
	"strings"

	"github.com/signalnine/tracesift/internal/pipeline"
)

var htmlTemplate = template.Must(template.New("leaderboard").Funcs(template.FuncMap{
	"join": strings.Join,
	"count": func(counts map[pipeline.DatasetType]int, t string) int {
		return counts[pipeline.DatasetType(t)]
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Agent Trace Analysis</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; vertical-align: top; text-align: left; }
tr.FAIL { background: #fdecea; }
pre { max-height: 200px; overflow-y: auto; background: #f4f4f4; padding: 5px; margin: 0; }
</style>
</head>
<body>
<h1>Trace Leaderboard</h1>
<p>Total {{.Total}} &middot; SFT {{count .Counts "SFT"}} &middot; RLHF {{count .Counts "RLHF"}} &middot; REJECTED {{count .Counts "REJECTED"}} &middot; mean score {{printf "%.2f" .MeanScore}}</p>
<table>
<thead><tr><th>ID</th><th>Score</th><th>Type</th><th>Status</th><th>Summary</th><th>Reasons</th><th>Full Trace</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr class="{{.Status}}"><td>{{.ID}}</td><td>{{printf "%.2f" .Score}}</td><td>{{.Type}}</td><td>{{.Status}}</td><td>{{.Summary}}</td><td>{{join .Reasons "; "}}</td><td><pre>{{.FullTrace}}</pre></td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

func writeHTML(lb Leaderboard, w io.Writer) error {
	return htmlTemplate.Execute(w, lb)
}
