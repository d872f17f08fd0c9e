package output

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

// reportTemplate renders a static allocation report
var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"kg":   formatKg,
	"date": formatDate,
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Allocation report {{.Result.RunID}}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 2em; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
.allocated { background: #e6f4ea; }
.partial { background: #fff4e5; }
.unallocated { background: #fdecea; }
</style>
</head>
<body>
<h1>Allocation report</h1>
<p>Run {{.Result.RunID}} generated {{.GeneratedAt}}{{if .Result.RolledBack}} <strong>(rolled back)</strong>{{end}}</p>
<p>Allocated {{kg .Result.Summary.TotalAllocatedKg}} kg, shortfall {{kg .Result.Summary.ShortfallKg}} kg</p>

<h2>Order status</h2>
<table>
<tr><th>Sales document</th><th>Item</th><th>Status</th><th>Required kg</th><th>Allocated kg</th><th>Details</th></tr>
{{range .Orders}}<tr class="{{.Status}}"><td>{{.SalesDocument}}</td><td>{{.SalesDocumentItem}}</td><td>{{.Status}}</td><td>{{kg .RequiredKg}}</td><td>{{kg .AllocatedKg}}</td><td>{{.DisplayText}}</td></tr>
{{end}}</table>

<h2>Allocations</h2>
<table>
<tr><th>Customer</th><th>Sales document</th><th>Loading date</th><th>Batch</th><th>Quantity kg</th><th>Quality</th><th>Age</th><th>Origin</th><th>Supplier</th></tr>
{{range .Export}}<tr><td>{{.CustomerID}}</td><td>{{.SalesDocument}}/{{.SalesDocumentItem}}</td><td>{{date .LoadingDate}}</td><td>{{.BatchNumber}}</td><td>{{kg .QuantityKg}}</td><td>{{.QualityGrade}}</td><td>{{.AgeDays}}</td><td>{{.OriginCountry}}</td><td>{{.Supplier}}</td></tr>
{{end}}</table>
{{if .Result.Warnings}}
<h2>Warnings</h2>
<ul>{{range .Result.Warnings}}<li>{{.}}</li>{{end}}</ul>
{{end}}{{if .Result.Errors}}
<h2>Errors</h2>
<ul>{{range .Result.Errors}}<li>{{.}}</li>{{end}}</ul>
{{end}}
</body>
</html>
`))

func formatKg(v decimal.Decimal) string {
	return v.StringFixed(3)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

type htmlData struct {
	*Report
	GeneratedAt string
}

// writeHTML renders the report as a standalone HTML page
func writeHTML(w io.Writer, report *Report) error {
	data := htmlData{
		Report:      report,
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
	}
	if err := reportTemplate.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}
