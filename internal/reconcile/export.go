package reconcile

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"deleonpos/backend/internal/money"
)

func ToCSV(s Summary) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", csvField(s.DateKey)),
		fmt.Sprintf("summary,tenant_id,%s", csvField(s.TenantID)),
		fmt.Sprintf("summary,register_id,%s", csvField(s.RegisterID)),
		fmt.Sprintf("summary,orders,%d", s.OrderCount),
		fmt.Sprintf("summary,grand_total,%s", money.FormatFixed(s.GrandTotal)),
		fmt.Sprintf("cash,opening_float,%s", money.FormatFixed(s.OpeningFloat)),
		fmt.Sprintf("cash,added_cash,%s", money.FormatFixed(s.AddedCash)),
		fmt.Sprintf("cash,menudo,%s", money.FormatFixed(s.Menudo)),
		fmt.Sprintf("cash,total_with_float,%s", money.FormatFixed(s.TotalWithFloat)),
		fmt.Sprintf("cash,cash_in_register,%s", money.FormatFixed(s.CashInRegister)),
	}
	if s.Counted != nil && s.Variance != nil {
		lines = append(lines, fmt.Sprintf("cash,counted,%s", money.FormatFixed(*s.Counted)))
		lines = append(lines, fmt.Sprintf("cash,variance,%s", money.FormatFixed(*s.Variance)))
	}
	lines = append(lines, fmt.Sprintf("cash,variance_status,%s", s.VarianceStatus))
	for _, b := range s.Buckets {
		lines = append(lines, fmt.Sprintf("bucket,%s_orders,%d", b.Bucket, b.Count))
		lines = append(lines, fmt.Sprintf("bucket,%s_total,%s", b.Bucket, money.FormatFixed(b.Total)))
	}
	lines = append(lines, fmt.Sprintf("report,waste_cost,%s", money.FormatFixed(s.WasteCost)))
	lines = append(lines, fmt.Sprintf("report,net_sales,%s", money.FormatFixed(s.NetSales)))
	return strings.Join(lines, "\n") + "\n"
}

// csvField quotes values that would otherwise break the row.
func csvField(v string) string {
	if strings.ContainsAny(v, ",\"\n\r") {
		return `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
	}
	return v
}

type printableSummary struct {
	Summary
	Rows      []printableBucket
	Grand     string
	Opening   string
	Added     string
	Menudo    string
	WithFloat string
	InDrawer  string
	Counted   string
	Variance  string
	Waste     string
	Net       string
}

type printableBucket struct {
	Label string
	Count int
	Total string
}

var summaryHTMLTmpl = template.Must(template.New("cash-summary").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Cuadre de caja {{.DateKey}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Cuadre de caja {{.DateKey}}</h2>
  <p>Caja: {{.RegisterID}} | Ordenes: {{.OrderCount}}</p>

  <h3>Ventas por forma de pago</h3>
  <table>
    <thead><tr><th>Forma de pago</th><th>Ordenes</th><th>Total</th></tr></thead>
    <tbody>{{range .Rows}}<tr><td>{{.Label}}</td><td class="num">{{.Count}}</td><td class="num">{{.Total}}</td></tr>{{end}}</tbody>
    <tfoot><tr><th>Total ventas</th><th></th><th class="num">{{.Grand}}</th></tr></tfoot>
  </table>

  <h3>Efectivo</h3>
  <table>
    <tbody>
      <tr><td>Fondo inicial</td><td class="num">{{.Opening}}</td></tr>
      <tr><td>Efectivo agregado</td><td class="num">{{.Added}}</td></tr>
      <tr><td>Menudo</td><td class="num">{{.Menudo}}</td></tr>
      <tr><td>Total con fondo</td><td class="num">{{.WithFloat}}</td></tr>
      <tr><td>Efectivo en caja</td><td class="num">{{.InDrawer}}</td></tr>
      {{if .Counted}}<tr><td>Contado</td><td class="num">{{.Counted}}</td></tr>
      <tr><td>Diferencia ({{.VarianceStatus}})</td><td class="num">{{.Variance}}</td></tr>{{end}}
    </tbody>
  </table>

  <h3>Reporte</h3>
  <p>Merma: {{.Waste}} | Venta neta: {{.Net}}</p>
</body>
</html>
`))

func ToPrintableHTML(s Summary) string {
	view := printableSummary{
		Summary:   s,
		Grand:     money.Format(s.GrandTotal),
		Opening:   money.Format(s.OpeningFloat),
		Added:     money.Format(s.AddedCash),
		Menudo:    money.Format(s.Menudo),
		WithFloat: money.Format(s.TotalWithFloat),
		InDrawer:  money.Format(s.CashInRegister),
		Waste:     money.Format(s.WasteCost),
		Net:       money.Format(s.NetSales),
	}
	if s.Counted != nil && s.Variance != nil {
		view.Counted = money.Format(*s.Counted)
		view.Variance = money.Format(*s.Variance)
	}
	for _, b := range s.Buckets {
		view.Rows = append(view.Rows, printableBucket{Label: b.Label, Count: b.Count, Total: money.Format(b.Total)})
	}
	var buf bytes.Buffer
	if err := summaryHTMLTmpl.Execute(&buf, view); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
