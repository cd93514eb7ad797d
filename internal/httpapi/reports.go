package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"barbershop/backend/internal/domain"
)

type dailyReport struct {
	Stats domain.DailyStats `json:"stats"`
	Sales []domain.Sale     `json:"sales"`
}

func (a *API) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	stats, err := a.service.DailyStats(r.Context(), strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	sales, stats, err := a.service.DailySales(r.Context(), date)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	report := dailyReport{Stats: stats, Sales: sales}

	switch format {
	case "csv":
		body, err := dailyReportToCSV(report)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-report-%s.csv\"", stats.Date))
		_, _ = w.Write(body)
	case "html", "print":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleMonthReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	summary, err := a.service.MonthSummary(r.Context(), strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleTopServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 10, 100)
	top, err := a.service.TopServices(r.Context(), limit)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

func dailyReportToCSV(report dailyReport) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	s := report.Stats
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "date", s.Date},
		{"summary", "sales", fmt.Sprintf("%d", s.Count)},
		{"summary", "total", s.Total.StringFixed(3)},
		{"summary", "owner", s.Owner.StringFixed(3)},
		{"summary", "employee", s.Employee.StringFixed(3)},
		{"summary", "cash", s.Cash.StringFixed(3)},
		{"summary", "benefit", s.Benefit.StringFixed(3)},
		{"summary", "expenses", s.Expenses.StringFixed(3)},
		{"summary", "net", s.Net.StringFixed(3)},
	}
	for _, sale := range report.Sales {
		rows = append(rows, []string{"sale", sale.Time, strings.Join([]string{sale.Role, sale.PaymentMethod, sale.Total.StringFixed(3), sale.Items}, " | ")})
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var reportFuncs = template.FuncMap{
	"bd": func(v decimal.Decimal) string { return v.StringFixed(3) },
}

// Fields are auto-escaped by html/template.
var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Funcs(reportFuncs).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Stats.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Stats.Date}}</h2>
  <p>Sales: {{.Stats.Count}} | Total: {{bd .Stats.Total}} | Expenses: {{bd .Stats.Expenses}} | Net: {{bd .Stats.Net}}</p>
  <p>Owner: {{bd .Stats.Owner}} | Employee: {{bd .Stats.Employee}}</p>
  <p>Cash: {{bd .Stats.Cash}} | Benefit: {{bd .Stats.Benefit}}</p>

  <h3>Sales</h3>
  <table>
    <thead><tr><th>Time</th><th>Staff</th><th>Services</th><th>Payment</th><th>Total</th></tr></thead>
    <tbody>{{range .Sales}}<tr><td>{{.Time}}</td><td>{{.Role}}</td><td>{{.Items}}</td><td>{{.PaymentMethod}}</td><td style="text-align:right;">{{bd .Total}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func dailyReportToPrintableHTML(report dailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
