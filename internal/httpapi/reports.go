package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"kedaipos/backend/internal/domain"
)

const (
	reportSummary   = "summary"
	reportHourly    = "hourly"
	reportPeakHours = "peak-hours"
	reportBranches  = "branches"
	reportVelocity  = "velocity"
)

// reportTable is the flat rendering shared by the CSV and HTML exports.
type reportTable struct {
	Title   string
	Range   string
	Headers []string
	Rows    [][]string
}

func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	switch kind {
	case reportSummary, reportHourly, reportPeakHours, reportBranches, reportVelocity:
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown report %q", kind))
		return
	}

	report, err := a.service.Report(r.Context(), reportQuery(r))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		body, err := reportToCSV(buildReportTable(kind, report))
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s-%s-%s.csv\"", kind, report.StartDate, report.EndDate))
		_, _ = w.Write(body)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(reportToPrintableHTML(buildReportTable(kind, report)))
	default:
		writeJSON(w, http.StatusOK, reportPayload(kind, report))
	}
}

func reportPayload(kind string, report domain.Report) map[string]any {
	payload := map[string]any{
		"period":    report.Period,
		"startDate": report.StartDate,
		"endDate":   report.EndDate,
	}
	if report.BranchID != "" {
		payload["branchId"] = report.BranchID
	}
	switch kind {
	case reportSummary:
		payload["summary"] = report.Summary
	case reportHourly:
		payload["hourly"] = report.Hourly
	case reportPeakHours:
		payload["peakHours"] = report.PeakHours
	case reportBranches:
		payload["branches"] = report.Branches
	case reportVelocity:
		payload["velocity"] = report.Velocity
	}
	return payload
}

func buildReportTable(kind string, report domain.Report) reportTable {
	table := reportTable{Range: report.StartDate + " to " + report.EndDate}
	switch kind {
	case reportSummary:
		s := report.Summary
		table.Title = "Sales Summary"
		table.Headers = []string{"section", "key", "value"}
		table.Rows = [][]string{
			{"summary", "total_sales", strconv.Itoa(s.TotalSales)},
			{"summary", "total_revenue", money(s.TotalRevenue)},
			{"summary", "total_subtotal", money(s.TotalSubtotal)},
			{"summary", "total_tax", money(s.TotalTax)},
			{"summary", "average_sale", money(s.AverageSale)},
			{"summary", "items_sold", strconv.Itoa(s.ItemsSold)},
			{"summary", "unique_products", strconv.Itoa(s.UniqueProducts)},
			{"summary", "total_cost", money(s.TotalCost)},
			{"summary", "gross_profit", money(s.GrossProfit)},
		}
		for _, p := range s.ByPayment {
			table.Rows = append(table.Rows,
				[]string{"payment", string(p.Method) + "_count", strconv.Itoa(p.Count)},
				[]string{"payment", string(p.Method) + "_total", money(p.Total)})
		}
		for i, p := range s.TopProducts {
			table.Rows = append(table.Rows,
				[]string{"top_product", strconv.Itoa(i+1), fmt.Sprintf("%s x%d %s", p.ProductName, p.Quantity, money(p.Revenue))})
		}
	case reportHourly, reportPeakHours:
		slots := report.Hourly
		table.Title = "Hourly Sales"
		if kind == reportPeakHours {
			slots = report.PeakHours
			table.Title = "Peak Hours"
		}
		table.Headers = []string{"hour", "label", "count", "revenue"}
		for _, slot := range slots {
			table.Rows = append(table.Rows, []string{strconv.Itoa(slot.Hour), slot.Label, strconv.Itoa(slot.Count), money(slot.Revenue)})
		}
	case reportBranches:
		table.Title = "Sales by Branch"
		table.Headers = []string{"branch_id", "branch_name", "count", "revenue"}
		for _, b := range report.Branches {
			table.Rows = append(table.Rows, []string{b.BranchID, b.BranchName, strconv.Itoa(b.Count), money(b.Revenue)})
		}
	case reportVelocity:
		table.Title = "Product Velocity"
		table.Headers = []string{"product_id", "product_name", "units_sold", "revenue", "units_per_day"}
		for _, v := range report.Velocity {
			table.Rows = append(table.Rows, []string{v.ProductID, v.ProductName, strconv.Itoa(v.UnitsSold), money(v.Revenue), v.UnitsPerDay.StringFixed(2)})
		}
	}
	return table
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func reportToCSV(table reportTable) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(table.Headers); err != nil {
		return nil, err
	}
	if err := writer.WriteAll(table.Rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// html/template escapes product and branch names.
var reportHTMLTmpl = template.Must(template.New("report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>{{.Title}} {{.Range}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>{{.Title}}</h2>
  <p>{{.Range}}</p>
  <table>
    <thead><tr>{{range .Headers}}<th>{{.}}</th>{{end}}</tr></thead>
    <tbody>{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func reportToPrintableHTML(table reportTable) []byte {
	var buf bytes.Buffer
	if err := reportHTMLTmpl.Execute(&buf, table); err != nil {
		return []byte("<!doctype html><html><body><p>Report rendering error.</p></body></html>")
	}
	return buf.Bytes()
}
