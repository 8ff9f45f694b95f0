package views

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"time"
)

// TimeLayout is how reading timestamps are shown on the dashboard (UTC).
const TimeLayout = "2006-01-02 15:04:05"

var dashboardTmpl *template.Template

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string { return t.UTC().Format(TimeLayout) },
	"fixed1":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
	"fixed2":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
}

// loadTemplatesFromFS loads dashboard templates from the given fs and dir.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	dashboardTmpl = tmpl
	return nil
}

// LoadTemplates loads embedded dashboard templates. Call during startup before
// serving requests; if it returns an error, do not start the server.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

// ReadingRow is one reading as shown on the dashboard.
type ReadingRow struct {
	Timestamp   time.Time
	Temperature float64
	Pressure    float64
	Humidity    float64
}

type DashboardData struct {
	Latest         *ReadingRow
	Count          int
	Recent         []ReadingRow // newest first
	RefreshSeconds int
}

func RenderDashboard(w io.Writer, data *DashboardData) error {
	if dashboardTmpl == nil {
		return errors.New("dashboard template not loaded: call views.LoadTemplates during startup")
	}
	return dashboardTmpl.ExecuteTemplate(w, "dashboard.html", data)
}
