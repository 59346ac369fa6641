package webserver

import (
	"bytes"
	"html/template"
	"math"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/contenttype"
)

const htmlFooter = `<address>livefs (Live Preview Server)</address></body></html>`

var htmlTemplates = template.Must(template.New("").Funcs(template.FuncMap{
	"footer": func() template.HTML { return htmlFooter },
}).Parse(`
{{define "404"}}<!DOCTYPE html>
<html><head>
<title>404 Not Found</title>
</head><body>
<h1>Not Found</h1>
<p>The requested URL {{.}} was not found on this server.</p>
<hr>{{footer}}{{end}}

{{define "500"}}<!DOCTYPE html>
<html><head>
<title>500 Internal Server Error</title>
</head><body>
<h1>Internal Server Error</h1>
<p>The server encountered an internal error while attempting to access {{.Path}}.</p>
<p>The error was: {{.Error}}.</p>
<hr>{{footer}}{{end}}

{{define "dir"}}<!DOCTYPE html>
<html><head><title>Index of {{.Path}}</title></head>
<body><h1>Index of {{.Path}}</h1>
<table><tr><th>[ICO]</th>
<th><b>Name</b></th><th><b>Last modified</b></th>
<th><b>Size</b></th><th><b>Description</b></th></tr>
<tr><th colspan='5'><hr></th></tr>
<tr><td valign='top'>[DIR]</td>
<td><a href='{{.Parent}}'>Parent Directory</a></td><td>&nbsp;</td>
<td align='right'>  - </td><td>&nbsp;</td></tr>
{{range .Rows}}<tr><td valign='top'>{{.Alt}}</td><td>
<a href='{{.Href}}'>{{.Name}}</a></td>
<td align='right'>{{.Modified}}</td>
<td align='right'>{{.Size}}</td><td>&nbsp;</td></tr>
{{end}}<tr><th colspan='5'><hr></th></tr></table>{{footer}}{{end}}
`))

type htmlRow struct {
	Alt      string
	Href     string
	Name     string
	Modified string
	Size     string
}

// HTMLFormatter renders Apache-style HTML pages for errors and listings.
type HTMLFormatter struct {
	types *contenttype.Resolver
}

// NewHTMLFormatter creates an HTML formatter resolving content types with
// types (nil means contenttype.Default).
func NewHTMLFormatter(types *contenttype.Resolver) *HTMLFormatter {
	if types == nil {
		types = contenttype.Default()
	}
	return &HTMLFormatter{types: types}
}

func (f *HTMLFormatter) Format404(url string) *Envelope {
	return f.render(http.StatusNotFound, "404", url)
}

func (f *HTMLFormatter) Format500(p string, err error) *Envelope {
	return f.render(http.StatusInternalServerError, "500", struct{ Path, Error string }{p, errorMessage(err)})
}

func (f *HTMLFormatter) FormatDir(route, dirPath string, entries []livefs.FileInfo) *Envelope {
	prefix := "/" + NormalizeRoute(route)
	rows := make([]htmlRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, htmlRow{
			Alt:      f.alt(e),
			Href:     escapePath(prefix + path.Join(dirPath, e.Name)),
			Name:     e.Name,
			Modified: formatDate(e.ModTime),
			Size:     formatSize(e.Size),
		})
	}

	return f.render(http.StatusOK, "dir", struct {
		Path   string
		Parent string
		Rows   []htmlRow
	}{
		Path:   dirPath,
		Parent: escapePath(prefix + path.Dir(dirPath)),
		Rows:   rows,
	})
}

func (f *HTMLFormatter) FormatFile(p string, contents []byte, info *livefs.FileInfo) *Envelope {
	return fileEnvelope(f.types, p, contents, info)
}

func (f *HTMLFormatter) alt(e livefs.FileInfo) string {
	switch {
	case e.IsDir:
		return "[DIR]"
	case f.types.IsImage(e.Name):
		return "[IMG]"
	case f.types.IsMedia(e.Name):
		return "[MOV]"
	default:
		return "[TXT]"
	}
}

func (f *HTMLFormatter) render(status int, name string, data any) *Envelope {
	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return newEnvelope(http.StatusInternalServerError, contenttype.TextPlain, []byte(err.Error()))
	}
	return newEnvelope(status, contenttype.TextHTML, buf.Bytes())
}

// formatDate renders 20-Apr-2004 17:14.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2-Jan-2006 15:04")
}

// formatSize renders 1536 as 2K. Zero sizes (directories) render as "-".
func formatSize(s int64) string {
	if s <= 0 {
		return "-"
	}
	units := []string{"", "K", "M"}
	i := int(math.Floor(math.Log(float64(s)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	return strconv.FormatInt(int64(math.Round(float64(s)/math.Pow(1024, float64(i)))), 10) + units[i]
}

// escapePath percent-encodes p while keeping the separators.
func escapePath(p string) string {
	return (&url.URL{Path: p}).EscapedPath()
}
