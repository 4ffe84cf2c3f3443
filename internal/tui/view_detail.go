package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"invoiz/internal/model"
	"invoiz/internal/util"

	"github.com/charmbracelet/lipgloss"
)

// maxTextPreview caps how much of each content file is shown.
const maxTextPreview = 8 << 10

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")).
	PaddingBottom(1)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func detailHeader(r model.EmailRecord) string {
	date := trimDate(util.DateRFC3339(r.Header.Date))
	if date == "" {
		date = r.Header.Date
	}
	return headerStyle.Render(fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\nFolder: %s",
		r.Header.From, r.Header.Subject, date, r.Folder))
}

// renderDetail lays out one record: header, text content, markup files,
// attachments and whatever was extracted from them.
func renderDetail(r model.EmailRecord) string {
	var b strings.Builder
	b.WriteString(detailHeader(r))
	b.WriteString("\n\n")

	if r.Error != "" {
		b.WriteString(failStyle.Render("Processing stopped: " + r.Error))
		b.WriteString("\n\n")
	}

	b.WriteString(sectionStyle.Render("Text content"))
	b.WriteString("\n")
	texts := r.TextFiles()
	if len(texts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, p := range texts {
		b.WriteString(readPreview(p))
		b.WriteString("\n")
	}

	if html := r.HTMLFiles(); len(html) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("HTML files"))
		b.WriteString("\n")
		for _, p := range html {
			fmt.Fprintf(&b, "  %s\n", filepath.Base(p))
		}
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Attachments"))
	b.WriteString("\n")
	atts := r.Attachments()
	if len(atts) == 0 {
		b.WriteString("(none)\n")
	}
	for _, a := range atts {
		fmt.Fprintf(&b, "  %s  %s\n", a.Filename, a.Size)
	}

	if len(r.Extractions) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Extracted fields"))
		b.WriteString("\n")
		for _, e := range r.Extractions {
			b.WriteString(renderExtraction(e))
		}
	}
	return b.String()
}

func renderExtraction(e model.ExtractionResult) string {
	var b strings.Builder
	if !e.OK() {
		fmt.Fprintf(&b, "  %s  %s\n", e.Filename, failStyle.Render(fmt.Sprintf("[%s] %s", e.Status, e.Reason)))
		return b.String()
	}
	fmt.Fprintf(&b, "  %s  %s\n", e.Filename, okStyle.Render("[ok]"))
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "    %s: %s\n", k, e.Field(k))
	}
	return b.String()
}

func readPreview(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return failStyle.Render(fmt.Sprintf("cannot read %s: %v", filepath.Base(path), err))
	}
	text := strings.TrimSpace(string(data))
	if len(text) > maxTextPreview {
		text = text[:maxTextPreview] + "\n…"
	}
	return text
}

func detailFooter() string {
	return footerStyle.Render("o: open folder  g: open in gmail  esc: back  q: quit")
}
