package tui

import (
	"fmt"
	"strings"
	"time"

	"invoiz/internal/model"
	"invoiz/internal/util"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

// recordItem wraps EmailRecord for the list display.
type recordItem struct {
	model.EmailRecord
}

func (r recordItem) FilterValue() string {
	parts := []string{r.Header.Subject, r.Header.From}
	for _, e := range r.Extractions {
		parts = append(parts, e.Field("invoice_number"), e.Field("vendor_name"))
	}
	return strings.Join(parts, " ")
}

func (r recordItem) Title() string {
	indicator := "  "
	switch {
	case r.Error != "":
		indicator = "! "
	case extractedCount(r.EmailRecord) > 0:
		indicator = "$ "
	}
	subject := r.Header.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	return indicator + subject
}

func (r recordItem) Description() string {
	from := util.ParseSender(r.Header.From).String()
	desc := fmt.Sprintf("From: %s", from)
	if d := trimDate(util.DateRFC3339(r.Header.Date)); d != "" {
		desc += "  Date: " + d
	}
	if n := len(r.Attachments()); n > 0 {
		desc += fmt.Sprintf("  %d attachment(s), %d extracted", n, extractedCount(r.EmailRecord))
	}
	return desc
}

func extractedCount(r model.EmailRecord) int {
	n := 0
	for _, e := range r.Extractions {
		if e.OK() {
			n++
		}
	}
	return n
}

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

func recordsFooter() string {
	return footerStyle.Render("enter: details  o: open folder  g: open in gmail  /: filter  q: quit  $=fields extracted  !=failed")
}

func recordsToItems(recs []model.EmailRecord) []list.Item {
	items := make([]list.Item, len(recs))
	for i, r := range recs {
		items[i] = recordItem{r}
	}
	return items
}

// trimDate converts an RFC3339 timestamp to a short date string.
func trimDate(rfc3339 string) string {
	if rfc3339 == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
		return t.Format("Jan 2, 2006")
	}
	return rfc3339
}
