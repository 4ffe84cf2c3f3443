package main

import (
	"fmt"
	"io"
	"strings"

	"invoiz/internal/extract"
	"invoiz/internal/model"
)

var separator = strings.Repeat("=", 50)

// printSummary writes a human-readable report of a run.
func printSummary(w io.Writer, recs []model.EmailRecord) {
	fmt.Fprintf(w, "\nProcessed %d email(s)\n", len(recs))
	for i, r := range recs {
		fmt.Fprintf(w, "\nEmail %d:\n", i+1)
		fmt.Fprintf(w, "From: %s\n", r.Header.From)
		fmt.Fprintf(w, "Subject: %s\n", r.Header.Subject)
		fmt.Fprintf(w, "Date: %s\n", r.Header.Date)
		fmt.Fprintf(w, "Folder: %s\n", r.Folder)
		if r.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", r.Error)
		}
		fmt.Fprintf(w, "Text files: %s\n", list(r.TextFiles()))
		fmt.Fprintf(w, "HTML files: %s\n", list(r.HTMLFiles()))

		atts := r.Attachments()
		fmt.Fprintf(w, "Attachments: %d files\n", len(atts))
		if len(atts) > 0 {
			fmt.Fprintln(w, "Attachment details:")
			for _, a := range atts {
				fmt.Fprintf(w, "  - %s (%s)\n", a.Filename, a.Size)
				fmt.Fprintf(w, "    Location: %s\n", a.Path)
			}
		}

		for _, e := range r.Extractions {
			if e.OK() {
				fmt.Fprintf(w, "Extracted from %s: invoice_number=%q vendor_name=%q\n",
					e.Filename, e.Field(extract.FieldInvoiceNumber), e.Field(extract.FieldVendorName))
				continue
			}
			fmt.Fprintf(w, "Could not extract from %s: %s (%s)\n", e.Filename, e.Reason, e.Status)
		}
		fmt.Fprintln(w, separator)
	}
}

func list(paths []string) string {
	if len(paths) == 0 {
		return "none"
	}
	return strings.Join(paths, ", ")
}
