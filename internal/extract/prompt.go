package extract

import "fmt"

// Field names the model is asked to return.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldVendorName    = "vendor_name"
)

const promptTemplate = `You are an intelligent document parser. Given the OCR text of an invoice, extract the following details:

1. **Invoice Number:** Identify the invoice number, which may be labeled as "Invoice No", "Invoice Number", "Inv No", or similar variations. It usually contains a combination of letters, numbers, and sometimes hyphens (e.g., INV-2023-4567).

2. **Vendor Name:** Identify the name of the vendor or supplier. This is typically labeled as "Vendor", "Supplier", "From", or appears prominently at the top of the invoice.

Provide the extracted information in the following JSON format:
` + "```json" + `
{
  "%s": "extracted_invoice_number",
  "%s": "extracted_vendor_name"
}
` + "```" + `

The OCR text of the invoice is:
%s
`

// BuildPrompt embeds the field specification, the target JSON shape and the
// document text, verbatim, into one request.
func BuildPrompt(text string) string {
	return fmt.Sprintf(promptTemplate, FieldInvoiceNumber, FieldVendorName, text)
}
