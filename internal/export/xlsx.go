// Package export writes processed invoices to spreadsheet reports.
package export

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/invoice-cli/internal/store"
)

var summaryHeader = []string{
	"Invoice Number", "Vendor", "Buyer", "Invoice Date", "Due Date",
	"Currency", "Subtotal", "Tax", "Total", "Quality Score", "Validation Score",
	"Valid", "Status", "Saved At",
}

// WriteXLSX writes one summary row per invoice to an XLSX workbook at path.
func WriteXLSX(path string, invoices []store.Invoice) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Invoices")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range summaryHeader {
		header.AddCell().SetString(h)
	}

	for _, inv := range invoices {
		addInvoiceRow(sheet, inv)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addInvoiceRow(sheet *xlsx.Sheet, inv store.Invoice) {
	row := sheet.AddRow()
	rec := inv.Record

	row.AddCell().SetString(strOrEmpty(rec.InvoiceNumber))
	row.AddCell().SetString(strOrEmpty(rec.VendorName))
	row.AddCell().SetString(strOrEmpty(rec.BuyerName))
	row.AddCell().SetString(strOrEmpty(rec.InvoiceDate))
	row.AddCell().SetString(strOrEmpty(rec.DueDate))
	row.AddCell().SetString(strOrEmpty(rec.Currency))
	addAmountCell(row, rec.Subtotal)
	addAmountCell(row, rec.TaxAmount)
	addAmountCell(row, rec.TotalAmount)
	row.AddCell().SetFloatWithFormat(inv.QualityScore, "0.0")
	row.AddCell().SetInt(inv.Score)
	row.AddCell().SetBool(inv.IsValid)
	row.AddCell().SetString(statusFor(inv))
	row.AddCell().SetString(inv.CreatedAt.Format("2006-01-02 15:04"))
}

func addAmountCell(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v == nil {
		return
	}
	cell.SetFloatWithFormat(*v, "0.00")
}

// statusFor reports the verification status when present, the validation
// outcome otherwise.
func statusFor(inv store.Invoice) string {
	if inv.Verification != nil {
		return inv.Verification.Status
	}
	if inv.Validation == nil {
		return "Unprocessed"
	}
	if inv.Validation.IsValid {
		return "Valid"
	}
	return fmt.Sprintf("Invalid (%d errors)", len(inv.Validation.Errors))
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
