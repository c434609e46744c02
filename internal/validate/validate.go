// Package validate is a stateless rule engine over one invoice record. Four
// independent passes append to shared error/warning/score accumulators; the
// score starts at 100 and is floored at 0 once, at output time, so each
// pass's deductions stay well-defined regardless of ordering.
package validate

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Penalty constants, exact per the scoring contract.
const (
	penaltyMissingRequired  = 15
	penaltyMissingImportant = 5
	penaltyShortNumber      = 10
	penaltyBadDate          = 10
	penaltyNegativeTotal    = 15
	penaltyZeroTotal        = 5
	penaltyOddCurrency      = 3
	penaltyDueBeforeInvoice = 15
	penaltyLongTerm         = 5
	penaltyAmountMismatch   = 20
	penaltyLineItemSum      = 5
	penaltyHighAmount       = 3
	penaltyVeryHighAmount   = 10
	penaltyIdenticalParties = 5
	penaltyFutureDate       = 5
	penaltyStaleDate        = 3
)

const (
	amountTolerance = 0.01
	highAmount      = 1_000_000
	veryHighAmount  = 10_000_000
	maxTermDays     = 365
	maxFutureDays   = 30
	maxAgeDays      = 730
)

// commonCurrencies is the whitelist; anything else draws a warning even when
// it is a real ISO code.
var commonCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "INR": true,
	"CAD": true, "AUD": true, "JPY": true,
}

var requiredLabels = map[string]string{
	model.FieldInvoiceNumber: "Invoice Number",
	model.FieldVendorName:    "Vendor Name",
	model.FieldTotalAmount:   "Total Amount",
	model.FieldInvoiceDate:   "Invoice Date",
}

var importantFields = []struct{ field, label string }{
	{model.FieldBuyerName, "Buyer Name"},
	{model.FieldCurrency, "Currency"},
	{model.FieldDueDate, "Due Date"},
}

type run struct {
	errors   []string
	warnings []string
	score    int
}

func (r *run) fail(penalty int, format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
	r.score -= penalty
}

func (r *run) warn(penalty int, format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
	r.score -= penalty
}

// Validate runs all four passes against the record. now anchors the
// future/stale date checks so results are reproducible in tests.
func Validate(record *model.InvoiceRecord, now time.Time) model.ValidationResult {
	r := &run{score: 100}

	r.checkCompleteness(record)
	r.checkFormats(record)
	r.checkBusinessLogic(record)
	r.checkAnomalies(record, now)

	score := r.score
	if score < 0 {
		score = 0
	}

	result := model.ValidationResult{
		IsValid:  len(r.errors) == 0,
		Score:    score,
		Errors:   r.errors,
		Warnings: r.warnings,
		Record:   record,
	}
	if record.InvoiceNumber != nil {
		result.InvoiceNumber = *record.InvoiceNumber
	}
	return result
}

func (r *run) checkCompleteness(record *model.InvoiceRecord) {
	for _, field := range model.RequiredFields {
		if !model.HasValue(record.Field(field)) {
			r.fail(penaltyMissingRequired, "Missing required field: %s", requiredLabels[field])
		}
	}
	for _, f := range importantFields {
		if !model.HasValue(record.Field(f.field)) {
			r.warn(penaltyMissingImportant, "Missing important field: %s", f.label)
		}
	}
}

func (r *run) checkFormats(record *model.InvoiceRecord) {
	if record.InvoiceNumber != nil && len(*record.InvoiceNumber) < 3 {
		r.fail(penaltyShortNumber, "Invoice number is too short (minimum 3 characters)")
	}

	if record.InvoiceDate != nil {
		if _, ok := parseDate(*record.InvoiceDate); !ok {
			r.fail(penaltyBadDate, "Invalid invoice date format: %s", *record.InvoiceDate)
		}
	}
	if record.DueDate != nil {
		if _, ok := parseDate(*record.DueDate); !ok {
			r.fail(penaltyBadDate, "Invalid due date format: %s", *record.DueDate)
		}
	}

	if record.TotalAmount != nil {
		switch {
		case *record.TotalAmount < 0:
			r.fail(penaltyNegativeTotal, "Total amount cannot be negative")
		case *record.TotalAmount == 0:
			r.warn(penaltyZeroTotal, "Total amount is zero")
		}
	}

	if record.Currency != nil && !commonCurrencies[*record.Currency] {
		if _, err := currency.ParseISO(*record.Currency); err != nil {
			r.warn(penaltyOddCurrency, "Invalid currency code: %s", *record.Currency)
		} else {
			r.warn(penaltyOddCurrency, "Uncommon currency code: %s", *record.Currency)
		}
	}
}

func (r *run) checkBusinessLogic(record *model.InvoiceRecord) {
	if record.InvoiceDate != nil && record.DueDate != nil {
		invDate, invOK := parseDate(*record.InvoiceDate)
		dueDate, dueOK := parseDate(*record.DueDate)
		if invOK && dueOK {
			if dueDate.Before(invDate) {
				r.fail(penaltyDueBeforeInvoice, "Due date cannot be before invoice date")
			}
			if days := daysBetween(invDate, dueDate); days > maxTermDays {
				r.warn(penaltyLongTerm, "Unusually long payment term: %d days", days)
			}
		}
	}

	if record.Subtotal != nil && record.TaxAmount != nil && record.TotalAmount != nil {
		calculated := *record.Subtotal + *record.TaxAmount
		if abs(calculated-*record.TotalAmount) > amountTolerance {
			r.fail(penaltyAmountMismatch,
				"Amount mismatch: Subtotal (%v) + Tax (%v) does not equal Total (%v)",
				*record.Subtotal, *record.TaxAmount, *record.TotalAmount)
		}
	}

	if len(record.LineItems) > 0 && record.Subtotal != nil {
		sum := 0.0
		for _, item := range record.LineItems {
			if item.Total != nil {
				sum += *item.Total
			}
		}
		if sum > 0 && abs(sum-*record.Subtotal) > amountTolerance {
			r.warn(penaltyLineItemSum,
				"Line items total (%v) does not match subtotal (%v)", sum, *record.Subtotal)
		}
	}
}

func (r *run) checkAnomalies(record *model.InvoiceRecord, now time.Time) {
	if record.TotalAmount != nil {
		// Independent tiers; a very large total draws both deductions.
		if *record.TotalAmount > highAmount {
			r.warn(penaltyHighAmount, "Unusually high amount: %v", *record.TotalAmount)
		}
		if *record.TotalAmount > veryHighAmount {
			r.fail(penaltyVeryHighAmount, "Suspiciously high amount: %v", *record.TotalAmount)
		}
	}

	if record.VendorName != nil && record.BuyerName != nil &&
		strings.EqualFold(*record.VendorName, *record.BuyerName) {
		r.warn(penaltyIdenticalParties, "Vendor and buyer names are identical")
	}

	if record.InvoiceDate != nil {
		if invDate, ok := parseDate(*record.InvoiceDate); ok {
			age := daysBetween(invDate, now)
			if age < -maxFutureDays {
				r.warn(penaltyFutureDate, "Invoice date is %d days in the future", -age)
			} else if age > maxAgeDays {
				r.warn(penaltyStaleDate, "Invoice is %d days old", age)
			}
		}
	}
}

// parseDate accepts only ISO dates. Extraction already normalized every
// parseable format; whatever is left unnormalized is invalid by definition.
func parseDate(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
