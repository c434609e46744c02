package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/model"
)

var testNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func cleanRecord() *model.InvoiceRecord {
	return &model.InvoiceRecord{
		InvoiceNumber: model.Str("INV-2024-001"),
		VendorName:    model.Str("Acme Corporation"),
		BuyerName:     model.Str("Globex LLC"),
		InvoiceDate:   model.Str("2024-01-01"),
		DueDate:       model.Str("2024-01-31"),
		Currency:      model.Str("USD"),
		Subtotal:      model.Num(100),
		TaxAmount:     model.Num(10),
		TotalAmount:   model.Num(110),
		LineItems: []model.LineItem{
			{Description: "Widget A", Quantity: model.Num(2), UnitPrice: model.Num(25), Total: model.Num(50)},
			{Description: "Widget B", Quantity: model.Num(1), UnitPrice: model.Num(50), Total: model.Num(50)},
		},
	}
}

func TestValidateCleanInvoice(t *testing.T) {
	result := Validate(cleanRecord(), testNow)

	assert.True(t, result.IsValid)
	assert.Equal(t, 100, result.Score)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "INV-2024-001", result.InvoiceNumber)
}

func TestValidateEmptyRecord(t *testing.T) {
	result := Validate(&model.InvoiceRecord{}, testNow)

	assert.False(t, result.IsValid)
	// Four required fields at 15 each, three important at 5 each.
	assert.Equal(t, 25, result.Score)
	assert.Len(t, result.Errors, 4)
	assert.Len(t, result.Warnings, 3)
	assert.Contains(t, result.Errors, "Missing required field: Invoice Number")
	assert.Contains(t, result.Warnings, "Missing important field: Buyer Name")
}

func TestValidateShortInvoiceNumber(t *testing.T) {
	rec := cleanRecord()
	rec.InvoiceNumber = model.Str("AB")

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Equal(t, 90, result.Score)
	assert.Contains(t, result.Errors, "Invoice number is too short (minimum 3 characters)")
}

func TestValidateUnparsableDates(t *testing.T) {
	rec := cleanRecord()
	rec.InvoiceDate = model.Str("sometime in March")
	rec.DueDate = model.Str("13/45/2024")

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Invalid invoice date format: sometime in March")
	assert.Contains(t, result.Errors, "Invalid due date format: 13/45/2024")
	assert.Equal(t, 80, result.Score)
}

func TestValidateNegativeTotal(t *testing.T) {
	rec := cleanRecord()
	rec.TotalAmount = model.Num(-50)
	rec.Subtotal = nil
	rec.TaxAmount = nil
	rec.LineItems = nil

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Total amount cannot be negative")
}

func TestValidateZeroTotal(t *testing.T) {
	rec := cleanRecord()
	rec.TotalAmount = model.Num(0)
	rec.Subtotal = nil
	rec.TaxAmount = nil
	rec.LineItems = nil

	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "Total amount is zero")
	assert.Equal(t, 95, result.Score)
}

func TestValidateCurrencyCodes(t *testing.T) {
	rec := cleanRecord()
	rec.Currency = model.Str("CHF")
	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	assert.Contains(t, result.Warnings, "Uncommon currency code: CHF")

	rec.Currency = model.Str("ZZZ")
	result = Validate(rec, testNow)
	assert.Contains(t, result.Warnings, "Invalid currency code: ZZZ")
	assert.Equal(t, 97, result.Score)
}

func TestValidateDueBeforeInvoiceDate(t *testing.T) {
	rec := cleanRecord()
	rec.InvoiceDate = model.Str("2024-01-01")
	rec.DueDate = model.Str("2023-12-01")

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Contains(t, result.Errors, "Due date cannot be before invoice date")
	assert.Equal(t, 85, result.Score)
}

func TestValidateLongPaymentTerm(t *testing.T) {
	rec := cleanRecord()
	rec.DueDate = model.Str("2025-06-01")

	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Unusually long payment term")
}

func TestValidateAmountMismatch(t *testing.T) {
	rec := cleanRecord()
	rec.TotalAmount = model.Num(150)

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Amount mismatch")
	assert.Equal(t, 80, result.Score)
}

func TestValidateLineItemSumMismatch(t *testing.T) {
	rec := cleanRecord()
	rec.LineItems = []model.LineItem{{Description: "Widget", Total: model.Num(90)}}

	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "does not match subtotal")
}

func TestValidateHighAmountTiersAreIndependent(t *testing.T) {
	rec := cleanRecord()
	rec.Subtotal = nil
	rec.TaxAmount = nil
	rec.LineItems = nil

	rec.TotalAmount = model.Num(2_000_000)
	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	assert.Equal(t, 97, result.Score)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "Unusually high amount")

	// Both tiers fire above ten million.
	rec.TotalAmount = model.Num(20_000_000)
	result = Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Equal(t, 87, result.Score)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Suspiciously high amount")
}

func TestValidateIdenticalParties(t *testing.T) {
	rec := cleanRecord()
	rec.BuyerName = model.Str("ACME CORPORATION")

	result := Validate(rec, testNow)
	assert.Contains(t, result.Warnings, "Vendor and buyer names are identical")
}

func TestValidateFutureInvoiceDate(t *testing.T) {
	rec := cleanRecord()
	rec.InvoiceDate = model.Str("2024-03-15")
	rec.DueDate = model.Str("2024-04-14")

	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "days in the future")
}

func TestValidateStaleInvoiceDate(t *testing.T) {
	rec := cleanRecord()
	rec.InvoiceDate = model.Str("2020-01-01")
	rec.DueDate = model.Str("2020-01-31")

	result := Validate(rec, testNow)
	assert.True(t, result.IsValid)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "days old")
}

func TestValidateScoreFlooredAtZero(t *testing.T) {
	rec := &model.InvoiceRecord{
		InvoiceDate: model.Str("garbage"),
		DueDate:     model.Str("junk"),
		TotalAmount: model.Num(-5),
		Subtotal:    model.Num(1),
		TaxAmount:   model.Num(1),
		LineItems:   []model.LineItem{{Description: "Widget", Total: model.Num(90)}},
	}

	result := Validate(rec, testNow)
	assert.False(t, result.IsValid)
	assert.Equal(t, 0, result.Score)
}
