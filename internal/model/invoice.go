package model

import "strings"

// Field keys for the canonical invoice schema. Every extractor, the merge
// engine, and the validator address fields by these keys.
const (
	FieldInvoiceNumber = "invoice_number"
	FieldVendorName    = "vendor_name"
	FieldVendorAddress = "vendor_address"
	FieldVendorTaxID   = "vendor_tax_id"
	FieldBuyerName     = "buyer_name"
	FieldBuyerAddress  = "buyer_address"
	FieldBuyerTaxID    = "buyer_tax_id"
	FieldInvoiceDate   = "invoice_date"
	FieldDueDate       = "due_date"
	FieldCurrency      = "currency"
	FieldSubtotal      = "subtotal"
	FieldTaxAmount     = "tax_amount"
	FieldTotalAmount   = "total_amount"
	FieldPaymentTerms  = "payment_terms"
	FieldLineItems     = "line_items"
)

// AllFields lists every mergeable field in canonical order.
var AllFields = []string{
	FieldInvoiceNumber,
	FieldVendorName,
	FieldVendorAddress,
	FieldVendorTaxID,
	FieldBuyerName,
	FieldBuyerAddress,
	FieldBuyerTaxID,
	FieldInvoiceDate,
	FieldDueDate,
	FieldCurrency,
	FieldSubtotal,
	FieldTaxAmount,
	FieldTotalAmount,
	FieldPaymentTerms,
	FieldLineItems,
}

// RequiredFields must be present for an invoice to be considered complete.
var RequiredFields = []string{
	FieldInvoiceNumber,
	FieldVendorName,
	FieldTotalAmount,
	FieldInvoiceDate,
}

// LineItem is a single invoice line. Only the description is mandatory;
// quantity, unit price, and line total may be absent.
type LineItem struct {
	Description string   `json:"description"`
	Quantity    *float64 `json:"quantity,omitempty"`
	UnitPrice   *float64 `json:"unit_price,omitempty"`
	Total       *float64 `json:"total,omitempty"`
}

// InvoiceRecord is the canonical normalized invoice. All fields are optional;
// a nil pointer means "no value", which is distinct from an empty string.
// Dates are ISO 8601 strings (or the raw string when normalization failed,
// which the validator flags). Amounts are decimal values without currency
// symbols.
type InvoiceRecord struct {
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	VendorName    *string    `json:"vendor_name,omitempty"`
	VendorAddress *string    `json:"vendor_address,omitempty"`
	VendorTaxID   *string    `json:"vendor_tax_id,omitempty"`
	BuyerName     *string    `json:"buyer_name,omitempty"`
	BuyerAddress  *string    `json:"buyer_address,omitempty"`
	BuyerTaxID    *string    `json:"buyer_tax_id,omitempty"`
	InvoiceDate   *string    `json:"invoice_date,omitempty"`
	DueDate       *string    `json:"due_date,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	Subtotal      *float64   `json:"subtotal,omitempty"`
	TaxAmount     *float64   `json:"tax_amount,omitempty"`
	TotalAmount   *float64   `json:"total_amount,omitempty"`
	PaymentTerms  *string    `json:"payment_terms,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
}

// Field returns the value stored under the given field key, or nil when the
// field is unset. Text fields return string, amounts return float64, and
// line_items returns []LineItem.
func (r *InvoiceRecord) Field(key string) any {
	switch key {
	case FieldInvoiceNumber:
		return strVal(r.InvoiceNumber)
	case FieldVendorName:
		return strVal(r.VendorName)
	case FieldVendorAddress:
		return strVal(r.VendorAddress)
	case FieldVendorTaxID:
		return strVal(r.VendorTaxID)
	case FieldBuyerName:
		return strVal(r.BuyerName)
	case FieldBuyerAddress:
		return strVal(r.BuyerAddress)
	case FieldBuyerTaxID:
		return strVal(r.BuyerTaxID)
	case FieldInvoiceDate:
		return strVal(r.InvoiceDate)
	case FieldDueDate:
		return strVal(r.DueDate)
	case FieldCurrency:
		return strVal(r.Currency)
	case FieldSubtotal:
		return numVal(r.Subtotal)
	case FieldTaxAmount:
		return numVal(r.TaxAmount)
	case FieldTotalAmount:
		return numVal(r.TotalAmount)
	case FieldPaymentTerms:
		return strVal(r.PaymentTerms)
	case FieldLineItems:
		if len(r.LineItems) == 0 {
			return nil
		}
		return r.LineItems
	default:
		return nil
	}
}

// SetField assigns a value to the given field key. String fields accept
// string, amount fields accept float64, and line_items accepts []LineItem.
// A nil value clears the field. Values of the wrong type are ignored.
func (r *InvoiceRecord) SetField(key string, value any) {
	switch key {
	case FieldInvoiceNumber:
		r.InvoiceNumber = toStrPtr(value)
	case FieldVendorName:
		r.VendorName = toStrPtr(value)
	case FieldVendorAddress:
		r.VendorAddress = toStrPtr(value)
	case FieldVendorTaxID:
		r.VendorTaxID = toStrPtr(value)
	case FieldBuyerName:
		r.BuyerName = toStrPtr(value)
	case FieldBuyerAddress:
		r.BuyerAddress = toStrPtr(value)
	case FieldBuyerTaxID:
		r.BuyerTaxID = toStrPtr(value)
	case FieldInvoiceDate:
		r.InvoiceDate = toStrPtr(value)
	case FieldDueDate:
		r.DueDate = toStrPtr(value)
	case FieldCurrency:
		r.Currency = toStrPtr(value)
	case FieldSubtotal:
		r.Subtotal = toNumPtr(value)
	case FieldTaxAmount:
		r.TaxAmount = toNumPtr(value)
	case FieldTotalAmount:
		r.TotalAmount = toNumPtr(value)
	case FieldPaymentTerms:
		r.PaymentTerms = toStrPtr(value)
	case FieldLineItems:
		if value == nil {
			r.LineItems = nil
			return
		}
		if items, ok := value.([]LineItem); ok {
			r.LineItems = items
		}
	}
}

// HasValue reports whether a field value is meaningful: non-nil, and for
// strings not blank, and for line-item lists not empty.
func HasValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	case []LineItem:
		return len(val) > 0
	default:
		return true
	}
}

// IsNumericField reports whether the field key holds a monetary amount.
func IsNumericField(key string) bool {
	switch key {
	case FieldSubtotal, FieldTaxAmount, FieldTotalAmount:
		return true
	}
	return false
}

// Str returns a pointer to s. Convenience for record construction.
func Str(s string) *string { return &s }

// Num returns a pointer to f. Convenience for record construction.
func Num(f float64) *float64 { return &f }

func strVal(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func numVal(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func toStrPtr(v any) *string {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func toNumPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	default:
		return nil
	}
}
