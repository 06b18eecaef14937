package checkout

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

const (
	// OrderNote подставляется в назначение платежа UPI.
	OrderNote = "ALA Order"
	qrSize    = 256
)

// Merchant описывает получателя платежа UPI.
type Merchant struct {
	VPA  string
	Name string
}

// PaymentIntent содержит данные для ручной оплаты через UPI.
type PaymentIntent struct {
	URI       string
	Amount    decimal.Decimal
	QRCodePNG []byte
}

// UPIIntentURI формирует строку намерения платежа UPI.
func UPIIntentURI(m Merchant, amount decimal.Decimal, note string) string {
	return fmt.Sprintf("upi://pay?pa=%s&pn=%s&am=%s&cu=INR&tn=%s",
		m.VPA, escape(m.Name), amount.StringFixed(2), escape(note))
}

// NewPaymentIntent формирует строку намерения и QR-код для неё.
func NewPaymentIntent(m Merchant, amount decimal.Decimal) (*PaymentIntent, error) {
	uri := UPIIntentURI(m, amount, OrderNote)
	png, err := qrcode.Encode(uri, qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}
	return &PaymentIntent{URI: uri, Amount: amount, QRCodePNG: png}, nil
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
