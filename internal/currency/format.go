package currency

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// fallbackSymbols covers major currencies, including codes the locale
// tables do not recognize.
var fallbackSymbols = map[string]string{
	"USD":  "$",
	"EUR":  "€",
	"GBP":  "£",
	"JPY":  "¥",
	"CNY":  "¥",
	"KRW":  "₩",
	"INR":  "₹",
	"RUB":  "₽",
	"BTC":  "₿",
	"ETH":  "Ξ",
	"CHF":  "CHF",
	"CAD":  "C$",
	"AUD":  "A$",
	"USDT": "USDT",
}

type formatOptions struct {
	digits int
	lang   language.Tag
}

// FormatOption overrides the default formatting behavior.
type FormatOption func(*formatOptions)

// WithFractionDigits fixes the number of fractional digits.
func WithFractionDigits(n int) FormatOption {
	return func(o *formatOptions) {
		if n >= 0 {
			o.digits = n
		}
	}
}

// WithLanguage selects the locale used for grouping and symbols.
func WithLanguage(tag language.Tag) FormatOption {
	return func(o *formatOptions) {
		o.lang = tag
	}
}

// FractionDigits returns the default precision: 4 digits below 1, else 2.
func FractionDigits(amount float64) int {
	if math.Abs(amount) < 1 {
		return 4
	}
	return 2
}

// Format renders amount as a currency string. Codes the locale formatter does
// not recognize are rendered manually with a symbol from a small override
// table, or the code itself.
func Format(amount float64, code string, opts ...FormatOption) string {
	o := formatOptions{digits: -1, lang: language.English}
	for _, opt := range opts {
		opt(&o)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	if o.digits < 0 {
		o.digits = FractionDigits(amount)
	}

	code = Code(code)
	unit, err := currency.ParseISO(code)
	if err != nil {
		return formatManual(amount, code, o.digits)
	}

	p := message.NewPrinter(o.lang)
	digits := p.Sprint(number.Decimal(math.Abs(amount),
		number.MinFractionDigits(o.digits),
		number.MaxFractionDigits(o.digits),
	))
	sym := p.Sprint(currency.Symbol(unit))

	var b strings.Builder
	if amount < 0 {
		b.WriteByte('-')
	}
	b.WriteString(sym)
	if sym == unit.String() {
		b.WriteByte(' ')
	}
	b.WriteString(digits)
	return b.String()
}

func formatManual(amount float64, code string, digits int) string {
	value := strconv.FormatFloat(math.Abs(amount), 'f', digits, 64)
	sign := ""
	if amount < 0 {
		sign = "-"
	}

	sym, ok := fallbackSymbols[code]
	if !ok {
		sym = code
	}
	switch {
	case sym == "":
		return sign + value
	case utf8.RuneCountInString(sym) == 1:
		return sign + sym + value
	default:
		return sign + value + " " + sym
	}
}
