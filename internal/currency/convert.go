package currency

// Money is an amount tagged with its currency code.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Convert converts amount from one currency to another by pivoting through
// the table's base currency. Identical codes return the amount unchanged.
// When either code is missing from the table the original amount is returned
// tagged with the source currency.
func Convert(amount float64, from, to string, table Table) Money {
	from, to = Code(from), Code(to)
	if from == to {
		return Money{Amount: amount, Currency: to}
	}

	fromRate, ok := table.Rate(from)
	if !ok {
		return Money{Amount: amount, Currency: from}
	}
	toRate, ok := table.Rate(to)
	if !ok {
		return Money{Amount: amount, Currency: from}
	}

	inBase := amount / fromRate
	return Money{Amount: inBase * toRate, Currency: to}
}
