// Package money holds the exact decimal arithmetic used to price orders.
package money

import "github.com/shopspring/decimal"

// LineTotal returns quantity × unitPrice without rounding.
func LineTotal(quantity int, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds values; the empty sum is zero.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// OrderTotal returns the subtotal of the line totals and the subtotal plus the delivery fee.
func OrderTotal(lineTotals []decimal.Decimal, deliveryFee decimal.Decimal) (subtotal, total decimal.Decimal) {
	subtotal = Sum(lineTotals...)
	return subtotal, subtotal.Add(deliveryFee)
}
