package detection

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatAmount 金额格式化为千分位两位小数，例如 37,999.00
func FormatAmount(amount decimal.Decimal) string {
	return printer.Sprintf("%.2f", amount.InexactFloat64())
}

// FormatFloat 浮点数千分位格式化
func FormatFloat(v float64, precision int) string {
	return printer.Sprintf(fmt.Sprintf("%%.%df", precision), v)
}
