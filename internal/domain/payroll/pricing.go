package payroll

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/wage"
)

const amountPlaces = 2

// PriceLines returns priced copies of lines using one system's pricing
// rules: amount = quantity * (rate * multiplier + fixed per hour). Base lines
// without a rule are priced at the plain rate. Any other component without a
// rule keeps a zero amount and is reported once.
func PriceLines(lines []Line, rules map[string]wage.PricingRule) ([]Line, []Warning) {
	priced := make([]Line, len(lines))
	var warnings []Warning
	var unpriced []string
	for i, line := range lines {
		line.SourceIDs = slices.Clone(line.SourceIDs)
		rule, ok := rules[line.Component]
		if !ok && line.Component == ComponentBase {
			rule, ok = wage.PricingRule{Component: ComponentBase, Multiplier: decimal.NewFromInt(1)}, true
		}
		if !ok {
			line.Amount = decimal.Zero
			if !slices.Contains(unpriced, line.Component) {
				unpriced = append(unpriced, line.Component)
			}
			priced[i] = line
			continue
		}
		perHour := line.Rate.Mul(rule.Multiplier).Add(rule.FixedPerHour)
		line.Amount = line.Quantity.Mul(perHour).Round(amountPlaces)
		priced[i] = line
	}
	slices.Sort(unpriced)
	for _, component := range unpriced {
		warnings = append(warnings, Warning{Code: WarningUnpricedComponent, Message: fmt.Sprintf("no pricing rule for component %q", component)})
	}
	return priced, warnings
}

func TotalAmount(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount)
	}
	return total
}
