package sales_order

import "factorydesk/pkg/numerator"

const (
	// NumberPrefix starts every order number.
	NumberPrefix = "SO"

	// NumeratorStrategy is strict: order numbers have no gaps.
	NumeratorStrategy = numerator.StrategyStrict
)
