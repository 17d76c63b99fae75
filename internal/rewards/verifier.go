package rewards

import (
	"encoding/json"
	"fmt"

	"rwaswap-rewards/internal/models"

	"github.com/shopspring/decimal"
)

// extractRoute pulls the two token legs out of the quoting service's route
// payload. The payload is client-supplied, so everything is checked.
func extractRoute(raw string) (*models.SwapRoute, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty route", ErrMalformedRoute)
	}

	var route models.SwapRoute
	if err := json.Unmarshal([]byte(raw), &route); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRoute, err)
	}
	if route.From.Token == "" || route.To.Token == "" {
		return nil, fmt.Errorf("%w: missing token leg", ErrMalformedRoute)
	}
	if route.From.Token == route.To.Token {
		return nil, fmt.Errorf("%w: identical token legs", ErrMalformedRoute)
	}
	return &route, nil
}

// routeAmounts parses the leg amounts, tolerating missing or unparseable
// values (some aggregators omit them); zero is recorded then.
func routeAmounts(route *models.SwapRoute) (decimal.Decimal, decimal.Decimal) {
	from, err := decimal.NewFromString(route.From.Amount)
	if err != nil {
		from = decimal.Zero
	}
	to, err := decimal.NewFromString(route.To.Amount)
	if err != nil {
		to = decimal.Zero
	}
	return from, to
}
