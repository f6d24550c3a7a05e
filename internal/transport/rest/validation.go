package rest

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// The portal frontend is loose about JSON types (numbers arrive as strings
// and vice versa), so body fields are decoded as interface{} and coerced.

func toStringPtr(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return &t, nil
	case float64:
		s := strconv.FormatInt(int64(t), 10)
		return &s, nil
	default:
		return nil, &ValidationError{Message: "invalid type for string field"}
	}
}

func toInt64Ptr(v interface{}) (*int64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		i := int64(t)
		return &i, nil
	case string:
		if t == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, err
		}
		return &i, nil
	default:
		return nil, &ValidationError{Message: "invalid type for int field"}
	}
}

// toDecimalPtr accepts a JSON number or numeric string. Malformed input is a
// validation error; the engine separately rejects non-positive amounts.
func toDecimalPtr(v interface{}) (*decimal.Decimal, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		d := decimal.NewFromFloat(t).Round(2)
		return &d, nil
	case string:
		if t == "" {
			return nil, nil
		}
		d, err := decimal.NewFromString(t)
		if err != nil {
			return nil, err
		}
		d = d.Round(2)
		return &d, nil
	default:
		return nil, &ValidationError{Message: "invalid type for decimal field"}
	}
}
