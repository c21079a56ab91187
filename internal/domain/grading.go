package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Grade coerces a raw answer to the question's kind and compares it with the key.
// The returned string is the canonical form stored on the Response.
func Grade(q Question, raw json.RawMessage) (string, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", false, invalid(q, "answer is required")
	}

	switch q.Kind {
	case KindBoolean:
		v, err := coerceBool(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		return strconv.FormatBool(v), q.Key.Bool != nil && *q.Key.Bool == v, nil

	case KindInteger:
		v, err := coerceInt(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		return strconv.FormatInt(v, 10), q.Key.Integer != nil && *q.Key.Integer == v, nil

	case KindText:
		v, err := coerceString(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		v = strings.TrimSpace(v)
		if v == "" {
			return "", false, invalid(q, "answer is empty")
		}
		return v, v == strings.TrimSpace(q.Key.Text), nil

	case KindDecimal:
		s, err := coerceNumberText(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return "", false, invalid(q, "not a decimal number")
		}
		want, err := decimal.NewFromString(q.Key.Decimal)
		if err != nil {
			return v.String(), false, nil
		}
		return v.String(), v.Equal(want), nil

	case KindChoice:
		v, err := coerceNumberText(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		if !hasOption(q.Options, v) {
			return "", false, invalid(q, "unknown option "+strconv.Quote(v))
		}
		return v, v == q.Key.Choice, nil

	case KindRange:
		s, err := coerceNumberText(raw)
		if err != nil {
			return "", false, invalid(q, err.Error())
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false, invalid(q, "not a number")
		}
		correct := q.Key.Min != nil && q.Key.Max != nil && v >= *q.Key.Min && v <= *q.Key.Max
		return strconv.FormatFloat(v, 'f', -1, 64), correct, nil

	case KindOrdering:
		var order []string
		if err := json.Unmarshal(raw, &order); err != nil {
			return "", false, invalid(q, "expected a list of option ids")
		}
		if len(order) != len(q.Options) {
			return "", false, invalid(q, "ordering must list every option once")
		}
		seen := make(map[string]struct{}, len(order))
		for _, id := range order {
			if _, dup := seen[id]; dup || !hasOption(q.Options, id) {
				return "", false, invalid(q, "ordering must list every option once")
			}
			seen[id] = struct{}{}
		}
		return strings.Join(order, ","), equalOrder(order, q.Key.Order), nil

	default:
		return "", false, invalid(q, "unsupported question kind")
	}
}

func invalid(q Question, reason string) error {
	return &ValidationError{QuestionID: q.ID, Kind: q.Kind, Reason: reason}
}

func coerceBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	s, err := coerceString(raw)
	if err != nil {
		return false, errNotBool
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	}
	return false, errNotBool
}

func coerceInt(raw json.RawMessage) (int64, error) {
	s, err := coerceNumberText(raw)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return v, nil
}

func coerceString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errNotString
	}
	return s, nil
}

// coerceNumberText accepts a JSON number or string and returns its trimmed text.
func coerceNumberText(raw json.RawMessage) (string, error) {
	if raw[0] == '"' {
		s, err := coerceString(raw)
		if err != nil {
			return "", err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", errEmpty
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errNotNumber
	}
	return n.String(), nil
}

func hasOption(options []Option, id string) bool {
	for _, o := range options {
		if o.ID == id {
			return true
		}
	}
	return false
}

func equalOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type coerceError string

func (e coerceError) Error() string { return string(e) }

const (
	errNotBool    coerceError = "not a boolean"
	errNotInteger coerceError = "not an integer"
	errNotString  coerceError = "not a string"
	errNotNumber  coerceError = "not a number"
	errEmpty      coerceError = "answer is empty"
)
