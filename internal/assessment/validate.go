package assessment

import (
	"encoding/json"
	"math"
	"strings"
)

// Parse turns raw provider text into a validated Result. Only the first
// balanced {...} span of raw is considered; surrounding prose is ignored.
func Parse(raw string) (Result, error) {
	span, ok := extractObjectSpan(raw)
	if !ok {
		return Result{}, &ValidationError{Reason: ReasonNoStructuredPayload}
	}

	dec := json.NewDecoder(strings.NewReader(span))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return Result{}, &ValidationError{Reason: ReasonMalformedPayload, Err: err}
	}
	return Validate(doc)
}

// Validate checks a decoded payload against the Result schema. Numbers are
// expected as json.Number or float64. Enum values are matched case-insensitively.
func Validate(doc map[string]any) (Result, error) {
	root := object{m: doc}
	var (
		res Result
		err error
	)

	if res.Summary, err = root.optionalString("summary"); err != nil {
		return Result{}, err
	}

	sym, err := root.child("symmetry")
	if err != nil {
		return Result{}, err
	}
	if res.Symmetry.Score, err = sym.integer("score", 0, 100); err != nil {
		return Result{}, err
	}
	status, err := sym.enum("status")
	if err != nil {
		return Result{}, err
	}
	res.Symmetry.Status = SymmetryStatus(status)
	if !res.Symmetry.Status.Valid() {
		return Result{}, fieldError(ReasonInvalidEnum, sym.path("status"))
	}
	if res.Symmetry.Description, err = sym.optionalString("description"); err != nil {
		return Result{}, err
	}

	red, err := root.child("redness")
	if err != nil {
		return Result{}, err
	}
	if res.Redness.Detected, err = red.boolean("detected"); err != nil {
		return Result{}, err
	}
	if res.Redness.Areas, err = red.stringSet("areas"); err != nil {
		return Result{}, err
	}
	severity, err := red.enum("severity")
	if err != nil {
		return Result{}, err
	}
	res.Redness.Severity = Severity(severity)
	if !res.Redness.Severity.Valid() {
		return Result{}, fieldError(ReasonInvalidEnum, red.path("severity"))
	}

	swe, err := root.child("swelling")
	if err != nil {
		return Result{}, err
	}
	if res.Swelling.Detected, err = swe.boolean("detected"); err != nil {
		return Result{}, err
	}
	if res.Swelling.Confidence, err = swe.number("confidence", 0, 1); err != nil {
		return Result{}, err
	}

	risk, err := root.enum("riskLevel")
	if err != nil {
		return Result{}, err
	}
	res.RiskLevel = RiskLevel(risk)
	if !res.RiskLevel.Valid() {
		return Result{}, fieldError(ReasonInvalidEnum, "riskLevel")
	}
	if res.Confidence, err = root.number("confidence", 0, 1); err != nil {
		return Result{}, err
	}
	if res.NeedReview, err = root.boolean("needReview"); err != nil {
		return Result{}, err
	}
	return res, nil
}

type object struct {
	prefix string
	m      map[string]any
}

func (o object) path(key string) string {
	if o.prefix == "" {
		return key
	}
	return o.prefix + "." + key
}

func (o object) lookup(key string) (any, bool) {
	v, ok := o.m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (o object) child(key string) (object, error) {
	v, ok := o.lookup(key)
	if !ok {
		return object{}, fieldError(ReasonMissingField, o.path(key))
	}
	m, ok := v.(map[string]any)
	if !ok {
		return object{}, fieldError(ReasonWrongType, o.path(key))
	}
	return object{prefix: o.path(key), m: m}, nil
}

func (o object) optionalString(key string) (string, error) {
	v, ok := o.lookup(key)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(ReasonWrongType, o.path(key))
	}
	return s, nil
}

func (o object) enum(key string) (string, error) {
	v, ok := o.lookup(key)
	if !ok {
		return "", fieldError(ReasonMissingField, o.path(key))
	}
	s, ok := v.(string)
	if !ok {
		return "", fieldError(ReasonWrongType, o.path(key))
	}
	return strings.ToLower(strings.TrimSpace(s)), nil
}

func (o object) boolean(key string) (bool, error) {
	v, ok := o.lookup(key)
	if !ok {
		return false, fieldError(ReasonMissingField, o.path(key))
	}
	b, ok := v.(bool)
	if !ok {
		return false, fieldError(ReasonWrongType, o.path(key))
	}
	return b, nil
}

func (o object) number(key string, min, max float64) (float64, error) {
	v, ok := o.lookup(key)
	if !ok {
		return 0, fieldError(ReasonMissingField, o.path(key))
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, fieldError(ReasonWrongType, o.path(key))
	}
	if f < min || f > max {
		return 0, fieldError(ReasonOutOfRange, o.path(key))
	}
	return f, nil
}

func (o object) integer(key string, min, max int) (int, error) {
	f, err := o.number(key, math.Inf(-1), math.Inf(1))
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fieldError(ReasonNotInteger, o.path(key))
	}
	if f < float64(min) || f > float64(max) {
		return 0, fieldError(ReasonOutOfRange, o.path(key))
	}
	return int(f), nil
}

// stringSet reads an optional array of strings, trimming entries, dropping
// blanks and duplicates while keeping first-seen order.
func (o object) stringSet(key string) ([]string, error) {
	out := []string{}
	v, ok := o.lookup(key)
	if !ok {
		return out, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fieldError(ReasonWrongType, o.path(key))
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fieldError(ReasonWrongType, o.path(key))
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
