package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// CRS is a coordinate reference system identifier in canonical
// lower-case form, e.g. "epsg:32633". The zero value means unknown.
type CRS string

const (
	FieldEPSG = "proj:epsg"
	FieldCode = "proj:code"
)

// ParseCRS canonicalises "EPSG:n", "epsg:n" and bare positive integers.
// Other authorities are not recognised.
func ParseCRS(s string) (CRS, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 5 && strings.EqualFold(s[:5], "epsg:") {
		s = s[5:]
	}
	code, err := strconv.Atoi(s)
	if err != nil || code <= 0 {
		return "", newError(ErrMissingCrs, "unrecognised crs identifier %q", s)
	}
	return EPSG(code), nil
}

// EPSG builds the canonical identifier for an EPSG code.
func EPSG(code int) CRS {
	return CRS(fmt.Sprintf("epsg:%d", code))
}

// Code returns the numeric EPSG code, or 0 if c is not canonical.
func (c CRS) Code() int {
	s := string(c)
	if !strings.HasPrefix(s, "epsg:") {
		return 0
	}
	n, err := strconv.Atoi(s[5:])
	if err != nil {
		return 0
	}
	return n
}

// Equal compares canonical forms.
func (c CRS) Equal(o CRS) bool {
	a, errA := ParseCRS(string(c))
	b, errB := ParseCRS(string(o))
	if errA != nil || errB != nil {
		return strings.EqualFold(string(c), string(o))
	}
	return a == b
}

// Upper returns the "EPSG:n" spelling used by proj:code.
func (c CRS) Upper() string {
	return strings.ToUpper(string(c))
}

func (c CRS) String() string {
	return string(c)
}

type crsAccessor struct {
	key   string
	parse func(v interface{}) (CRS, bool)
}

// crsChain lists the CRS fields in precedence order.
var crsChain = []crsAccessor{
	{key: FieldEPSG, parse: parseLegacyEPSG},
	{key: FieldCode, parse: parseCodeString},
}

func parseLegacyEPSG(v interface{}) (CRS, bool) {
	switch t := v.(type) {
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return "", false
		}
		if c, err := ParseCRS(t); err == nil {
			return c, true
		}
		if len(t) >= 5 && strings.EqualFold(t[:5], "epsg:") {
			t = t[5:]
		}
		if _, err := strconv.Atoi(t); err == nil || t == "" {
			return "", false
		}
		return CRS("epsg:" + strings.ToLower(t)), true
	case json.Number:
		n, err := t.Int64()
		if err != nil || n <= 0 {
			return "", false
		}
		return EPSG(int(n)), true
	}
	f, ok := toFloat(v)
	if !ok || !isIntegral(f) || f <= 0 {
		return "", false
	}
	return EPSG(int(f)), true
}

func parseCodeString(v interface{}) (CRS, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if len(s) < 5 || !strings.EqualFold(s[:5], "epsg:") {
		return "", false
	}
	if c, err := ParseCRS(s); err == nil {
		return c, true
	}
	if _, err := strconv.Atoi(s[5:]); err == nil || len(s) == 5 {
		return "", false
	}
	return CRS(strings.ToLower(s)), true
}

// ResolveCRS reads a CRS from the legacy numeric proj:epsg field, else
// from a proj:code string carrying the EPSG authority.
func ResolveCRS(fields Fields) (CRS, error) {
	c, _, err := ResolveCRSWithSource(fields)
	return c, err
}

// ResolveCRSWithSource is ResolveCRS that also reports which field won.
func ResolveCRSWithSource(fields Fields) (CRS, string, error) {
	for _, a := range crsChain {
		v, ok := fields[a.key]
		if !ok || v == nil {
			continue
		}
		if c, ok := a.parse(v); ok {
			return c, a.key, nil
		}
	}
	return "", "", &Error{Kind: ErrMissingCrs, Field: FieldEPSG + "|" + FieldCode}
}
