package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingCrs                 = errors.New("reconcile: missing crs")
	ErrDegenerateGrid             = errors.New("reconcile: degenerate grid")
	ErrEmptyExtentSet             = errors.New("reconcile: empty extent set")
	ErrDanglingDimensionReference = errors.New("reconcile: dangling dimension reference")
	ErrCrsMismatch                = errors.New("reconcile: crs mismatch")
	ErrMissingRequiredAsset       = errors.New("reconcile: missing required asset")

	ErrMissingProjection  = errors.New("reconcile: missing projection")
	ErrMissingCoordinates = errors.New("reconcile: missing coordinates")
	ErrShapeMismatch      = errors.New("reconcile: shape mismatch")
)

// Error attaches the offending item, asset or field to one of the
// package error kinds.
type Error struct {
	Kind   error
	Item   string
	Asset  string
	Field  string
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Item != "" {
		fmt.Fprintf(&b, " item=%q", e.Item)
	}
	if e.Asset != "" {
		fmt.Fprintf(&b, " asset=%q", e.Asset)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field=%q", e.Field)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// WithItem returns err annotated with an item id when err is a *Error
// that does not yet name one. Other errors are returned unchanged.
func WithItem(err error, item string) error {
	var re *Error
	if errors.As(err, &re) && re.Item == "" {
		cp := *re
		cp.Item = item
		return &cp
	}
	return err
}

// WithAsset is the asset counterpart of WithItem.
func WithAsset(err error, asset string) error {
	var re *Error
	if errors.As(err, &re) && re.Asset == "" {
		cp := *re
		cp.Asset = asset
		return &cp
	}
	return err
}

// MissingAsset reports an expected asset key absent from an item.
func MissingAsset(item, asset string) error {
	return &Error{Kind: ErrMissingRequiredAsset, Item: item, Asset: asset}
}

// Kinds lists every error kind in a stable order.
var Kinds = []error{
	ErrMissingCrs,
	ErrDegenerateGrid,
	ErrEmptyExtentSet,
	ErrDanglingDimensionReference,
	ErrCrsMismatch,
	ErrMissingRequiredAsset,
	ErrMissingProjection,
	ErrMissingCoordinates,
	ErrShapeMismatch,
}

// KindOf returns the package error kind wrapped by err, or nil.
func KindOf(err error) error {
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
