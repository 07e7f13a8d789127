// Package features turns raw events plus historical lookups into the
// fixed-shape feature vectors the scoring sources consume.
//
// Absence is a first-class value here: a feature a source references is
// either present or explicitly absent, never silently omitted, so every
// adapter reacts to missing data the same way on every request.
package features

import (
	"context"
	"time"
)

// ValueKind tags the type of a feature value.
type ValueKind string

const (
	KindNumber   ValueKind = "number"
	KindCategory ValueKind = "category"
	KindBool     ValueKind = "bool"
	KindAbsent   ValueKind = "absent"
)

// Value is one feature value. Exactly one of the typed fields is
// meaningful, selected by Kind.
type Value struct {
	Kind     ValueKind `json:"kind"`
	Number   float64   `json:"number,omitempty"`
	Category string    `json:"category,omitempty"`
	Bool     bool      `json:"bool,omitempty"`
}

// Number wraps a numeric feature value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Category wraps a categorical feature value.
func Category(c string) Value { return Value{Kind: KindCategory, Category: c} }

// Flag wraps a boolean feature value.
func Flag(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Absent marks a feature as explicitly unavailable.
func Absent() Value { return Value{Kind: KindAbsent} }

// IsAbsent reports whether the value carries no data.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// AsNumber returns the numeric view of the value: numbers as-is, bools as
// 0/1, everything else (including absent) as the fallback.
func (v Value) AsNumber(fallback float64) float64 {
	switch v.Kind {
	case KindNumber:
		return v.Number
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	}
	return fallback
}

// Vector is a feature vector: named values plus the assembly timestamp.
type Vector struct {
	Features   map[string]Value `json:"features"`
	ComputedAt time.Time        `json:"computedAt"`
}

// Get returns the named feature, or an explicit Absent value when the
// vector does not carry it.
func (fv *Vector) Get(name string) Value {
	if v, ok := fv.Features[name]; ok {
		return v
	}
	return Absent()
}

// Number returns the named feature as a float, with fallback for
// absent/non-numeric values.
func (fv *Vector) Number(name string, fallback float64) float64 {
	return fv.Get(name).AsNumber(fallback)
}

// Flag returns the named feature as a bool; absent is false.
func (fv *Vector) Flag(name string) bool {
	v := fv.Get(name)
	return v.Kind == KindBool && v.Bool
}

// Clone returns a deep copy. Decision records snapshot the vector, so the
// stored copy must not alias the request-scoped map.
func (fv *Vector) Clone() *Vector {
	cp := &Vector{
		Features:   make(map[string]Value, len(fv.Features)),
		ComputedAt: fv.ComputedAt,
	}
	for k, v := range fv.Features {
		cp.Features[k] = v
	}
	return cp
}

// Lookup is the feature-store capability the assembler pulls historical
// and derived features from. Implementations must be safe for concurrent
// use. A feature the store cannot serve is returned as an Absent value,
// not an error; the error return is for the lookup failing wholesale.
type Lookup interface {
	Get(ctx context.Context, entityID string, names []string) (map[string]Value, error)
}
