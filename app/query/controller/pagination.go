package controller

import (
	"math"
	"net/http"
	"strconv"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
)

const defaultLimit = 100

type rangeSpec struct {
	Offset int
	Limit  int
}

func parseRangeSpec(r *http.Request) (rangeSpec, error) {
	qs := r.URL.Query()
	spec := rangeSpec{Limit: defaultLimit}
	if v := qs.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return rangeSpec{}, errInvalidOffset
		}
		spec.Offset = n
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return rangeSpec{}, errInvalidLimit
		}
		spec.Limit = min(n, rank.MaxRangeLimit)
	}
	return spec, nil
}

func parseValue(r *http.Request) (float64, error) {
	v := r.URL.Query().Get("value")
	if v == "" {
		return 0, errMissingValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errInvalidValue
	}
	return f, nil
}

var (
	errInvalidOffset = &parseError{msg: "invalid offset"}
	errInvalidLimit  = &parseError{msg: "invalid limit"}
	errMissingValue  = &parseError{msg: "value is required"}
	errInvalidValue  = &parseError{msg: "invalid value"}
)

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
