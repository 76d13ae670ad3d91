package analysis

import (
	"encoding/json"
	"math"
)

// number is a float64 that marshals NaN and infinities as null. Short or
// constant chains leave R-hat and ESS undefined.
type number float64

func (x number) MarshalJSON() ([]byte, error) {
	f := float64(x)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (p ParamDiagnostics) MarshalJSON() ([]byte, error) {
	type plain ParamDiagnostics
	return json.Marshal(struct {
		plain
		Rhat number `json:"rhat"`
		ESS  number `json:"ess"`
	}{plain(p), number(p.Rhat), number(p.ESS)})
}

func (d Diagnostics) MarshalJSON() ([]byte, error) {
	type plain Diagnostics
	return json.Marshal(struct {
		plain
		MaxRhat number `json:"max_rhat"`
		MinESS  number `json:"min_ess"`
	}{plain(d), number(d.MaxRhat), number(d.MinESS)})
}

func (e ErrorSuite) MarshalJSON() ([]byte, error) {
	type plain ErrorSuite
	return json.Marshal(struct {
		plain
		MeanAbsError number `json:"mean_abs_error"`
		MaxAbsError  number `json:"max_abs_error"`
		RMSE         number `json:"rmse"`
		Coverage     number `json:"coverage"`
		MeanCoverage number `json:"mean_coverage"`
		MeanWidth    number `json:"mean_width"`
		MaxWidth     number `json:"max_width"`
	}{
		plain(e),
		number(e.MeanAbsError), number(e.MaxAbsError), number(e.RMSE),
		number(e.Coverage), number(e.MeanCoverage),
		number(e.MeanWidth), number(e.MaxWidth),
	})
}

func (r Row) MarshalJSON() ([]byte, error) {
	type plain Row
	return json.Marshal(struct {
		plain
		Truth number `json:"truth"`
		Mean  number `json:"mean"`
		Lower number `json:"lower"`
		Upper number `json:"upper"`
	}{plain(r), number(r.Truth), number(r.Mean), number(r.Lower), number(r.Upper)})
}
