package posterior

import (
	"sort"
)

// Recovery compares one node's posterior against the value that generated
// the data. Used by the synthetic-data commands and tests - most analyses on
// real data have no Truth to compare against.
type Recovery struct {
	Name    string
	Truth   float64
	Mean    float64
	Lo      float64
	Hi      float64
	Covered bool // Truth falls inside the credible interval
}

// Compare builds a recovery row for every named truth at the given interval
// level, in name order. With well-calibrated inference the true value should
// land inside a 95% interval about 95% of the time - a Covered=false row now
// and then is expected, a pattern of them is not.
func Compare(r *Result, truth map[string]float64, level float64) ([]Recovery, error) {
	names := make([]string, 0, len(truth))
	for nm := range truth {
		names = append(names, nm)
	}
	sort.Strings(names)

	out := make([]Recovery, 0, len(names))
	for _, nm := range names {
		mean, err := r.Mean(nm)
		if err != nil {
			return nil, err
		}
		lo, hi, err := r.CredibleInterval(nm, level)
		if err != nil {
			return nil, err
		}
		tv := truth[nm]
		out = append(out, Recovery{
			Name:    nm,
			Truth:   tv,
			Mean:    mean,
			Lo:      lo,
			Hi:      hi,
			Covered: tv >= lo && tv <= hi,
		})
	}
	return out, nil
}
