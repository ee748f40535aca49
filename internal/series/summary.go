package series

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the retained samples of a series.
type Summary struct {
	Count     int     `json:"count"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"stddev"`
	FirstTime float64 `json:"first_time"`
	LastTime  float64 `json:"last_time"`
}

// Summary computes value statistics over the retained samples. An empty
// series yields the zero Summary.
func (s *Series) Summary() Summary {
	pts := s.Points()
	if len(pts) == 0 {
		return Summary{}
	}

	values := make([]float64, len(pts))
	for i, p := range pts {
		values[i] = p.Value
	}

	sum := Summary{
		Count:     len(values),
		Min:       floats.Min(values),
		Max:       floats.Max(values),
		FirstTime: pts[0].Time,
		LastTime:  pts[len(pts)-1].Time,
	}
	if len(values) > 1 {
		sum.Mean, sum.StdDev = stat.MeanStdDev(values, nil)
	} else {
		sum.Mean = values[0]
	}
	return sum
}
