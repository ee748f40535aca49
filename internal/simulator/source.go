// Package simulator stands in for the flight computer during development: it
// replays recorded flight data, or a synthetic flight, as MAVLink composite
// frames on a fake serial port.
package simulator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/banshee-data/ground.control/internal/mavlink"
	"github.com/banshee-data/ground.control/internal/units"
)

// Record is one composite sensor sample.
type Record = mavlink.Composite

// Source yields records in transmission order. ok is false once exhausted.
type Source interface {
	Next() (rec Record, ok bool)
}

// SliceSource replays a fixed list of records, optionally looping with the
// boot clock carried forward.
type SliceSource struct {
	Records []Record
	Loop    bool

	i      int
	offset uint32
}

// Next implements Source.
func (s *SliceSource) Next() (Record, bool) {
	if len(s.Records) == 0 {
		return Record{}, false
	}
	if s.i == len(s.Records) {
		if !s.Loop {
			return Record{}, false
		}
		last := s.Records[len(s.Records)-1].TimeBootMs
		s.offset += last + 1
		s.i = 0
	}
	rec := s.Records[s.i]
	rec.TimeBootMs += s.offset
	s.i++
	return rec, true
}

// csvColumns maps CSV headers to IMU axes. Time is in seconds since boot;
// accelerations in m/s², angular rates in rad/s and magnetic field in mG.
var csvColumns = []string{
	"time",
	"bmx_x_accel", "bmx_y_accel", "bmx_z_accel",
	"bmx_x_gyro", "bmx_y_gyro", "bmx_z_gyro",
	"bmx_x_magn", "bmx_y_magn", "bmx_z_magn",
}

// LoadCSV reads recorded flight data. The file must have a header row with
// the time and bmx_* sensor columns; other columns are ignored.
func LoadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		j, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("csv missing column %q", name)
		}
		cols[i] = j
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		var v [10]float64
		for i, c := range cols {
			if c >= len(row) {
				return nil, fmt.Errorf("csv line %d: missing %s", line, csvColumns[i])
			}
			v[i], err = strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
			if err != nil {
				return nil, fmt.Errorf("csv line %d %s: %w", line, csvColumns[i], err)
			}
		}
		records = append(records, fromPhysical(v[0], v[1:4], v[4:7], v[7:10]))
	}
	return records, nil
}

func fromPhysical(t float64, acc, gyro, mag []float64) Record {
	rec := Record{TimeBootMs: uint32(math.Max(0, math.Round(t*1000)))}
	rec.XAcc, rec.YAcc, rec.ZAcc = milliG(acc[0]), milliG(acc[1]), milliG(acc[2])
	rec.XGyro, rec.YGyro, rec.ZGyro = milli(gyro[0]), milli(gyro[1]), milli(gyro[2])
	rec.XMag, rec.YMag, rec.ZMag = clamp16(mag[0]), clamp16(mag[1]), clamp16(mag[2])
	return rec
}

func milliG(a float64) int16 { return clamp16(a / units.StandardGravity * 1000) }
func milli(v float64) int16  { return clamp16(v * 1000) }

func clamp16(v float64) int16 {
	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
}

// Flight synthesises a sounding rocket flight: a short boost, coast with
// slow roll, then descent under parachute. It never runs out; after landing
// it reports the rocket at rest.
type Flight struct {
	// Step is the boot-clock spacing between records in milliseconds.
	Step uint32
	// Noise is the standard deviation of sensor noise in raw units.
	Noise float64

	rng *rand.Rand
	t   uint32
}

// NewFlight returns a synthetic flight sampled every step milliseconds.
func NewFlight(step uint32, seed uint64) *Flight {
	if step == 0 {
		step = 10
	}
	return &Flight{
		Step:  step,
		Noise: 15,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next implements Source.
func (f *Flight) Next() (Record, bool) {
	t := float64(f.t) / 1000
	var accZ, rollRate float64
	switch {
	case t < 2:
		accZ = units.StandardGravity
	case t < 5:
		accZ = 6 * units.StandardGravity
	case t < 20:
		accZ = -0.3 * units.StandardGravity
		rollRate = 0.5 * math.Sin(t)
	case t < 120:
		accZ = units.StandardGravity + 0.5*math.Sin(3*t)
		rollRate = 0.2 * math.Sin(0.7*t)
	default:
		accZ = units.StandardGravity
	}
	heading := rollRate * t

	rec := fromPhysical(t,
		[]float64{0, 0, accZ},
		[]float64{0.02 * math.Sin(2*t), 0.02 * math.Cos(2*t), rollRate},
		[]float64{250 * math.Cos(heading), 250 * math.Sin(heading), -400},
	)
	for _, p := range []*int16{&rec.XAcc, &rec.YAcc, &rec.ZAcc, &rec.XGyro, &rec.YGyro, &rec.ZGyro, &rec.XMag, &rec.YMag, &rec.ZMag} {
		*p = clamp16(float64(*p) + f.rng.NormFloat64()*f.Noise)
	}
	rec.TimeBootMs = f.t
	f.t += f.Step
	return rec, true
}
