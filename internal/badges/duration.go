package badges

import "time"

// Duration is the elapsed time between registration and completion, largest unit
// first. Months and years are calendar based; days are the total days modulo 30,
// so month/day pairs are approximate.
type Duration struct {
	Years   int `json:"tahun"`
	Months  int `json:"bulan"`
	Days    int `json:"hari"`
	Hours   int `json:"jam"`
	Minutes int `json:"menit"`
	Seconds int `json:"detik"`
}

// Elapsed computes the breakdown from start to end. A negative span yields zero.
func Elapsed(start, end time.Time) Duration {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return Duration{}
	}
	months := monthsBetween(start, end)
	total := end.Sub(start)
	return Duration{
		Years:   months / 12,
		Months:  months % 12,
		Days:    int(total/(24*time.Hour)) % 30,
		Hours:   int(total/time.Hour) % 24,
		Minutes: int(total/time.Minute) % 60,
		Seconds: int(total/time.Second) % 60,
	}
}

func monthsBetween(a, b time.Time) int {
	m := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if m > 0 && a.AddDate(0, m, 0).After(b) {
		m--
	}
	if m < 0 {
		return 0
	}
	return m
}
