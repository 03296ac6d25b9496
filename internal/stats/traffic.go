package stats

import (
	"errors"
	"fmt"
	"time"

	"github.com/roniherschmann/linkpulse/internal/store"
)

var ErrInvalidPeriod = errors.New("invalid period")

type Period struct {
	Token   string
	Hourly  bool
	Buckets int
}

var periods = map[string]Period{
	"24h": {Token: "24h", Hourly: true, Buckets: 24},
	"3d":  {Token: "3d", Buckets: 3},
	"7d":  {Token: "7d", Buckets: 7},
	"30d": {Token: "30d", Buckets: 30},
	"45d": {Token: "45d", Buckets: 45},
}

func ParsePeriod(token string) (Period, error) {
	p, ok := periods[token]
	if !ok {
		return Period{}, fmt.Errorf("%w %q: want one of 24h, 3d, 7d, 30d, 45d", ErrInvalidPeriod, token)
	}
	return p, nil
}

type Traffic struct {
	Period string   `json:"period"`
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
	Total  int      `json:"total"`
}

// bucketStart truncates t to the start of its hour or calendar day in loc.
// Hours are built with time.Date so half-hour zones align on local hours.
func bucketStart(t time.Time, hourly bool, loc *time.Location) time.Time {
	t = t.In(loc)
	if hourly {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// TrafficSeries buckets clicks into a zero-filled series of exactly
// p.Buckets entries ending with the bucket that contains now.
func TrafficSeries(clicks []store.ClickEvent, p Period, now time.Time, loc *time.Location) Traffic {
	if loc == nil {
		loc = time.UTC
	}
	last := bucketStart(now, p.Hourly, loc)
	starts := make([]time.Time, p.Buckets)
	index := make(map[int64]int, p.Buckets)
	for i := 0; i < p.Buckets; i++ {
		back := p.Buckets - 1 - i
		if p.Hourly {
			starts[i] = last.Add(-time.Duration(back) * time.Hour)
		} else {
			starts[i] = last.AddDate(0, 0, -back)
		}
		index[starts[i].Unix()] = i
	}

	out := Traffic{Period: p.Token, Labels: make([]string, p.Buckets), Data: make([]int, p.Buckets)}
	layout := "2006-01-02"
	if p.Hourly {
		layout = "15:04"
	}
	seen := make(map[string]bool, p.Buckets)
	for i, s := range starts {
		out.Labels[i] = s.Format(layout)
		if seen[out.Labels[i]] {
			// A repeated wall-clock hour after a DST fall-back.
			out.Labels[i-1] = starts[i-1].Format(layout + " MST")
			out.Labels[i] = s.Format(layout + " MST")
		}
		seen[out.Labels[i]] = true
	}
	for _, c := range clicks {
		i, ok := bucketIndex(c.Timestamp, starts[0], index, p.Hourly, loc)
		if ok && i < p.Buckets {
			out.Data[i]++
			out.Total++
		}
	}
	return out
}

// bucketIndex places hourly clicks by elapsed time since the first bucket so
// ambiguous local hours stay distinct; daily clicks go by calendar day.
func bucketIndex(t, first time.Time, index map[int64]int, hourly bool, loc *time.Location) (int, bool) {
	if hourly {
		d := t.Sub(first)
		if d < 0 {
			return 0, false
		}
		return int(d / time.Hour), true
	}
	i, ok := index[bucketStart(t, false, loc).Unix()]
	return i, ok
}
