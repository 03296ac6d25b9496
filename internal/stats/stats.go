// Package stats turns a slug's click history into chart series. Every
// function here is pure: it reads the events it is given and nothing else.
package stats

import (
	"net/url"
	"sort"
	"strings"

	"github.com/roniherschmann/linkpulse/internal/geo"
	"github.com/roniherschmann/linkpulse/internal/store"
)

const Others = "Others"

// Top-N cutoffs per dimension.
const (
	TopOS            = 7
	TopDevices       = 7
	TopReferrers     = 5
	TopBotCategories = 5
	TopBotNames      = 7
	TopUsersChart    = 10
)

// Series is the {labels, data} payload every chart endpoint returns.
type Series struct {
	Labels []string `json:"labels"`
	Data   []int    `json:"data"`
}

// Total is the number of events the series accounts for.
func (s Series) Total() int {
	n := 0
	for _, v := range s.Data {
		n += v
	}
	return n
}

type entry struct {
	label string
	count int
}

func sorted(counts map[string]int) []entry {
	entries := make([]entry, 0, len(counts))
	for k, v := range counts {
		entries = append(entries, entry{k, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].label < entries[j].label
	})
	return entries
}

// TopN keeps the n largest groups and folds the remainder into Others, so
// the sum of Data always equals the sum of counts.
func TopN(counts map[string]int, n int) Series {
	s := Series{Labels: []string{}, Data: []int{}}
	rest := 0
	for i, e := range sorted(counts) {
		if i < n {
			s.Labels = append(s.Labels, e.label)
			s.Data = append(s.Data, e.count)
			continue
		}
		rest += e.count
	}
	if rest > 0 {
		s.Labels = append(s.Labels, Others)
		s.Data = append(s.Data, rest)
	}
	return s
}

// countBy groups events by key; events for which key reports false are skipped.
func countBy(clicks []store.ClickEvent, key func(store.ClickEvent) (string, bool)) map[string]int {
	counts := make(map[string]int)
	for _, c := range clicks {
		if k, ok := key(c); ok {
			counts[k]++
		}
	}
	return counts
}

func orUnknown(s string) (string, bool) {
	if s == "" {
		return "Unknown", true
	}
	return s, true
}

func OS(clicks []store.ClickEvent) Series {
	return TopN(countBy(clicks, func(c store.ClickEvent) (string, bool) { return orUnknown(c.Device.OS) }), TopOS)
}

func Devices(clicks []store.ClickEvent) Series {
	return TopN(countBy(clicks, func(c store.ClickEvent) (string, bool) { return orUnknown(c.Device.DeviceType) }), TopDevices)
}

func Referrers(clicks []store.ClickEvent) Series {
	return TopN(countBy(clicks, func(c store.ClickEvent) (string, bool) { return ReferrerLabel(c.Referer), true }), TopReferrers)
}

var referrerLabels = []struct {
	match func(host string) bool
	label string
}{
	{func(h string) bool { return strings.Contains(h, "google") }, "Google"},
	{func(h string) bool { return strings.Contains(h, "bing") }, "Bing"},
	{func(h string) bool { return strings.Contains(h, "yahoo") }, "Yahoo"},
	{func(h string) bool { return strings.Contains(h, "facebook") }, "Facebook"},
	{func(h string) bool {
		return strings.Contains(h, "twitter") || h == "x.com" || strings.HasSuffix(h, ".x.com") || h == "t.co"
	}, "Twitter/X"},
	{func(h string) bool { return strings.Contains(h, "linkedin") }, "LinkedIn"},
	{func(h string) bool { return strings.Contains(h, "reddit") }, "Reddit"},
}

// ReferrerLabel reduces a Referer header to the label it is charted under.
func ReferrerLabel(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "Direct Traffic"
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return "Invalid URL"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, r := range referrerLabels {
		if r.match(host) {
			return r.label
		}
	}
	return host
}

// Countries groups events that resolved to a country by their stored
// location string, falling back to the country name when it is missing.
func Countries(clicks []store.ClickEvent, n int) Series {
	return TopN(countBy(clicks, func(c store.ClickEvent) (string, bool) {
		if c.Country == "" {
			return "", false
		}
		if c.Location != "" && c.Location != geo.Unknown {
			return c.Location, true
		}
		return geo.CountryName(c.Country), true
	}), n)
}

type BotTotals struct {
	Human int `json:"human"`
	Bot   int `json:"bot"`
	Total int `json:"total"`
}

type BotReport struct {
	TrafficType   Series    `json:"trafficType"`
	BotCategories Series    `json:"botCategories"`
	BotNames      Series    `json:"botNames"`
	Totals        BotTotals `json:"totals"`
}

func Bots(clicks []store.ClickEvent) BotReport {
	var totals BotTotals
	categories := make(map[string]int)
	names := make(map[string]int)
	for _, c := range clicks {
		if !c.IsBot {
			totals.Human++
			continue
		}
		totals.Bot++
		cat, _ := orUnknown(c.BotCategory)
		name, _ := orUnknown(c.BotName)
		categories[cat]++
		names[name]++
	}
	totals.Total = totals.Human + totals.Bot
	return BotReport{
		TrafficType:   Series{Labels: []string{"Human Users", "Bots"}, Data: []int{totals.Human, totals.Bot}},
		BotCategories: TopN(categories, TopBotCategories),
		BotNames:      TopN(names, TopBotNames),
		Totals:        totals,
	}
}
