package stats

import (
	"sort"
	"time"

	"github.com/roniherschmann/linkpulse/internal/store"
)

type UserStat struct {
	UserID    string    `json:"userId"`
	Clicks    int       `json:"clicks"`
	LastClick time.Time `json:"lastClick"`
}

type UserReport struct {
	Chart      Series     `json:"chart"`
	Users      []UserStat `json:"users"`
	TotalUsers int        `json:"totalUsers"`
}

func groupUsers(clicks []store.ClickEvent) []UserStat {
	byUser := make(map[string]*UserStat)
	for _, c := range clicks {
		if c.UserID == "" {
			continue
		}
		u, ok := byUser[c.UserID]
		if !ok {
			u = &UserStat{UserID: c.UserID}
			byUser[c.UserID] = u
		}
		u.Clicks++
		if c.Timestamp.After(u.LastClick) {
			u.LastClick = c.Timestamp
		}
	}
	users := make([]UserStat, 0, len(byUser))
	for _, u := range byUser {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Clicks != users[j].Clicks {
			return users[i].Clicks > users[j].Clicks
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

// Users reports per-user engagement on a single link. Events without a
// user id are excluded.
func Users(clicks []store.ClickEvent) UserReport {
	users := groupUsers(clicks)
	counts := make(map[string]int, len(users))
	for _, u := range users {
		counts[u.UserID] = u.Clicks
	}
	return UserReport{
		Chart:      TopN(counts, TopUsersChart),
		Users:      users,
		TotalUsers: len(users),
	}
}

// UserClicks keeps only the events attributed to userID.
func UserClicks(clicks []store.ClickEvent, userID string) []store.ClickEvent {
	var out []store.ClickEvent
	for _, c := range clicks {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

type UserSummary struct {
	UserID    string    `json:"userId"`
	Clicks    int       `json:"totalClicks"`
	Links     int       `json:"uniqueLinks"`
	LastClick time.Time `json:"lastClick"`
}

// UserSummaries rolls clicks up per user across every link.
func UserSummaries(clicks []store.ClickEvent) []UserSummary {
	links := make(map[string]map[string]struct{})
	for _, c := range clicks {
		if c.UserID == "" {
			continue
		}
		if links[c.UserID] == nil {
			links[c.UserID] = make(map[string]struct{})
		}
		links[c.UserID][c.Slug] = struct{}{}
	}
	users := groupUsers(clicks)
	out := make([]UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, UserSummary{UserID: u.UserID, Clicks: u.Clicks, Links: len(links[u.UserID]), LastClick: u.LastClick})
	}
	return out
}

type UserLink struct {
	Slug      string    `json:"slug"`
	Clicks    int       `json:"clicks"`
	LastClick time.Time `json:"lastClick"`
}

// UserLinks groups one user's clicks by slug, busiest first.
func UserLinks(clicks []store.ClickEvent) []UserLink {
	bySlug := make(map[string]*UserLink)
	for _, c := range clicks {
		l, ok := bySlug[c.Slug]
		if !ok {
			l = &UserLink{Slug: c.Slug}
			bySlug[c.Slug] = l
		}
		l.Clicks++
		if c.Timestamp.After(l.LastClick) {
			l.LastClick = c.Timestamp
		}
	}
	out := make([]UserLink, 0, len(bySlug))
	for _, l := range bySlug {
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Clicks != out[j].Clicks {
			return out[i].Clicks > out[j].Clicks
		}
		return out[i].Slug < out[j].Slug
	})
	return out
}
