package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roniherschmann/linkpulse/internal/store"
)

func TestUsers(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clicks := []store.ClickEvent{
		{UserID: "alice", Timestamp: base},
		{UserID: "alice", Timestamp: base.Add(time.Hour)},
		{UserID: "bob", Timestamp: base.Add(2 * time.Hour)},
		{Timestamp: base.Add(3 * time.Hour)},
	}

	r := Users(clicks)
	assert.Equal(t, 2, r.TotalUsers)
	require.Len(t, r.Users, 2)
	assert.Equal(t, UserStat{UserID: "alice", Clicks: 2, LastClick: base.Add(time.Hour)}, r.Users[0])
	assert.Equal(t, []string{"alice", "bob"}, r.Chart.Labels)
	assert.Equal(t, 3, r.Chart.Total(), "anonymous clicks are excluded")
}

func TestUsersChartCapsAtTen(t *testing.T) {
	var clicks []store.ClickEvent
	for i := 0; i < 15; i++ {
		clicks = append(clicks, store.ClickEvent{UserID: fmt.Sprintf("u%02d", i)})
	}
	r := Users(clicks)
	assert.Len(t, r.Users, 15)
	assert.Len(t, r.Chart.Labels, TopUsersChart+1)
	assert.Equal(t, 15, r.Chart.Total())
}

func TestUserClicks(t *testing.T) {
	clicks := []store.ClickEvent{{ID: "1", UserID: "a"}, {ID: "2", UserID: "b"}, {ID: "3", UserID: "a"}}
	got := UserClicks(clicks, "a")
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[1].ID)
	assert.Empty(t, UserClicks(clicks, "zzz"))
}

func TestUserSummariesAndLinks(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clicks := []store.ClickEvent{
		{UserID: "alice", Slug: "one", Timestamp: base},
		{UserID: "alice", Slug: "two", Timestamp: base.Add(time.Minute)},
		{UserID: "alice", Slug: "two", Timestamp: base.Add(2 * time.Minute)},
		{UserID: "bob", Slug: "one", Timestamp: base},
	}

	sums := UserSummaries(clicks)
	require.Len(t, sums, 2)
	assert.Equal(t, UserSummary{UserID: "alice", Clicks: 3, Links: 2, LastClick: base.Add(2 * time.Minute)}, sums[0])
	assert.Equal(t, UserSummary{UserID: "bob", Clicks: 1, Links: 1, LastClick: base}, sums[1])

	links := UserLinks(UserClicks(clicks, "alice"))
	require.Len(t, links, 2)
	assert.Equal(t, UserLink{Slug: "two", Clicks: 2, LastClick: base.Add(2 * time.Minute)}, links[0])
	assert.Equal(t, "one", links[1].Slug)
}
