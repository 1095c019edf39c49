package chat

import (
	"sort"
	"time"

	"courierchat/internal/models"
)

// DateGroup is one calendar day of a conversation, for the grouped-by-date
// view. Date is the day key in YYYY-MM-DD, messages sorted ascending by time.
type DateGroup struct {
	Date     string
	Messages []models.Message
}

// GroupByDate partitions messages into per-day groups in the given location.
// Groups are ordered ascending by date and messages within a group ascending
// by created_at; flattening the groups reproduces the chronological sequence.
// Pure function: empty input yields empty output.
func GroupByDate(msgs []models.Message, loc *time.Location) []DateGroup {
	if len(msgs) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	ordered := make([]models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var groups []DateGroup
	for _, m := range ordered {
		key := m.CreatedAt.In(loc).Format("2006-01-02")
		if n := len(groups); n > 0 && groups[n-1].Date == key {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DateGroup{Date: key, Messages: []models.Message{m}})
	}
	return groups
}
