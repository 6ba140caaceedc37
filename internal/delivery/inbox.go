package delivery

import (
	"time"

	"github.com/ruangobrol/backend/internal/store"
)

// DefaultTimezone is used when the caller supplies none. Falls back to a
// fixed UTC+7 zone when tzdata is unavailable.
const DefaultTimezone = "Asia/Jakarta"

// Location resolves a caller-supplied timezone name.
func Location(name string) *time.Location {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("WIB", 7*3600)
	}
	return loc
}

// InboxItem is the per-member view model emitted on every send and
// returned by the list endpoints.
type InboxItem struct {
	ConversationID int64        `json:"conversation_id"`
	Kind           string       `json:"kind"`
	Name           string       `json:"name"`
	Image          string       `json:"image"`
	Unread         int          `json:"unread_count"`
	OtherUserID    int64        `json:"other_user_id,omitempty"`
	OtherOnline    bool         `json:"other_online"`
	LastMessage    *LastMessage `json:"last_message"`
}

type LastMessage struct {
	Content   string    `json:"content"`
	Sender    string    `json:"sender"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"created_at"`
}

func NewLastMessage(m *store.Message, loc *time.Location) *LastMessage {
	if m == nil {
		return nil
	}
	return &LastMessage{
		Content:   m.Content,
		Sender:    m.SenderName,
		Time:      TimeLabel(m.CreatedAt, loc),
		CreatedAt: m.CreatedAt,
	}
}

// TimeLabel renders a preview timestamp: clock time for today, "Kemarin"
// for yesterday, a date for anything older.
func TimeLabel(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	switch daysAgo(lt, loc) {
	case 0:
		return lt.Format("15:04")
	case 1:
		return "Kemarin"
	default:
		return lt.Format("02-01-2006")
	}
}

// DayLabel is the date-group heading: "Hari Ini", "Kemarin", or the date.
func DayLabel(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	switch daysAgo(lt, loc) {
	case 0:
		return "Hari Ini"
	case 1:
		return "Kemarin"
	default:
		return lt.Format("02-01-2006")
	}
}

func daysAgo(lt time.Time, loc *time.Location) int {
	y, m, d := lt.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, loc)
	ny, nm, nd := time.Now().In(loc).Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	return int(today.Sub(day) / (24 * time.Hour))
}

// DayGroup is one calendar-day bucket of history, newest day first.
type DayGroup struct {
	Label    string           `json:"label"`
	Date     string           `json:"date"`
	Messages []MessagePayload `json:"messages"`
}

// GroupByDay buckets messages (already newest-first) by the member's
// local date. Groups come out newest-first; order within a group follows
// the input.
func GroupByDay(msgs []store.Message, loc *time.Location) []DayGroup {
	var groups []DayGroup
	index := make(map[string]int)

	for i := range msgs {
		m := &msgs[i]
		date := m.CreatedAt.In(loc).Format("2006-01-02")
		gi, ok := index[date]
		if !ok {
			groups = append(groups, DayGroup{
				Label: DayLabel(m.CreatedAt, loc),
				Date:  date,
			})
			gi = len(groups) - 1
			index[date] = gi
		}
		groups[gi].Messages = append(groups[gi].Messages, NewMessagePayload(m, loc))
	}
	return groups
}
