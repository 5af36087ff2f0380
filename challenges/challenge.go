package challenges

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/climate-crusade/internal/utils"
	"github.com/pkg/errors"
)

// Date accepts both full timestamps and bare calendar dates from the challenges table.
type Date struct {
	time.Time
	DateOnly bool
}

const dateLayout = "2006-01-02"

func (d *Date) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "[Date.UnmarshalJSON]")
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, *raw); err == nil {
		*d = Date{Time: t}
		return nil
	}
	t, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return errors.Errorf("[Date.UnmarshalJSON] unrecognised date %q", *raw)
	}
	*d = Date{Time: t, DateOnly: true}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	if d.DateOnly {
		return json.Marshal(d.Format(dateLayout))
	}
	return json.Marshal(d.Format(time.RFC3339))
}

type Challenge struct {
	ID           string          `json:"id"`
	CreatedAt    Date            `json:"created_at"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	PointsReward int             `json:"points_reward"`
	Criteria     json.RawMessage `json:"criteria,omitempty"`
	StartDate    Date            `json:"start_date"`
	EndDate      Date            `json:"end_date"`
	IsActive     *bool           `json:"is_active,omitempty"`
}

// Active reports whether the challenge is switched on and now falls in its date range.
// A missing is_active counts as active; a date-only end date includes that whole day.
func (c *Challenge) Active(now time.Time) bool {
	if !utils.ValueOr(c.IsActive, true) {
		return false
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate.Time) {
		return false
	}
	if !c.EndDate.IsZero() {
		end := c.EndDate.Time
		if c.EndDate.DateOnly {
			end = end.AddDate(0, 0, 1)
			return now.Before(end)
		}
		return !now.After(end)
	}
	return true
}

// Active filters list down to the challenges running at now, keeping their order.
func Active(list []*Challenge, now time.Time) []*Challenge {
	active := make([]*Challenge, 0, len(list))
	for _, c := range list {
		if c.Active(now) {
			active = append(active, c)
		}
	}
	return active
}

// SortByEnd orders challenges soonest-ending first; open-ended challenges go last.
func SortByEnd(list []*Challenge) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].EndDate, list[j].EndDate
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.Before(b.Time)
	})
}

type Repo interface {
	List(ctx context.Context) ([]*Challenge, error)
}
