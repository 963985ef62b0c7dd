package shift

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Shift is a recurring time-of-day window. StartTime > EndTime means the window wraps past midnight.
type Shift struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Name      string             `json:"name" bson:"name"`
	StartTime string             `json:"start_time" bson:"start_time"` // HH:MM or HH:MM:SS
	EndTime   string             `json:"end_time" bson:"end_time"`
	Enabled   bool               `json:"enabled" bson:"enabled"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// TimeOfDay is seconds since midnight.
type TimeOfDay int

const secondsPerDay = 24 * 60 * 60

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}

	limits := []int{23, 59, 59}
	vals := []int{0, 0, 0}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = n
	}

	return TimeOfDay(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// TimeOfDayOf extracts the wall-clock time of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay(h*3600 + m*60 + s)
}

func (t TimeOfDay) String() string {
	v := int(t) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v%3600)/60, v%60)
}

// Window returns the parsed bounds of the shift.
func (s *Shift) Window() (start, end TimeOfDay, err error) {
	start, err = ParseTimeOfDay(s.StartTime)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseTimeOfDay(s.EndTime)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Overnight reports whether the window wraps past midnight.
func (s *Shift) Overnight() bool {
	start, end, err := s.Window()
	return err == nil && start > end
}
