package schedule

import (
	"errors"
	"testing"
	"time"
)

// Tuesday 2024-06-18; used so "now" has a known weekday and hour.
func at(hour int) time.Time {
	return time.Date(2024, 6, 18, hour, 0, 0, 0, time.UTC)
}

func TestParseSlotVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dayTok  string
		timeTok string
		now     time.Time
		want    Slot
	}{
		{name: "day and 24h time", dayTok: "Mon", timeTok: "14:30", now: at(9),
			want: Slot{Day: time.Monday, Hour: 14, Minute: 30}},
		{name: "full day name", dayTok: "saturday", timeTok: "9", now: at(9),
			want: Slot{Day: time.Saturday, Hour: 9, Minute: 0}},
		{name: "am suffix", dayTok: "wed", timeTok: "8am", now: at(15),
			want: Slot{Day: time.Wednesday, Hour: 8, Minute: 0}},
		{name: "pm suffix", dayTok: "wed", timeTok: "2:30pm", now: at(9),
			want: Slot{Day: time.Wednesday, Hour: 14, Minute: 30}},
		{name: "short p suffix", dayTok: "fri", timeTok: "5p", now: at(9),
			want: Slot{Day: time.Friday, Hour: 17, Minute: 0}},
		{name: "12am is midnight", dayTok: "sun", timeTok: "12am", now: at(9),
			want: Slot{Day: time.Sunday, Hour: 0, Minute: 0}},
		{name: "12pm is noon", dayTok: "sun", timeTok: "12pm", now: at(9),
			want: Slot{Day: time.Sunday, Hour: 12, Minute: 0}},
		{name: "no day defaults to today", dayTok: "", timeTok: "14:30", now: at(9),
			want: Slot{Day: time.Tuesday, Hour: 14, Minute: 30}},
		{name: "afternoon shorthand bumps bare hour", dayTok: "", timeTok: "2:30", now: at(15),
			want: Slot{Day: time.Tuesday, Hour: 14, Minute: 30}},
		{name: "morning keeps bare hour", dayTok: "", timeTok: "2:30", now: at(9),
			want: Slot{Day: time.Tuesday, Hour: 2, Minute: 30}},
		{name: "explicit day disables shorthand", dayTok: "tue", timeTok: "2:30", now: at(15),
			want: Slot{Day: time.Tuesday, Hour: 2, Minute: 30}},
		{name: "explicit am disables shorthand", dayTok: "", timeTok: "2:30am", now: at(15),
			want: Slot{Day: time.Tuesday, Hour: 2, Minute: 30}},
		{name: "hour 12 and later never bumped", dayTok: "", timeTok: "12:05", now: at(15),
			want: Slot{Day: time.Tuesday, Hour: 12, Minute: 5}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSlot(tt.dayTok, tt.timeTok, tt.now)
			if err != nil {
				t.Fatalf("ParseSlot(%q, %q) error: %v", tt.dayTok, tt.timeTok, err)
			}
			if got != tt.want {
				t.Fatalf("ParseSlot(%q, %q) = %+v, want %+v", tt.dayTok, tt.timeTok, got, tt.want)
			}
		})
	}
}

func TestParseSlotInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dayTok  string
		timeTok string
		wantErr error
	}{
		{name: "bad day", dayTok: "xyz", timeTok: "14:30", wantErr: ErrBadDay},
		{name: "day too short", dayTok: "mo", timeTok: "14:30", wantErr: ErrBadDay},
		{name: "empty time", timeTok: "", wantErr: ErrBadTime},
		{name: "not a time", timeTok: "noon", wantErr: ErrBadTime},
		{name: "hour out of range", timeTok: "24:00", wantErr: ErrBadTime},
		{name: "minute out of range", timeTok: "10:75", wantErr: ErrBadTime},
		{name: "suffix hour zero", timeTok: "0pm", wantErr: ErrBadTime},
		{name: "suffix hour 13", timeTok: "13pm", wantErr: ErrBadTime},
		{name: "single digit minutes rejected", timeTok: "9:5", wantErr: ErrBadTime},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSlot(tt.dayTok, tt.timeTok, at(9))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseSlot(%q, %q) error = %v, want %v", tt.dayTok, tt.timeTok, err, tt.wantErr)
			}
		})
	}
}

func TestSlotString(t *testing.T) {
	t.Parallel()
	s := Slot{Day: time.Monday, Hour: 8, Minute: 5}
	if got := s.String(); got != "Mon 08:05" {
		t.Fatalf("String() = %q", got)
	}
}
