package models

import (
	"testing"
	"time"
)

func TestTimestamp_Time(t *testing.T) {
	tests := []struct {
		name  string
		ts    Timestamp
		want  time.Time
		valid bool
	}{
		{"rfc3339", "2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"offset", "2024-05-01T12:00:00+02:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"no zone", "2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"fraction no zone", "2024-05-01T10:00:00.250000", time.Date(2024, 5, 1, 10, 0, 0, 250000000, time.UTC), true},
		{"space separator", "2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.ts.Time()
			if ok != tt.valid {
				t.Fatalf("Time() ok = %v, expected %v", ok, tt.valid)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("Time() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTimestamp_Before(t *testing.T) {
	tests := []struct {
		name string
		a, b Timestamp
		want bool
	}{
		{"instant order", "2024-05-01T12:00:00+02:00", "2024-05-01T10:30:00", true},
		{"equal", "2024-05-01T10:00:00", "2024-05-01T10:00:00Z", false},
		{"lexical fallback", "abc", "abd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Before(tt.b); got != tt.want {
				t.Errorf("%q.Before(%q) = %v, expected %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDelivered(t *testing.T) {
	for status, want := range map[string]bool{
		"sent":    true,
		"Success": true,
		"failed":  false,
		"pending": false,
		"":        false,
	} {
		if got := Delivered(status); got != want {
			t.Errorf("Delivered(%q) = %v, expected %v", status, got, want)
		}
	}
}

func TestTrafficStatus_Label(t *testing.T) {
	if StatusDDoSDetected.Label() != "DDoS Detected" || StatusSafe.Label() != "Safe" {
		t.Error("Unexpected status labels")
	}
	if TrafficStatus("custom").Label() != "custom" {
		t.Error("Expected unknown status to label as itself")
	}
}
