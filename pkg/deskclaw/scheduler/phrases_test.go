package scheduler

import "testing"

func TestParseNaturalLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		schedule string
		jobType  string
		ok       bool
	}{
		{"every 5 minutes", "@every 5m", TypeEvery, true},
		{"every 10 mins", "@every 10m", TypeEvery, true},
		{"every 2 days", "@every 48h", TypeEvery, true},
		{"every hour", "@every 1h", TypeEvery, true},
		{"Hourly", "@every 1h", TypeEvery, true},
		{"daily", "0 0 * * *", TypeCron, true},
		{"daily at 9am", "0 9 * * *", TypeCron, true},
		{"every day at 18:45", "45 18 * * *", TypeCron, true},
		{"daily at 12am", "0 0 * * *", TypeCron, true},
		{"daily at 3:30pm", "30 15 * * *", TypeCron, true},
		{"weekly on friday", "0 0 * * 5", TypeCron, true},
		{"every monday at 8:30", "30 8 * * 1", TypeCron, true},
		{"in 10 minutes", "10m", TypeAt, true},

		{"every 0 minutes", "", "", false},
		{"daily at 25:00", "", "", false},
		{"daily at 13pm", "", "", false},
		{"weekly on funday", "", "", false},
		{"0 9 * * 1-5", "", "", false},
		{"@every 1h", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseNaturalLanguage(tt.input)
			if ok != tt.ok || got.Schedule != tt.schedule || got.Type != tt.jobType {
				t.Errorf("ParseNaturalLanguage(%q) = %+v, %v; want %q/%q, %v",
					tt.input, got, ok, tt.schedule, tt.jobType, tt.ok)
			}
		})
	}
}
