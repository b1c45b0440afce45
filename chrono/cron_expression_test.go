package chrono

import (
	"errors"
	"testing"
	"time"
)

func TestParseCronExpression_Valid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"every minute", "* * * * *"},
		{"every 5 minutes", "*/5 * * * *"},
		{"hourly", "0 * * * *"},
		{"daily at midnight", "0 0 * * *"},
		{"weekdays at 9am", "0 9 * * 1-5"},
		{"specific minutes", "0,15,30,45 * * * *"},
		{"specific day and time", "30 14 1 * *"},
		{"range with step", "0-30/10 * * * *"},
		{"complex", "5,10,15 1-3 1,15 1-6 0,6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			if err != nil {
				t.Fatalf("ParseCronExpression(%q) returned error: %v", tt.expr, err)
			}
			if ce == nil {
				t.Fatal("ParseCronExpression returned nil")
			}
		})
	}
}

func TestParseCronExpression_Macros(t *testing.T) {
	macros := []string{"@yearly", "@annually", "@monthly", "@weekly", "@daily", "@midnight", "@hourly"}
	for _, m := range macros {
		t.Run(m, func(t *testing.T) {
			ce, err := ParseCronExpression(m)
			if err != nil {
				t.Fatalf("ParseCronExpression(%q) returned error: %v", m, err)
			}
			if ce == nil {
				t.Fatal("ParseCronExpression returned nil")
			}
		})
	}
}

func TestParseCronExpression_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{"too few fields", "* * *"},
		{"too many fields", "* * * * * *"},
		{"invalid minute", "60 * * * *"},
		{"invalid hour", "* 24 * * *"},
		{"invalid day", "* * 32 * *"},
		{"invalid month", "* * * 13 *"},
		{"invalid dow", "* * * * 7"},
		{"invalid range", "* * 5-3 * *"},
		{"invalid step", "*/0 * * * *"},
		{"non-numeric", "abc * * * *"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCronExpression(tt.expr)
			if err == nil {
				t.Fatalf("ParseCronExpression(%q) expected error, got nil", tt.expr)
			}
			if !errors.Is(err, ErrInvalidCronExpr) {
				t.Fatalf("expected ErrInvalidCronExpr, got: %v", err)
			}
		})
	}
}

func TestCronExpression_NextInstantAfter(t *testing.T) {
	ce, _ := ParseCronExpression("* * * * *")
	from := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)
	next := ce.NextInstantAfter(from, time.UTC)
	expected := time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, next)
	}
}

func TestCronExpression_NextInstantAfterEvery5Min(t *testing.T) {
	ce, _ := ParseCronExpression("*/5 * * * *")
	from := time.Date(2024, 1, 15, 10, 7, 0, 0, time.UTC)
	next := ce.NextInstantAfter(from, time.UTC)
	expected := time.Date(2024, 1, 15, 10, 10, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, next)
	}
}

func TestCronExpression_NextInstantAfterHourly(t *testing.T) {
	ce, _ := ParseCronExpression("@hourly")
	from := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	next := ce.NextInstantAfter(from, time.UTC)
	expected := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, next)
	}
}

func TestCronExpression_NextInstantAfterWeekday(t *testing.T) {
	ce, _ := ParseCronExpression("0 9 * * 1-5")
	from := time.Date(2024, 1, 13, 10, 0, 0, 0, time.UTC)
	next := ce.NextInstantAfter(from, time.UTC)
	expected := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, next)
	}
}

func TestCronExpression_NextInstantAfterSpecificMonths(t *testing.T) {
	ce, _ := ParseCronExpression("0 0 1 1,4,7,10 *")
	from := time.Date(2024, 2, 15, 10, 0, 0, 0, time.UTC)
	next := ce.NextInstantAfter(from, time.UTC)
	expected := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(expected) {
		t.Fatalf("expected %v, got %v", expected, next)
	}
}

func TestCronExpression_String(t *testing.T) {
	ce, _ := ParseCronExpression("*/5 * * * *")
	if ce.String() != "*/5 * * * *" {
		t.Fatalf("expected '*/5 * * * *', got '%s'", ce.String())
	}
}

func TestMakeRange(t *testing.T) {
	tests := []struct {
		start, end, step int
		expected         []int
	}{
		{0, 5, 1, []int{0, 1, 2, 3, 4, 5}},
		{0, 10, 3, []int{0, 3, 6, 9}},
		{1, 1, 1, []int{1}},
		{0, 59, 15, []int{0, 15, 30, 45}},
	}
	for _, tt := range tests {
		result := makeRange(tt.start, tt.end, tt.step)
		if len(result) != len(tt.expected) {
			t.Fatalf("expected %v, got %v", tt.expected, result)
		}
		for i, v := range result {
			if v != tt.expected[i] {
				t.Fatalf("expected %v, got %v", tt.expected, result)
			}
		}
	}
}

func TestIntSliceContains(t *testing.T) {
	slice := []int{0, 5, 10, 15, 20}
	if !intSliceContains(slice, 0) {
		t.Fatal("should contain 0")
	}
	if !intSliceContains(slice, 15) {
		t.Fatal("should contain 15")
	}
	if intSliceContains(slice, 7) {
		t.Fatal("should not contain 7")
	}
	if intSliceContains(slice, -1) {
		t.Fatal("should not contain -1")
	}
}

func TestUniqueInts(t *testing.T) {
	input := []int{1, 2, 3, 2, 1, 4, 3}
	result := uniqueInts(input)
	if len(result) != 4 {
		t.Fatalf("expected 4 unique values, got %d: %v", len(result), result)
	}
}
