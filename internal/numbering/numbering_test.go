package numbering

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"billing/internal/core"
)

func TestFormat(t *testing.T) {
	cases := []struct {
		date core.Date
		seq  int64
		want string
	}{
		{core.NewDate(2024, 3, 7), 7, "INV-20240307-0007"},
		{core.NewDate(2024, 12, 31), 1, "INV-20241231-0001"},
		{core.NewDate(2025, 1, 1), 9999, "INV-20250101-9999"},
		{core.NewDate(2025, 1, 1), 12345, "INV-20250101-12345"},
	}
	for _, tc := range cases {
		got, err := Format(tc.date, tc.seq)
		if err != nil {
			t.Fatalf("Format(%s, %d): %v", tc.date, tc.seq, err)
		}
		if got != tc.want {
			t.Errorf("Format(%s, %d) = %q, want %q", tc.date, tc.seq, got, tc.want)
		}
	}
}

func TestFormatInvalid(t *testing.T) {
	if _, err := Format(core.Date{}, 1); !core.IsValidation(err) {
		t.Fatalf("zero date: expected validation error, got %v", err)
	}
	if _, err := Format(core.NewDate(2024, 1, 1), 0); !core.IsValidation(err) {
		t.Fatalf("zero seq: expected validation error, got %v", err)
	}
}

func TestDayPrefix(t *testing.T) {
	if got := DayPrefix(core.NewDate(2024, 3, 7)); got != "INV-20240307" {
		t.Fatalf("got %q", got)
	}
}

func TestParse(t *testing.T) {
	d, seq, err := Parse("INV-20240307-0007")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.String() != "2024-03-07" || seq != 7 {
		t.Fatalf("got %s %d", d, seq)
	}
	if _, seq, err := Parse("INV-20250101-12345"); err != nil || seq != 12345 {
		t.Fatalf("wide sequence: %d %v", seq, err)
	}
	for _, bad := range []string{"", "INV-2024-0001", "ABC-20240307-0001", "INV-20241340-0001", "INV-20240307-00x1", "INV-20240307-7"} {
		if _, _, err := Parse(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	date := core.NewDate(2026, 2, 28)
	for _, seq := range []int64{1, 42, 999, 10000} {
		no, err := Format(date, seq)
		if err != nil {
			t.Fatal(err)
		}
		d, s, err := Parse(no)
		if err != nil {
			t.Fatalf("parse %q: %v", no, err)
		}
		if !d.Equal(date.Time) || s != seq {
			t.Fatalf("round trip %q -> %s %d", no, d, s)
		}
	}
}

// fakeSequencer keeps counters and existing numbers in memory.
type fakeSequencer struct {
	mu       sync.Mutex
	counters map[string]int64
	existing map[string]bool
	err      error
}

func newFakeSequencer(existing ...string) *fakeSequencer {
	f := &fakeSequencer{counters: map[string]int64{}, existing: map[string]bool{}}
	for _, no := range existing {
		f.existing[no] = true
	}
	return f
}

func (f *fakeSequencer) NextSequence(_ context.Context, prefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counters[prefix]++
	return f.counters[prefix], nil
}

func (f *fakeSequencer) CountInvoicesWithPrefix(_ context.Context, prefix string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for no := range f.existing {
		if strings.HasPrefix(no, prefix) {
			n++
		}
	}
	return n, nil
}

func (f *fakeSequencer) InvoiceNoExists(_ context.Context, no string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[no], nil
}

func TestCounterAllocator(t *testing.T) {
	ctx := context.Background()
	date := core.NewDate(2024, 3, 7)
	seq := newFakeSequencer()
	var a CounterAllocator

	for want := int64(1); want <= 3; want++ {
		got, err := a.Next(ctx, seq, date)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("got %d want %d", got, want)
		}
	}

	// Another day starts over.
	got, err := a.Next(ctx, seq, core.NewDate(2024, 3, 8))
	if err != nil || got != 1 {
		t.Fatalf("new day: got %d err %v", got, err)
	}
}

func TestCounterAllocatorSkipsTakenNumbers(t *testing.T) {
	seq := newFakeSequencer("INV-20240307-0001", "INV-20240307-0002")
	got, err := CounterAllocator{}.Next(context.Background(), seq, core.NewDate(2024, 3, 7))
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d want 3", got)
	}
}

func TestCountAllocator(t *testing.T) {
	ctx := context.Background()
	date := core.NewDate(2024, 3, 7)

	seq := newFakeSequencer("INV-20240307-0001", "INV-20240307-0002", "INV-20240306-0001")
	got, err := CountAllocator{}.Next(ctx, seq, date)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d want 3", got)
	}

	// 0001 deleted: count is 1 but 0002 is still live.
	seq = newFakeSequencer("INV-20240307-0002")
	got, err = CountAllocator{}.Next(ctx, seq, date)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 {
		t.Fatalf("got %d want 3", got)
	}
}

func TestAllocatorErrors(t *testing.T) {
	boom := errors.New("boom")
	seq := newFakeSequencer()
	seq.err = boom
	date := core.NewDate(2024, 3, 7)
	if _, err := (CounterAllocator{}).Next(context.Background(), seq, date); !errors.Is(err, boom) {
		t.Fatalf("counter: got %v", err)
	}
	if _, err := (CountAllocator{}).Next(context.Background(), seq, date); !errors.Is(err, boom) {
		t.Fatalf("count: got %v", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		want    Allocator
		wantErr bool
	}{
		{"", CounterAllocator{}, false},
		{"counter", CounterAllocator{}, false},
		{"count", CountAllocator{}, false},
		{"random", nil, true},
	}
	for _, tt := range tests {
		got, err := New(tt.name)
		if (err != nil) != tt.wantErr {
			t.Fatalf("New(%q) err = %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("New(%q) = %T", tt.name, got)
		}
	}
}
