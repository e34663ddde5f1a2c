package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	tests := []struct {
		name string
		prev ID
		now  time.Time
		want ID
	}{
		{name: "clock ahead", prev: 1_600_000_000_000, now: now, want: 1_700_000_000_000},
		{name: "same millisecond", prev: 1_700_000_000_000, now: now, want: 1_700_000_000_001},
		{name: "clock behind", prev: 1_800_000_000_000, now: now, want: 1_800_000_000_001},
		{name: "zero prev", prev: 0, now: now, want: 1_700_000_000_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.prev, tt.now)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, tt.prev)
		})
	}
}

func TestNextIsMonotonicUnderBursts(t *testing.T) {
	frozen := time.Now()
	id := Next(0, frozen)
	for i := 0; i < 100; i++ {
		next := Next(id, frozen)
		assert.Greater(t, next, id)
		id = next
	}
}

func TestFlagObserve(t *testing.T) {
	tests := []struct {
		name        string
		flag        Flag
		current     ID
		want        Flag
		wantChanged bool
		canSubmit   bool
	}{
		{
			name:      "fresh device",
			flag:      Flag{},
			current:   10,
			want:      Flag{SessionID: 10},
			canSubmit: true, wantChanged: true,
		},
		{
			name:      "submitted in current session",
			flag:      Flag{SessionID: 10, Submitted: true},
			current:   10,
			want:      Flag{SessionID: 10, Submitted: true},
			canSubmit: false,
		},
		{
			name:      "stale submitted flag after reset",
			flag:      Flag{SessionID: 9, Submitted: true},
			current:   10,
			want:      Flag{SessionID: 10},
			canSubmit: true, wantChanged: true,
		},
		{
			name:      "not yet submitted",
			flag:      Flag{SessionID: 10},
			current:   10,
			want:      Flag{SessionID: 10},
			canSubmit: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := tt.flag.Observe(tt.current)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantChanged, changed)
			assert.Equal(t, tt.canSubmit, tt.flag.CanSubmit(tt.current))
		})
	}
}
