package channel

import (
	"testing"
	"time"
)

func TestFrameIntervalCommonRates(t *testing.T) {
	t.Parallel()
	cases := []struct {
		rate int
		want time.Duration
	}{
		{30, time.Second / 30},
		{60, time.Second / 60},
		{25, time.Second / 25},
		{1, time.Second},
	}
	for _, c := range cases {
		s := Spec{FrameRate: c.rate}
		if got := s.FrameInterval(); got != c.want {
			t.Errorf("FrameInterval() with rate %d = %v, want %v", c.rate, got, c.want)
		}
	}
}
