package switchcli

import "testing"

func TestQuantize(t *testing.T) {
	tests := []struct {
		name string
		rate uint64
		want uint64
	}{
		{name: "Zero", rate: 0, want: 0},
		{name: "BelowFirstStep", rate: 1, want: 64000},
		{name: "ExactStep", rate: 64000, want: 64000},
		{name: "JustOverStep", rate: 64001, want: 128000},
		{name: "LowCeiling", rate: 960000, want: 960000},
		{name: "Gap", rate: 960001, want: 1000000},
		{name: "HighFloor", rate: 1000000, want: 1000000},
		{name: "JustOverFloor", rate: 1000001, want: 1100000},
		{name: "HighStep", rate: 12000000, want: 12000000},
		{name: "HighRoundsUp", rate: 12000001, want: 12100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quantize(tt.rate); got != tt.want {
				t.Fatalf("Quantize(%d) = %d, want %d", tt.rate, got, tt.want)
			}
		})
	}
}
