package detect

import "testing"

const (
	fourWords = "Magnificent waterfalls cascade downward"
	eightWords = "The quick brown fox jumps over lazy dogs"
	tenWords  = "Every single morning she walks quietly along the river bank"
	sixteenWords = "During the long winter months the villagers would gather around fires and tell old border stories"
)

func TestAIProbabilityBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want float64
	}{
		{
			name: "fewer than three sentences",
			text: eightWords + ". " + tenWords + ".",
			want: 0.0,
		},
		{
			name: "uniform lengths look machine generated",
			text: eightWords + ". " + eightWords + ". " + eightWords + ".",
			want: 0.75,
		},
		{
			name: "moderate variance",
			text: fourWords + ". " + eightWords + ". " + tenWords + ".",
			want: 0.55,
		},
		{
			name: "high variance looks human",
			text: fourWords + ". " + eightWords + ". " + sixteenWords + ".",
			want: 0.25,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := AIProbability(tt.text); got != tt.want {
				t.Fatalf("AIProbability = %v, want %v", got, tt.want)
			}
		})
	}
}
