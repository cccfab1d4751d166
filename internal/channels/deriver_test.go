package channels

import (
	"errors"
	"testing"
)

func TestDeriveStereo(t *testing.T) {
	l := []float64{0.5, -0.25, 1, 0, 0.125}
	r := []float64{0.25, 0.25, -1, 0.5, 0.375}

	set, err := Derive([][]float64{l, r}, 48000, []string{Sum, Difference, Mono, Left, Right})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if got := set.Names(); len(got) != 5 || got[0] != Sum || got[4] != Right {
		t.Errorf("Names = %v, want requested order", got)
	}

	sum, _ := set.Get(Sum)
	diff, _ := set.Get(Difference)
	mono, _ := set.Get(Mono)
	left, _ := set.Get(Left)
	right, _ := set.Get(Right)

	for i := range l {
		if sum.At(i) != l[i]+r[i] {
			t.Errorf("sum[%d] = %f, want %f", i, sum.At(i), l[i]+r[i])
		}
		if diff.At(i) != l[i]-r[i] {
			t.Errorf("difference[%d] = %f, want %f", i, diff.At(i), l[i]-r[i])
		}
		if mono.At(i) != (l[i]+r[i])/2 {
			t.Errorf("mono[%d] = %f, want %f", i, mono.At(i), (l[i]+r[i])/2)
		}
		if left.At(i) != l[i] || right.At(i) != r[i] {
			t.Errorf("primary channels differ at %d", i)
		}
	}
	if sum.SampleRate() != 48000 {
		t.Errorf("SampleRate = %d, want 48000", sum.SampleRate())
	}
}

func TestDeriveSingleTrack(t *testing.T) {
	x := []float64{0.1, 0.2, 0.3}

	set, err := Derive([][]float64{x}, 8000, []string{Mono, Left})
	if err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	mono, _ := set.Get(Mono)
	for i := range x {
		if mono.At(i) != x[i] {
			t.Errorf("mono[%d] = %f, want identity %f", i, mono.At(i), x[i])
		}
	}

	for _, name := range []string{Sum, Difference, Right} {
		t.Run(name, func(t *testing.T) {
			_, err := Derive([][]float64{x}, 8000, []string{name})
			var cde *ChannelDerivationError
			if !errors.As(err, &cde) {
				t.Fatalf("err = %v, want *ChannelDerivationError", err)
			}
			if cde.Channel != name || cde.Tracks != 1 {
				t.Errorf("error = %+v", cde)
			}
		})
	}
}

func TestDeriveUnknownChannel(t *testing.T) {
	_, err := Derive([][]float64{{0}}, 8000, []string{"centre"})
	var cde *ChannelDerivationError
	if !errors.As(err, &cde) {
		t.Fatalf("err = %v, want *ChannelDerivationError", err)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	l := []float64{0.3, 0.7, -0.9}
	r := []float64{0.1, -0.2, 0.4}

	a, _ := Derive([][]float64{l, r}, 8000, []string{Mono, Difference})
	b, _ := Derive([][]float64{l, r}, 8000, []string{Mono, Difference})
	for _, name := range a.Names() {
		ca, _ := a.Get(name)
		cb, _ := b.Get(name)
		for i := 0; i < ca.Len(); i++ {
			if ca.At(i) != cb.At(i) {
				t.Fatalf("%s[%d] differs between runs", name, i)
			}
		}
	}
}

func TestChannelSamplesIsCopy(t *testing.T) {
	src := []float64{1, 2, 3}
	ch := New(Left, src, 8000)
	src[0] = 99

	work := ch.Samples()
	work[1] = 42

	if ch.At(0) != 1 || ch.At(1) != 2 {
		t.Errorf("channel mutated through caller slices: %v", ch.Samples())
	}
}
