package fixedpoint

import (
	"math"
	"testing"
)

func TestMulBps(t *testing.T) {
	got, err := MulBps(1_000_000, 500)
	if err != nil || got != 50_000 {
		t.Errorf("MulBps(1000000, 500) = %d, %v; want 50000", got, err)
	}

	got, err = MulBps(2_500_000, 10_000)
	if err != nil || got != 2_500_000 {
		t.Errorf("MulBps(2500000, 10000) = %d, %v; want 2500000", got, err)
	}

	// 128-bit intermediate: value*bps overflows uint64 but the quotient fits
	got, err = MulBps(math.MaxUint64/2, 10_000)
	if err != nil || got != math.MaxUint64/2 {
		t.Errorf("MulBps(maxU64/2, 10000) = %d, %v; want maxU64/2", got, err)
	}
}

func TestMulDivOverflow(t *testing.T) {
	// Quotient exceeds 64 bits
	if _, err := MulDiv(math.MaxUint64, 3, 1); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); err != ErrOverflow {
		t.Errorf("division by zero: expected ErrOverflow, got %v", err)
	}
}

func TestAbsDiff(t *testing.T) {
	if AbsDiff(100, 90) != 10 || AbsDiff(90, 100) != 10 {
		t.Error("AbsDiff not symmetric")
	}
	if AbsDiff(7, 7) != 0 {
		t.Error("AbsDiff(7,7) != 0")
	}
}

func TestScalePrice(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		exponent int32
		want     uint64
		wantErr  bool
	}{
		// $50.00 at exponent -8: 5_000_000_000 * 1e6 / 1e8 = 50_000_000
		{"pyth style negative exponent", 5_000_000_000, -8, 50_000_000, false},
		{"exponent zero", 50, 0, 50_000_000, false},
		{"positive exponent", 5, 1, 50_000_000, false},
		// 1 at exponent -20 truncates to zero, which is an invalid price
		{"rounds down to zero", 1, -20, 0, true},
		{"negative price rejected", -1, -8, 0, true},
		{"zero price rejected", 0, -8, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ScalePrice(tt.price, tt.exponent)
			if tt.wantErr {
				if err == nil {
					t.Errorf("want error, got %d", got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ScalePrice(%d, %d) = %d, %v; want %d", tt.price, tt.exponent, got, err, tt.want)
			}
		})
	}
}

func TestScaleConfRoundsUp(t *testing.T) {
	// conf=1 at exponent -8: 1e6/1e8 = 0.01, must round UP to 1
	got, err := ScaleConf(1, -8)
	if err != nil || got != 1 {
		t.Errorf("ScaleConf(1, -8) = %d, %v; want 1 (ceil)", got, err)
	}

	// Exact division does not round
	got, err = ScaleConf(100, -8)
	if err != nil || got != 1 {
		t.Errorf("ScaleConf(100, -8) = %d, %v; want 1", got, err)
	}

	// Zero confidence stays zero
	got, err = ScaleConf(0, -8)
	if err != nil || got != 0 {
		t.Errorf("ScaleConf(0, -8) = %d, %v; want 0", got, err)
	}
}

func TestCheckedAddSub(t *testing.T) {
	if _, err := CheckedAdd(math.MaxUint64, 1); err != ErrOverflow {
		t.Error("CheckedAdd overflow not detected")
	}
	if _, err := CheckedSub(1, 2); err != ErrOverflow {
		t.Error("CheckedSub underflow not detected")
	}
	if v, _ := CheckedSub(5, 3); v != 2 {
		t.Errorf("CheckedSub(5,3) = %d", v)
	}
}
