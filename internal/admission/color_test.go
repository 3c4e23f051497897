package admission

import "testing"

func TestRGBToHSV(t *testing.T) {
	cases := []struct {
		name    string
		r, g, b uint8
		h, s, v uint8
	}{
		{"skin tone", 150, 111, 91, 10, 100, 150},
		{"pure red", 255, 0, 0, 0, 255, 255},
		{"pure green", 0, 255, 0, 60, 255, 255},
		{"pure blue", 0, 0, 255, 120, 255, 255},
		{"white", 255, 255, 255, 0, 0, 255},
		{"black", 0, 0, 0, 0, 0, 0},
		{"red rounding to zero", 255, 0, 1, 0, 255, 255},
		{"red wrapping", 255, 0, 10, 179, 255, 255},
		{"hue rounding past skin box", 143, 111, 42, 21, 180, 143},
		{"saturation fixed point rounding", 200, 150, 100, 15, 127, 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, s, v := RGBToHSV(tc.r, tc.g, tc.b)
			if h != tc.h || s != tc.s || v != tc.v {
				t.Errorf("expected (%d,%d,%d), got (%d,%d,%d)", tc.h, tc.s, tc.v, h, s, v)
			}
		})
	}
}

func TestLuma(t *testing.T) {
	if got := Luma(120, 120, 120); got != 120 {
		t.Errorf("expected grey to keep its level, got %d", got)
	}
	if got := Luma(255, 255, 255); got != 255 {
		t.Errorf("expected 255, got %d", got)
	}
	if got := Luma(150, 111, 91); got != 120 {
		t.Errorf("expected skin tone luminance 120, got %d", got)
	}
}

func TestRGBToHSVSkinBoxEdge(t *testing.T) {
	h, s, v := RGBToHSV(143, 111, 42)
	if DefaultThresholds().InSkinBox(h, s, v) {
		t.Errorf("expected hue %d to fall outside the skin box", h)
	}
}
