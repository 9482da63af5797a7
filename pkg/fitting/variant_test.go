package fitting

import "testing"

func TestParseVariant(t *testing.T) {
	cases := map[string]Variant{
		"2dfixed": FixedWidth2D,
		"2d":      FreeWidth2D,
		"3d":      Independent3D,
		"z":       ZAstigmatism,
	}
	for s, want := range cases {
		got, ok := ParseVariant(s)
		if !ok || got != want {
			t.Errorf("ParseVariant(%q) = %v, %v, want %v", s, got, ok, want)
		}
		if got.String() != s {
			t.Errorf("%v.String() = %q, want %q", got, got.String(), s)
		}
	}
	if _, ok := ParseVariant("4d"); ok {
		t.Error("ParseVariant accepted an unknown variant")
	}
}
