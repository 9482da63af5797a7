package zcal

import (
	"strings"
	"testing"
)

func TestConvertUnits(t *testing.T) {
	in := []float64{3.0, 0.25, 0.5, 0.1}
	got := ConvertUnits(in, 160.0)

	want := []float64{480.0, 250.0, 500.0, 0.1, 0, 0, 0}
	if len(got) != len(want) {
		t.Fatalf("got %d parameters, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("param %d = %v, want %v", i, got[i], want[i])
		}
	}

	// The input slice is left untouched.
	if in[0] != 3.0 || in[1] != 0.25 || in[2] != 0.5 {
		t.Errorf("input mutated: %v", in)
	}
}

func TestWriteXML(t *testing.T) {
	wx := ConvertUnits([]float64{3.0, 0.25, 0.5}, 100.0)
	wy := ConvertUnits([]float64{2.5, -0.2, 0.45, 0.1234}, 100.0)

	var sb strings.Builder
	if err := WriteXML(&sb, wx, wy); err != nil {
		t.Fatalf("WriteXML: %v", err)
	}
	out := sb.String()

	if !strings.HasPrefix(out, "<xml>\n") || !strings.HasSuffix(out, "</xml>\n") {
		t.Errorf("missing xml wrapper:\n%s", out)
	}
	for _, want := range []string{
		"   <wx_wo>300.000</wx_wo>\n",
		"   <wx_c>250.000</wx_c>\n",
		"   <wx_d>500.000</wx_d>\n",
		"   <wxA>0.000</wxA>\n",
		"   <wy_wo>250.000</wy_wo>\n",
		"   <wyA>0.123</wyA>\n",
		"   <wyD>0.000</wyD>\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteXMLRejectsUnpadded(t *testing.T) {
	var sb strings.Builder
	if err := WriteXML(&sb, []float64{1, 2, 3}, make([]float64, paramLen)); err == nil {
		t.Fatal("expected an error for a 3-parameter slice")
	}
}
