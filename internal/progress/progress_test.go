package progress

import "testing"

func TestDisabledReporterIsNoop(t *testing.T) {
	r := New(1000, false)
	r.Tick(500)
	r.Close()
}

func TestEnabledReporterTicksWithoutPanicking(t *testing.T) {
	r := New(1000, true)
	r.Tick(250)
	r.Tick(1000)
	r.Close()
}

func TestFormatBytes(t *testing.T) {
	if got := FormatBytes(1024); got == "" {
		t.Fatal("expected a non-empty formatted size")
	}
}
