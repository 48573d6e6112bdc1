package errs

import "testing"

func TestKindString(t *testing.T) {
	if got, want := PeerAttestationInvalid.String(), "PeerAttestationInvalid"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
	if got, want := Kind(999).String(), "UnknownErrorKind(999)"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestErrorAndIs(t *testing.T) {
	var err error = New(PushTransient, "provider returned %d", 503)
	if !Is(err, PushTransient) {
		t.Errorf("Is(err, PushTransient)=false, want true")
	}
	if Is(err, PushPermanent) {
		t.Errorf("Is(err, PushPermanent)=true, want false")
	}
	if got, want := err.Error(), "PushTransient: provider returned 503"; got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	if got := ParseKind(MeasurementMismatch.String()); got != MeasurementMismatch {
		t.Errorf("ParseKind(%q) = %v, want %v", MeasurementMismatch.String(), got, MeasurementMismatch)
	}
	if got := ParseKind("not-a-real-kind"); got != Unknown {
		t.Errorf("ParseKind of unknown name = %v, want Unknown", got)
	}
}
