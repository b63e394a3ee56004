package dispatcher

import (
	"errors"
	"testing"
)

const correlatorTestPrefix = "dispatcher:correlator_test - "

func TestCorrelator_SinkFailureCountsDropped(t *testing.T) {
	sendErr := errors.New("socket closed")
	c := NewCorrelator("broken", SinkFunc(func(*Response) error { return sendErr }), nil)

	h, err := c.Begin(1)
	if err != nil {
		t.Fatalf(correlatorTestPrefix+"Begin failed: %v", err)
	}
	if err := h.Complete("x"); !errors.Is(err, sendErr) {
		t.Fatalf(correlatorTestPrefix+"Complete err = %v, want %v", err, sendErr)
	}

	st := c.Stats()
	if st.Dropped != 1 || st.Delivered != 0 {
		t.Errorf(correlatorTestPrefix+"stats = %+v, want 1 dropped and 0 delivered", st)
	}
	if c.Pending() != 0 {
		t.Errorf(correlatorTestPrefix+"pending = %d, want the id released", c.Pending())
	}
	if err := h.Complete("y"); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf(correlatorTestPrefix+"second Complete err = %v", err)
	}
	if _, err := c.Begin(1); err != nil {
		t.Errorf(correlatorTestPrefix+"id should be reusable after a failed send: %v", err)
	}
}
