package model

import "testing"

func TestPrivateRoomNameDeterministic(t *testing.T) {
	if got := PrivateRoomName("7", "3"); got != "private-3-7" {
		t.Fatalf("PrivateRoomName(7,3) = %q, want private-3-7", got)
	}
	if got := PrivateRoomName("3", "7"); got != "private-3-7" {
		t.Fatalf("PrivateRoomName(3,7) = %q, want private-3-7", got)
	}
}

func TestMaxStatusMonotonic(t *testing.T) {
	cases := []struct {
		a, b, want DeliveryStatus
	}{
		{StatusSent, StatusDelivered, StatusDelivered},
		{StatusRead, StatusSent, StatusRead},
		{StatusDelivered, StatusDelivered, StatusDelivered},
		{"", StatusSent, StatusSent},
	}
	for _, c := range cases {
		if got := MaxStatus(c.a, c.b); got != c.want {
			t.Errorf("MaxStatus(%q, %q) = %q, want %q", c.a, c.b, got, c.want)
		}
	}
}
