package gatts

import "testing"

func TestPropertyString(t *testing.T) {
	cases := []struct {
		p    Property
		want string
	}{
		{p: CharRead, want: "read"},
		{p: CharRead | CharNotify, want: "read|notify"},
		{p: CharWriteNR | CharWrite, want: "write-no-response|write"},
		{p: CharBroadcast | CharIndicate, want: "broadcast|indicate"},
		{p: 0, want: ""},
	}

	for _, tt := range cases {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Property(%08b).String(): got %q want %q", tt.p, got, tt.want)
		}
	}
}

func TestPropertySubscribable(t *testing.T) {
	cases := []struct {
		p    Property
		want bool
	}{
		{p: CharNotify, want: true},
		{p: CharIndicate, want: true},
		{p: CharRead | CharIndicate, want: true},
		{p: CharRead | CharWrite, want: false},
		{p: 0, want: false},
	}

	for _, tt := range cases {
		if got := tt.p.subscribable(); got != tt.want {
			t.Errorf("Property(%08b).subscribable(): got %v want %v", tt.p, got, tt.want)
		}
	}
}

func TestHSErrorStrings(t *testing.T) {
	if got, want := HSENoEnt.Error(), "ble_hs: no such entry"; got != want {
		t.Errorf("HSENoEnt: got %q want %q", got, want)
	}
	if got, want := HSError(99).Error(), "ble_hs: error 99"; got != want {
		t.Errorf("HSError(99): got %q want %q", got, want)
	}
}
