package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{"nil", nil, "", ""},
		{"unique set", &tele.Callback{Unique: "download", Data: "3"}, "download", "3"},
		{"raw encoding", &tele.Callback{Data: "\fdownload|4"}, "download", "4"},
		{"no payload", &tele.Callback{Data: "\frandom_track"}, "random_track", ""},
		{"plain data", &tele.Callback{Data: "new_search"}, "new_search", ""},
	}
	for _, tc := range cases {
		unique, payload := ParseCallbackData(tc.cb)
		if unique != tc.unique || payload != tc.payload {
			t.Fatalf("%s: got (%q,%q), want (%q,%q)", tc.name, unique, payload, tc.unique, tc.payload)
		}
	}
}
