package util

import "testing"

func TestFingerprintStableUnderWhitespace(t *testing.T) {
	a := Fingerprint("SOL-X", "a.sol", "Vault", "withdraw", "msg.sender.call{value: x}(\"\");")
	b := Fingerprint("SOL-X", "a.sol", "Vault", "withdraw", "msg.sender.call{value:  x}(\"\");\n")
	if a != b {
		t.Fatal("whitespace changed fingerprint")
	}
	if a == Fingerprint("SOL-Y", "a.sol", "Vault", "withdraw", "msg.sender.call{value: x}(\"\");") {
		t.Fatal("rule id ignored")
	}
	if Fingerprint("SOL-X", "", "ab", "c") == Fingerprint("SOL-X", "", "a", "bc") {
		t.Fatal("part boundaries ignored")
	}
	if len(a) != 64 {
		t.Fatalf("len %d", len(a))
	}
}

func TestExtractSnippet(t *testing.T) {
	src := "1\n2\n3\n4\n5\n6\n7"
	cases := []struct {
		start, end, max int
		want            string
	}{
		{4, 4, 2, "3\n4\n5"},
		{1, 1, 4, "1\n2\n3"},
		{6, 7, 4, "4\n5\n6\n7"},
		{9, 9, 2, ""},
	}
	for _, c := range cases {
		if got := ExtractSnippet(src, c.start, c.end, c.max); got != c.want {
			t.Errorf("ExtractSnippet(%d,%d,%d) = %q, want %q", c.start, c.end, c.max, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdefgh", 6); got != "abc..." {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	if got := Truncate("ééé", 5); got != "é..." {
		t.Fatalf("got %q", got)
	}
}
