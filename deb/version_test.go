package deb

import "testing"

func TestParseVersionRoundTrip(t *testing.T) {
	cases := []string{"1.0", "1.0-1", "1:0", "1.0~rc1", "2:1.2.3-4ubuntu5", "1.0-patch-1"}
	for _, s := range cases {
		v, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", s, err)
		}
		if got := v.String(); got != s {
			t.Errorf("ParseVersion(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestParseVersionErrors(t *testing.T) {
	cases := []string{"", "abc", ":1.0", "1.0_1"}
	for _, s := range cases {
		if _, err := ParseVersion(s); err == nil {
			t.Errorf("ParseVersion(%q): expected error, got nil", s)
		}
	}
}

func TestVersionOrderingSequence(t *testing.T) {
	seq := []string{"1.0~rc1", "1.0~rc2", "1.0", "1.0-1", "1.0-2", "1:0"}
	versions := make([]Version, len(seq))
	for i, s := range seq {
		v, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", s, err)
		}
		versions[i] = v
	}
	for i := 0; i < len(versions)-1; i++ {
		if !versions[i].Less(versions[i+1]) {
			t.Errorf("expected %s < %s", seq[i], seq[i+1])
		}
	}
}

func TestUpstreamComparatorBoundary(t *testing.T) {
	seq := []string{"~~", "~~a", "~", "", "a"}
	for i := 0; i < len(seq)-1; i++ {
		if c := compareUpstream(seq[i], seq[i+1]); c >= 0 {
			t.Errorf("compareUpstream(%q, %q) = %d, want < 0", seq[i], seq[i+1], c)
		}
	}
}

func TestCompareIsTotalOrder(t *testing.T) {
	seq := []string{"1.0~rc1", "1.0~rc2", "1.0", "1.0-1", "1.0-2", "1:0", "2.0", "1.0.1"}
	versions := make([]Version, len(seq))
	for i, s := range seq {
		v, err := ParseVersion(s)
		if err != nil {
			t.Fatalf("ParseVersion(%q): %v", s, err)
		}
		versions[i] = v
	}
	for i := range versions {
		for j := range versions {
			lt := versions[i].Compare(versions[j]) < 0
			eq := versions[i].Compare(versions[j]) == 0
			gt := versions[i].Compare(versions[j]) > 0
			count := 0
			for _, b := range []bool{lt, eq, gt} {
				if b {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("exactly one of <,=,> must hold for (%s,%s), got lt=%v eq=%v gt=%v", seq[i], seq[j], lt, eq, gt)
			}
			if eq != versions[i].Eq(versions[j]) {
				t.Errorf("Compare/Eq disagreement for (%s,%s)", seq[i], seq[j])
			}
			// Transitivity spot-check against the next element.
			if j+1 < len(versions) && versions[i].Less(versions[j]) && versions[j].Less(versions[j+1]) {
				if !versions[i].Less(versions[j+1]) {
					t.Errorf("transitivity violated: %s < %s < %s but not %s < %s", seq[i], seq[j], seq[j+1], seq[i], seq[j+1])
				}
			}
		}
	}
}

func TestEmptyRevisionComparesEqualToZero(t *testing.T) {
	a, _ := ParseVersion("1.0")
	b, _ := ParseVersion("1.0-0")
	if !a.Eq(b) {
		t.Errorf("expected %s == %s (empty revision treated as 0)", a, b)
	}
}
