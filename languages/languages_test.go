package languages

import "testing"

func TestCatalog(t *testing.T) {
	all, err := All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) < 50 {
		t.Fatalf("expected a full catalog, got %d entries", len(all))
	}
	seen := make(map[string]bool)
	for i, l := range all {
		if seen[l.Code] {
			t.Errorf("duplicate code %s", l.Code)
		}
		seen[l.Code] = true
		if i > 0 && all[i-1].Name > l.Name {
			t.Errorf("catalog not sorted at %s", l.Name)
		}
	}
	if !seen[DefaultSource] {
		t.Errorf("default source %s missing from catalog", DefaultSource)
	}
}

func TestLookupAndName(t *testing.T) {
	if l, ok := Lookup("fra_Latn"); !ok || l.Name != "French" {
		t.Errorf("unexpected lookup %+v %v", l, ok)
	}
	if Name("xxx_Xxxx") != "xxx_Xxxx" {
		t.Error("unknown codes should map to themselves")
	}
}

func TestIsSelected(t *testing.T) {
	tests := map[string]bool{"": false, Placeholder: false, "spa_Latn": true}
	for in, want := range tests {
		if got := IsSelected(in); got != want {
			t.Errorf("IsSelected(%q) = %v, want %v", in, got, want)
		}
	}
}
