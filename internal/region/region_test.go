package region

import (
	"strings"
	"testing"
)

func TestLookupCaseInsensitive(t *testing.T) {
	r, ok := Lookup(" us ")
	if !ok {
		t.Fatalf("expected US to be found")
	}
	if r.Currency != "USD" {
		t.Fatalf("expected USD, got %s", r.Currency)
	}
	if _, ok := Lookup("XX"); ok {
		t.Fatalf("expected XX to be unknown")
	}
}

func TestValidate(t *testing.T) {
	got, err := Validate([]string{"us", "IL", "US"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "US" || got[1] != "IL" {
		t.Fatalf("unexpected codes: %v", got)
	}

	if _, err := Validate([]string{"US", "ZZ"}); err == nil || !strings.Contains(err.Error(), "ZZ") {
		t.Fatalf("expected unknown region error, got %v", err)
	}
	if _, err := Validate(nil); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	for i := 1; i < len(all); i++ {
		if all[i-1].Code >= all[i].Code {
			t.Fatalf("catalog not sorted at %d: %s >= %s", i, all[i-1].Code, all[i].Code)
		}
	}
}

func TestSearchURL(t *testing.T) {
	got := MustLookup("US").SearchURL("Elden Ring")
	want := "https://store.playstation.com/en-us/search/Elden%20Ring"
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}
