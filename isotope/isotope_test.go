package isotope

import "testing"

func TestLookup(t *testing.T) {
	t.Parallel()

	iso, ok := Lookup(" CS137 ")
	if !ok {
		t.Fatal("Cs137 not found")
	}

	if iso.Name != "Cs137" || len(iso.Lines) != 1 || !iso.HasLine(661.657) {
		t.Fatalf("unexpected isotope %+v", iso)
	}

	iso.Lines[0].Energy = 1
	again, _ := Lookup("cs137")
	if again.Lines[0].Energy == 1 {
		t.Fatal("Lookup must return a copy")
	}

	if _, ok := Lookup("unobtainium"); ok {
		t.Fatal("unexpected hit for unknown isotope")
	}
}

func TestNamesSorted(t *testing.T) {
	t.Parallel()

	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i] < names[i-1] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	cs, _ := Lookup("cs137")
	na, _ := Lookup("na22")
	co, _ := Lookup("co60")

	merged := Merge([]Isotope{cs, na}, []Isotope{{Name: "NA22"}, co})

	got := ListNames(merged)
	want := []string{"Cs137", "Na22", "Co60"}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if len(merged[1].Lines) != 2 {
		t.Fatal("first occurrence of Na22 must be kept")
	}
}
