package value

import "testing"

func TestTableSetGet(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Get("x"); ok {
		t.Fatalf("Get() on empty table found a value")
	}

	isNew := tbl.Set("x", Number(42))
	if !isNew {
		t.Errorf("Set() on first insert returned isNew=false")
	}
	v, ok := tbl.Get("x")
	if !ok || v.Number != 42 {
		t.Errorf("Get(%q) = %v, %v, want 42, true", "x", v, ok)
	}

	isNew = tbl.Set("x", Number(7))
	if isNew {
		t.Errorf("Set() on overwrite returned isNew=true")
	}
	v, _ = tbl.Get("x")
	if v.Number != 7 {
		t.Errorf("Get(%q) after overwrite = %v, want 7", "x", v)
	}
}

func TestTableGrowsAndRetainsEntries(t *testing.T) {
	tbl := NewTable()
	const n = 200
	for i := 0; i < n; i++ {
		key := string(rune('a')) + string(rune(i))
		tbl.Set(key, Number(float64(i)))
	}
	if tbl.Count() != n {
		t.Fatalf("Count() = %d, want %d", tbl.Count(), n)
	}
	for i := 0; i < n; i++ {
		key := string(rune('a')) + string(rune(i))
		v, ok := tbl.Get(key)
		if !ok || v.Number != float64(i) {
			t.Errorf("Get(%q) = %v, %v, want %d, true", key, v, ok, i)
		}
	}
}

func TestTableHas(t *testing.T) {
	tbl := NewTable()
	tbl.Set("defined", Bool_(true))
	if !tbl.Has("defined") {
		t.Errorf("Has(%q) = false, want true", "defined")
	}
	if tbl.Has("undefined") {
		t.Errorf("Has(%q) = true, want false", "undefined")
	}
}

func TestHashStringDeterministic(t *testing.T) {
	if hashString("abc") != hashString("abc") {
		t.Errorf("hashString not deterministic")
	}
	if hashString("abc") == hashString("abd") {
		t.Errorf("hashString collided trivially for distinct short keys")
	}
}
