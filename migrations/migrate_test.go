package migrations

import "testing"

func TestNamesAreOrderedSQLFiles(t *testing.T) {
	names, err := Names()
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if len(names) == 0 {
		t.Fatalf("expected at least one migration")
	}
	if names[0] != "0001_init.sql" {
		t.Fatalf("expected 0001_init.sql first, got %s", names[0])
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations not sorted: %v", names)
		}
	}
}
