//go:build integration

package doctors

import (
	"context"
	"os"
	"testing"
)

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("CARENAV_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("CARENAV_TEST_POSTGRES not set")
	}
	if err := Migrate(dsn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	ctx := context.Background()
	store, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.ReplaceAll(ctx, fixture); err != nil {
		t.Fatalf("ReplaceAll: %v", err)
	}
	all, err := store.FetchAll(ctx)
	if err != nil || len(all) != len(fixture) {
		t.Fatalf("FetchAll: %d, %v", len(all), err)
	}
	for i := range fixture {
		if all[i] != fixture[i] {
			t.Errorf("row %d: got %+v", i, all[i])
		}
	}

	got, err := store.FetchBySpecialty(ctx, "cardio", 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Dr. B", "Dr. A", "Dr. D"}
	for i, w := range want {
		if got[i].Name != w {
			t.Errorf("position %d: got %s, want %s", i, got[i].Name, w)
		}
	}
}
