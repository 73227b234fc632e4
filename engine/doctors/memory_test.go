package doctors

import (
	"context"
	"testing"

	"github.com/carenav/carenav/engine/domain"
)

func TestMemoryStore_FetchAllIsACopy(t *testing.T) {
	m := NewMemoryStore(fixture)
	all, _ := m.FetchAll(context.Background())
	all[0].Name = "changed"
	again, _ := m.FetchAll(context.Background())
	if again[0].Name != "Dr. A" {
		t.Error("FetchAll leaked internal slice")
	}
}

func TestMemoryStore_ReplaceAll(t *testing.T) {
	m := NewMemoryStore(fixture)
	n, err := m.ReplaceAll(context.Background(), []domain.Doctor{{Name: "Dr. Z", Specialty: "ENT"}})
	if err != nil || n != 1 {
		t.Fatalf("ReplaceAll = %d, %v", n, err)
	}
	all, _ := m.FetchAll(context.Background())
	if len(all) != 1 || all[0].Name != "Dr. Z" {
		t.Errorf("unexpected contents %v", all)
	}
}

func TestMemoryStore_UnlimitedFetch(t *testing.T) {
	got, _ := NewMemoryStore(fixture).FetchBySpecialty(context.Background(), "o", 0)
	if len(got) != len(fixture) {
		t.Errorf("expected all %d records, got %d", len(fixture), len(got))
	}
}
