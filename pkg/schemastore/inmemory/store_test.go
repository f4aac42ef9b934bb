package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/nl2sql-engine/core/pkg/models"
)

func sampleContract() models.SchemaContract {
	return models.SchemaContract{Tables: map[string]models.TableContract{
		"machines": {Columns: map[string]models.ColumnContract{
			"id":   {Type: "int"},
			"name": {Type: "text"},
		}},
	}}
}

func TestRegister_DuplicateFingerprintReturnsSameVersion(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	v1, err := s.Register(ctx, "ops", sampleContract(), models.SchemaMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	v2, err := s.Register(ctx, "ops", sampleContract(), models.SchemaMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if v1 != v2 {
		t.Fatalf("expected same version for duplicate fingerprint, got %s != %s", v1, v2)
	}
}

func TestGet_LatestByLexicographicMax(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	if _, err := s.Register(ctx, "ops", sampleContract(), models.SchemaMetadata{}); err != nil {
		t.Fatal(err)
	}
	changed := sampleContract()
	changed.Tables["machines"] = models.TableContract{Columns: map[string]models.ColumnContract{
		"id": {Type: "int"}, "name": {Type: "text"}, "status": {Type: "text"},
	}}
	v2, err := s.Register(ctx, "ops", changed, models.SchemaMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "ops", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != v2 {
		t.Fatalf("expected latest version %s, got %s", v2, got.Version)
	}
}

func TestRegister_EvictsOldestBeyondMaxVersions(t *testing.T) {
	s := New(1)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	ctx := context.Background()
	if _, err := s.Register(ctx, "ops", sampleContract(), models.SchemaMetadata{}); err != nil {
		t.Fatal(err)
	}
	changed := sampleContract()
	changed.Tables["extra"] = models.TableContract{Columns: map[string]models.ColumnContract{"x": {Type: "int"}}}
	v2, err := s.Register(ctx, "ops", changed, models.SchemaMetadata{})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.byDS["ops"]) != 1 {
		t.Fatalf("expected eviction to cap at 1 version, got %d", len(s.byDS["ops"]))
	}
	got, err := s.Get(ctx, "ops", v2)
	if err != nil {
		t.Fatalf("expected surviving version retrievable: %v", err)
	}
	if got.Version != v2 {
		t.Fatal("expected surviving version to be the latest")
	}
}
