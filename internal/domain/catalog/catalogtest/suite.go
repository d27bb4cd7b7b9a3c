// Package catalogtest provides a conformance suite for catalog.ToolStore
// implementations.
package catalogtest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/catalog"
)

// SampleRecord returns a record with every writable field set.
func SampleRecord(name string) *catalog.ToolRecord {
	credID := int64(11)
	return &catalog.ToolRecord{
		Name:         name,
		Description:  "GitHub REST API",
		Provider:     "github",
		Category:     "developer",
		AdapterType:  catalog.AdapterTypeREST,
		Enabled:      true,
		OpenAPIURL:   "https://example.com/openapi.json",
		BaseURL:      "https://api.github.com",
		ContentType:  catalog.ContentTypeJSON,
		OperationIDs: []string{"listRepos", "getRepo"},
		AuthConfig: catalog.AuthConfig{
			Type:          "api_key",
			Name:          "Authorization",
			In:            "header",
			ValueTemplate: "token {api_key}",
		},
		Tags:                  []string{"vcs", "git"},
		CredentialMode:        catalog.CredentialModeLegacy,
		CredentialID:          &credID,
		CredentialName:        "github-main",
		CredentialType:        "github_token",
		CredentialEnvironment: "staging",
		OrgID:                 "org_123",
		Metadata:              map[string]any{"source": "automatos_seed"},
	}
}

// RunStoreTests exercises a ToolStore. newStore must return an empty store.
func RunStoreTests(t *testing.T, newStore func(t *testing.T) catalog.ToolStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("create then get round-trips writable fields", func(t *testing.T) {
		store := newStore(t)
		in := SampleRecord("github")
		before := time.Now().UTC().Add(-time.Second)

		created, err := store.Create(ctx, in)
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if created.ID == 0 {
			t.Fatal("Create() did not assign an ID")
		}
		if created.CreatedAt.Before(before) || !created.UpdatedAt.Equal(created.CreatedAt) {
			t.Errorf("timestamps created=%v updated=%v", created.CreatedAt, created.UpdatedAt)
		}

		got, err := store.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		assertWritableEqual(t, in, got)
		if got.UpdatedAt.Before(created.UpdatedAt.Truncate(time.Millisecond)) {
			t.Errorf("UpdatedAt went backwards: %v < %v", got.UpdatedAt, created.UpdatedAt)
		}

		byName, err := store.GetByName(ctx, "github")
		if err != nil || byName.ID != created.ID {
			t.Fatalf("GetByName() = %+v, %v", byName, err)
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Create(ctx, SampleRecord("dup")); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := store.Create(ctx, SampleRecord("dup")); !errors.Is(err, catalog.ErrDuplicateToolName) {
			t.Fatalf("second Create() error = %v, want ErrDuplicateToolName", err)
		}
	})

	t.Run("list filters disabled and orders by id", func(t *testing.T) {
		store := newStore(t)
		a, _ := store.Create(ctx, SampleRecord("a"))
		disabled := SampleRecord("b")
		disabled.Enabled = false
		if _, err := store.Create(ctx, disabled); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		c, _ := store.Create(ctx, SampleRecord("c"))

		all, err := store.List(ctx, false)
		if err != nil || len(all) != 3 {
			t.Fatalf("List(false) = %d records, %v", len(all), err)
		}
		enabled, err := store.List(ctx, true)
		if err != nil {
			t.Fatalf("List(true) error = %v", err)
		}
		if len(enabled) != 2 || enabled[0].ID != a.ID || enabled[1].ID != c.ID {
			t.Errorf("List(true) = %+v", enabled)
		}
	})

	t.Run("update patches fields and refreshes updated_at", func(t *testing.T) {
		store := newStore(t)
		created, _ := store.Create(ctx, SampleRecord("patch-me"))

		desc := "updated"
		enabled := false
		ops := []string{"only"}
		updated, err := store.Update(ctx, created.ID, catalog.ToolPatch{
			Description:  &desc,
			Enabled:      &enabled,
			OperationIDs: &ops,
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if updated.Description != "updated" || updated.Enabled || !reflect.DeepEqual(updated.OperationIDs, ops) {
			t.Errorf("Update() = %+v", updated)
		}
		if updated.Name != "patch-me" || updated.Provider != "github" {
			t.Errorf("untouched fields changed: %+v", updated)
		}
		if updated.UpdatedAt.Before(created.UpdatedAt) {
			t.Errorf("UpdatedAt %v before %v", updated.UpdatedAt, created.UpdatedAt)
		}

		got, _ := store.Get(ctx, created.ID)
		if got.Description != "updated" {
			t.Errorf("Get() after Update() description = %q", got.Description)
		}
	})

	t.Run("rename onto taken name rejected", func(t *testing.T) {
		store := newStore(t)
		_, _ = store.Create(ctx, SampleRecord("first"))
		second, _ := store.Create(ctx, SampleRecord("second"))
		name := "first"
		if _, err := store.Update(ctx, second.ID, catalog.ToolPatch{Name: &name}); !errors.Is(err, catalog.ErrDuplicateToolName) {
			t.Fatalf("Update() error = %v, want ErrDuplicateToolName", err)
		}
	})

	t.Run("missing ids", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(ctx, 999); !errors.Is(err, catalog.ErrToolNotFound) {
			t.Errorf("Get() error = %v", err)
		}
		if _, err := store.GetByName(ctx, "nope"); !errors.Is(err, catalog.ErrToolNotFound) {
			t.Errorf("GetByName() error = %v", err)
		}
		desc := "x"
		if _, err := store.Update(ctx, 999, catalog.ToolPatch{Description: &desc}); !errors.Is(err, catalog.ErrToolNotFound) {
			t.Errorf("Update() error = %v", err)
		}
		if err := store.Delete(ctx, 999); !errors.Is(err, catalog.ErrToolNotFound) {
			t.Errorf("Delete() error = %v", err)
		}
	})

	t.Run("delete removes record", func(t *testing.T) {
		store := newStore(t)
		created, _ := store.Create(ctx, SampleRecord("gone"))
		if err := store.Delete(ctx, created.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := store.Get(ctx, created.ID); !errors.Is(err, catalog.ErrToolNotFound) {
			t.Errorf("Get() after Delete() error = %v", err)
		}
	})

	t.Run("returned records are copies", func(t *testing.T) {
		store := newStore(t)
		created, _ := store.Create(ctx, SampleRecord("copy"))
		created.Tags[0] = "mutated"
		got, _ := store.Get(ctx, created.ID)
		if got.Tags[0] != "vcs" {
			t.Errorf("store shares memory with caller: tags = %v", got.Tags)
		}
	})
}

func assertWritableEqual(t *testing.T, want, got *catalog.ToolRecord) {
	t.Helper()
	w := *want.Clone()
	g := *got.Clone()
	w.ID, g.ID = 0, 0
	w.CreatedAt, g.CreatedAt = time.Time{}, time.Time{}
	w.UpdatedAt, g.UpdatedAt = time.Time{}, time.Time{}
	if !reflect.DeepEqual(w, g) {
		t.Errorf("round-trip mismatch:\n got  %+v\n want %+v", g, w)
	}
}
