package chaindb

import (
	"testing"

	"github.com/wpdas/chaindb/internal/chainerr"
	"github.com/wpdas/chaindb/internal/events"
)

func TestCreateConnectLifecycle(t *testing.T) {
	root := t.TempDir()
	if err := CreateDatabase(root, "t", "u", "p"); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}

	if err := CreateDatabase(root, "t", "u", "p"); chainerr.Of(err) != chainerr.DatabaseAlreadyExists {
		t.Fatalf("expected DatabaseAlreadyExists, got %v", err)
	}

	bus := events.New()
	db, token, err := Connect(root, bus, "t", "u", "p")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if token == "" {
		t.Fatal("expected a non-empty auth token")
	}
	if db.Config.User != "u" {
		t.Fatalf("unexpected config: %+v", db.Config)
	}

	if _, _, err := Connect(root, bus, "t", "u", "wrong"); chainerr.Of(err) != chainerr.InvalidCredentials {
		t.Fatalf("expected InvalidCredentials, got %v", err)
	}

	if _, _, err := Connect(root, bus, "nope", "u", "p"); chainerr.Of(err) != chainerr.DatabaseNotFound {
		t.Fatalf("expected DatabaseNotFound, got %v", err)
	}
}

func TestPersistAndChangePassword(t *testing.T) {
	root := t.TempDir()
	if err := CreateDatabase(root, "t", "u", "p"); err != nil {
		t.Fatal(err)
	}
	bus := events.New()
	db, _, err := Connect(root, bus, "t", "u", "p")
	if err != nil {
		t.Fatal(err)
	}

	tbl, err := db.Table("orders")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	for i := 0; i < 5; i++ {
		if _, err := tbl.Persist(map[string]interface{}{"data": map[string]interface{}{"i": float64(i)}}); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}
	before, err := tbl.GetHistory(-1)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.ChangePassword("q"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	if _, _, err := Connect(root, bus, "t", "u", "p"); chainerr.Of(err) != chainerr.InvalidCredentials {
		t.Fatalf("old password should be rejected, got %v", err)
	}

	db2, _, err := Connect(root, bus, "t", "u", "q")
	if err != nil {
		t.Fatalf("Connect with new password: %v", err)
	}
	tbl2, err := db2.Table("orders")
	if err != nil {
		t.Fatal(err)
	}
	after, err := tbl2.GetHistory(-1)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("history length changed across rekey: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		bd := before[i]["data"].(map[string]interface{})
		ad := after[i]["data"].(map[string]interface{})
		if bd["i"] != ad["i"] {
			t.Fatalf("record %d changed across rekey: before=%v after=%v", i, bd["i"], ad["i"])
		}
	}
}

func TestChangePasswordSameRejected(t *testing.T) {
	root := t.TempDir()
	if err := CreateDatabase(root, "t", "u", "p"); err != nil {
		t.Fatal(err)
	}
	db, _, err := Connect(root, events.New(), "t", "u", "p")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.ChangePassword("p"); chainerr.Of(err) != chainerr.ValidationError {
		t.Fatalf("expected ValidationError for unchanged password, got %v", err)
	}
}

func TestListTables(t *testing.T) {
	root := t.TempDir()
	if err := CreateDatabase(root, "t", "u", "p"); err != nil {
		t.Fatal(err)
	}
	db, _, err := Connect(root, events.New(), "t", "u", "p")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Table("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Table("b"); err != nil {
		t.Fatal(err)
	}
	names, err := db.ListTables()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 tables, got %v", names)
	}
}
