package table

import (
	"testing"

	"github.com/wpdas/chaindb/internal/aead"
	"github.com/wpdas/chaindb/internal/events"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	dir := t.TempDir()
	tbl, err := Open(dir, "db", "t", aead.New("p"), events.New())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return tbl
}

func TestPersistThenGetTable(t *testing.T) {
	tbl := newTestTable(t)
	rec, err := tbl.Persist(Record{"data": map[string]interface{}{"k": "v"}})
	if err != nil {
		t.Fatalf("Persist: %v", err)
	}
	docID, _ := rec["doc_id"].(string)
	if docID == "" {
		t.Fatal("expected a generated doc_id")
	}

	got, err := tbl.GetTable()
	if err != nil {
		t.Fatalf("GetTable: %v", err)
	}
	data, _ := got["data"].(map[string]interface{})
	if data["k"] != "v" {
		t.Fatalf("unexpected data: %#v", got)
	}
	if got["doc_id"] != docID {
		t.Fatalf("doc_id mismatch: got %v want %v", got["doc_id"], docID)
	}
}

func TestPersistAssignsDistinctDocIDs(t *testing.T) {
	tbl := newTestTable(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		rec, err := tbl.Persist(Record{"data": map[string]interface{}{"i": float64(i)}})
		if err != nil {
			t.Fatalf("Persist: %v", err)
		}
		id := rec["doc_id"].(string)
		if seen[id] {
			t.Fatalf("duplicate doc_id: %s", id)
		}
		seen[id] = true
	}
}

func TestGetHistoryMostRecentFirst(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Persist(Record{"data": map[string]interface{}{"k": "v"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Persist(Record{"data": map[string]interface{}{"k": "v2"}}); err != nil {
		t.Fatal(err)
	}

	hist, err := tbl.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 records, got %d", len(hist))
	}
	if k := hist[0]["data"].(map[string]interface{})["k"]; k != "v2" {
		t.Fatalf("most recent record wrong: %v", k)
	}
	if k := hist[1]["data"].(map[string]interface{})["k"]; k != "v" {
		t.Fatalf("second record wrong: %v", k)
	}
}

func TestUpdatePreservesDocIDNotHistory(t *testing.T) {
	tbl := newTestTable(t)
	rec, err := tbl.Persist(Record{"data": map[string]interface{}{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	docID := rec["doc_id"].(string)

	if _, err := tbl.Update(Record{"data": map[string]interface{}{"k": "v3"}}, docID); err != nil {
		t.Fatalf("Update: %v", err)
	}

	hist, err := tbl.GetHistory(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected update to overwrite in place, got %d records", len(hist))
	}
	if hist[0]["doc_id"] != docID {
		t.Fatalf("doc_id changed across update: %v", hist[0]["doc_id"])
	}
	if k := hist[0]["data"].(map[string]interface{})["k"]; k != "v3" {
		t.Fatalf("update did not take effect: %v", k)
	}
}

func TestUpdateUnknownDocIDFails(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Persist(Record{"data": map[string]interface{}{"k": "v"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Update(Record{"data": map[string]interface{}{"k": "x"}}, "not-a-real-id"); err == nil {
		t.Fatal("expected RecordNotFound for unknown doc_id")
	}
}

func TestUpdateOnEmptyTableFails(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.Update(Record{"data": map[string]interface{}{"k": "x"}}, "whatever"); err == nil {
		t.Fatal("expected RecordNotFound on empty table")
	}
}

func TestSegmentRollover(t *testing.T) {
	tbl := newTestTable(t)
	for i := 0; i < 1500; i++ {
		if _, err := tbl.Persist(Record{"data": map[string]interface{}{"i": float64(i)}}); err != nil {
			t.Fatalf("Persist #%d: %v", i, err)
		}
	}
	if tbl.meta.CurrentFile != 1 {
		t.Fatalf("expected current_file == 1, got %d", tbl.meta.CurrentFile)
	}
	if tbl.meta.TotalRecords != 1500 {
		t.Fatalf("expected total_records == 1500, got %d", tbl.meta.TotalRecords)
	}

	last3, err := tbl.GetHistory(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(last3) != 3 {
		t.Fatalf("expected 3 records, got %d", len(last3))
	}
	for i, rec := range last3 {
		want := float64(1499 - i)
		if rec["data"].(map[string]interface{})["i"] != want {
			t.Fatalf("record %d: got %v want %v", i, rec["data"].(map[string]interface{})["i"], want)
		}
	}
}

func TestFindWhereReverseChronological(t *testing.T) {
	tbl := newTestTable(t)
	values := []string{"v", "v2", "v2", "v", "v2"}
	ids := make([]string, len(values))
	for i, v := range values {
		rec, err := tbl.Persist(Record{"data": map[string]interface{}{"k": v}})
		if err != nil {
			t.Fatal(err)
		}
		ids[i] = rec["doc_id"].(string)
	}

	matches, err := tbl.FindWhere(map[string]interface{}{"k": "v2"}, NoLimit, true)
	if err != nil {
		t.Fatalf("FindWhere: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matches))
	}
	// persisted order of matching records was indices 1,2,4 -> reverse is 4,2,1
	expectedOrder := []int{4, 2, 1}
	for i, idx := range expectedOrder {
		if matches[i]["data"].(map[string]interface{})["k"] != "v2" {
			t.Fatalf("match %d not v2", i)
		}
		if matches[i]["doc_id"] != ids[idx] {
			t.Fatalf("match %d: got doc_id %v, want that of persisted record %d", i, matches[i]["doc_id"], idx)
		}
	}
}

func TestFindWhereAdvancedOperators(t *testing.T) {
	tbl := newTestTable(t)
	ages := []float64{10, 20, 30, 40}
	for _, age := range ages {
		if _, err := tbl.Persist(Record{"data": map[string]interface{}{"age": age}}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := tbl.FindWhereAdvanced(map[string]Condition{
		"age": {Operator: Gt, Value: float64(15)},
	}, NoLimit, false)
	if err != nil {
		t.Fatalf("FindWhereAdvanced: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results for age > 15, got %d", len(results))
	}
}

func TestFindWhereAdvancedStringOperators(t *testing.T) {
	tbl := newTestTable(t)
	names := []string{"alice", "bob", "alfred"}
	for _, n := range names {
		if _, err := tbl.Persist(Record{"data": map[string]interface{}{"name": n}}); err != nil {
			t.Fatal(err)
		}
	}
	results, err := tbl.FindWhereAdvanced(map[string]Condition{
		"name": {Operator: StartsWith, Value: "al"},
	}, NoLimit, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results starting with 'al', got %d", len(results))
	}
}

func TestGetHistoryLimitGreaterThanTotal(t *testing.T) {
	tbl := newTestTable(t)
	for i := 0; i < 3; i++ {
		if _, err := tbl.Persist(Record{"data": map[string]interface{}{"i": float64(i)}}); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := tbl.GetHistory(1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected all 3 records, got %d", len(hist))
	}
}

func TestGetTableOnEmptyFails(t *testing.T) {
	tbl := newTestTable(t)
	if _, err := tbl.GetTable(); err == nil {
		t.Fatal("expected RecordNotFound on empty table")
	}
}
