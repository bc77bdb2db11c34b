package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestRecordQuality_201_safeVerdict(t *testing.T) {
	router, _ := setupNodeRouter(t)

	body := `{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", testOwner, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if uint64(resp["quality_id"].(float64)) != 1 {
		t.Errorf("expected first record to take ID 1, got %v", resp["quality_id"])
	}
	if resp["is_safe"] != true {
		t.Errorf("expected is_safe=true, got %v", resp["is_safe"])
	}
}

func TestRecordQuality_201_unsafeVerdictStored(t *testing.T) {
	router, _ := setupNodeRouter(t)

	// pH 3.00 is a plausible measurement of very unsafe water: the record
	// is accepted, the verdict is unsafe.
	body := `{"location":"Well-A","ph":300,"tds":500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", testOwner, body)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["is_safe"] != false {
		t.Errorf("expected is_safe=false, got %v", resp["is_safe"])
	}
}

func TestRecordQuality_403_notVerifier(t *testing.T) {
	router, _ := setupNodeRouter(t)

	body := `{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", "intruder", body)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["kind"] != "unauthorized" {
		t.Errorf("expected kind=unauthorized, got %v", resp["kind"])
	}
}

func TestRecordQuality_400_outOfRangePH(t *testing.T) {
	router, _ := setupNodeRouter(t)

	body := `{"location":"Well-A","ph":1401,"tds":500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", testOwner, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["kind"] != "invalid_parameter" {
		t.Errorf("expected kind=invalid_parameter, got %v", resp["kind"])
	}
	if resp["field"] != "ph" {
		t.Errorf("expected field=ph, got %v", resp["field"])
	}
}

func TestRecordQuality_401_noCaller(t *testing.T) {
	router, _ := setupNodeRouter(t)

	body := `{"location":"Well-A","ph":700,"tds":500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", "", body)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGetQuality_200(t *testing.T) {
	router, _ := setupNodeRouter(t)
	id := recordSafeQuality(t, router, "Well-A")

	w := doJSON(router, http.MethodGet, "/api/v1/quality/1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Record struct {
			ID       uint64 `json:"id"`
			Location string `json:"location"`
			Verifier string `json:"verifier"`
			IsSafe   bool   `json:"is_safe"`
		} `json:"record"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Record.ID != id {
		t.Errorf("expected record ID %d, got %d", id, resp.Record.ID)
	}
	if resp.Record.Location != "Well-A" {
		t.Errorf("expected location Well-A, got %q", resp.Record.Location)
	}
	if resp.Record.Verifier != testOwner {
		t.Errorf("expected verifier %q, got %q", testOwner, resp.Record.Verifier)
	}
}

func TestGetQuality_404_unknownID(t *testing.T) {
	router, _ := setupNodeRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quality/999", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetQuality_404_reservedZeroID(t *testing.T) {
	router, _ := setupNodeRouter(t)
	recordSafeQuality(t, router, "Well-A")

	w := doJSON(router, http.MethodGet, "/api/v1/quality/0", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for reserved ID 0, got %d", w.Code)
	}
}

func TestGetQuality_400_invalidID(t *testing.T) {
	router, _ := setupNodeRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quality/abc", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHistory_200_insertionOrder(t *testing.T) {
	router, _ := setupNodeRouter(t)
	recordSafeQuality(t, router, "Well-A")
	recordSafeQuality(t, router, "Well-B")
	recordSafeQuality(t, router, "Well-A")

	w := doJSON(router, http.MethodGet, "/api/v1/quality/history?location=Well-A", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		QualityIDs []uint64 `json:"quality_ids"`
		Count      int      `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 2 || len(resp.QualityIDs) != 2 {
		t.Fatalf("expected 2 records for Well-A, got %v", resp.QualityIDs)
	}
	if resp.QualityIDs[0] != 1 || resp.QualityIDs[1] != 3 {
		t.Errorf("expected history [1 3], got %v", resp.QualityIDs)
	}
}

func TestHistory_200_unknownLocationEmpty(t *testing.T) {
	router, _ := setupNodeRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quality/history?location=Nowhere", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if int(resp["count"].(float64)) != 0 {
		t.Errorf("expected empty history, got %v", resp["quality_ids"])
	}
}

func TestHistory_400_missingLocation(t *testing.T) {
	router, _ := setupNodeRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quality/history", "", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestLatestSafety_200_tracksNewestRecord(t *testing.T) {
	router, _ := setupNodeRouter(t)
	recordSafeQuality(t, router, "Well-A")

	// A later unsafe measurement flips the location's latest verdict.
	body := `{"location":"Well-A","ph":700,"tds":1500,"turbidity":2,"temperature":250}`
	w := doJSON(router, http.MethodPost, "/api/v1/quality", testOwner, body)
	if w.Code != http.StatusCreated {
		t.Fatalf("record unsafe quality: got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodGet, "/api/v1/quality/latest?location=Well-A", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["known"] != true {
		t.Fatalf("expected known=true, got %v", resp["known"])
	}
	if resp["is_safe"] != false {
		t.Errorf("expected is_safe=false after unsafe measurement, got %v", resp["is_safe"])
	}
	if uint64(resp["quality_id"].(float64)) != 2 {
		t.Errorf("expected latest quality_id 2, got %v", resp["quality_id"])
	}
}

func TestLatestSafety_200_unknownLocation(t *testing.T) {
	router, _ := setupNodeRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/quality/latest?location=Nowhere", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["known"] != false {
		t.Errorf("expected known=false, got %v", resp["known"])
	}
}
