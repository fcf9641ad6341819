package e2e

import (
	"net/http"
	"testing"
)

func TestVocabularyFlow_StartToCompletion(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"textbookId": 42,
		"items": [
			{"pageNumber": 1, "blockId": "b1", "text": "The water cycle describes how water evaporates."},
			{"pageNumber": 2, "blockId": "b2", "text": "Clouds form when water vapor condenses."}
		]
	}`
	resp, err := doRequest(ta.app, http.MethodPost, "/api/vocabulary/start", body, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	accepted := parseJSON(t, resp)
	jobID, _ := accepted["jobId"].(string)
	if jobID == "" {
		t.Fatalf("no jobId in response: %v", accepted)
	}

	ta.runner.Wait()

	resp, err = doRequest(ta.app, http.MethodGet, "/api/vocabulary/status/"+jobID, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)

	status := parseJSON(t, resp)
	if status["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED, got %v (error: %v)", status["status"], status["error"])
	}
	if totalBlocks, _ := status["totalBlocks"].(float64); totalBlocks != 2 {
		t.Errorf("expected 2 total blocks, got %v", status["totalBlocks"])
	}

	resp, err = doRequest(ta.app, http.MethodGet, "/api/vocabulary/result/"+jobID, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if tb, _ := result["textbookId"].(float64); tb != 42 {
		t.Errorf("expected textbookId 42, got %v", result["textbookId"])
	}
	blocks, ok := result["blocks"].([]interface{})
	if !ok || len(blocks) != 2 {
		t.Errorf("expected 2 blocks in aggregate, got %v", result["blocks"])
	}
}

func TestVocabularyFlow_ValidationRejectsEmptyItems(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/vocabulary/start", `{"textbookId": 42, "items": []}`, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, _ := body["error"].(map[string]interface{})
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", errObj)
	}
}

func TestVocabularyFlow_ValidationRejectsMissingTextbook(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/vocabulary/start",
		`{"items": [{"pageNumber": 1, "blockId": "b1", "text": "hello"}]}`, nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	readBody(t, resp)
}
