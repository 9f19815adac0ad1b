package service

import (
	"testing"

	"github.com/provalia/cbt-backend/internal/model"
)

func TestSubmittedViaReadsFinishEntry(t *testing.T) {
	entries := []model.LogEntry{
		{ID: 1, Type: model.ActionSessionStarted},
		{ID: 2, Type: model.ActionAnswerSaved},
		{ID: 3, Type: model.ActionSessionFinished, Details: &model.ActionDetails{Via: model.SubmitViaManual}},
	}

	if via := submittedVia(entries); via != model.SubmitViaManual {
		t.Fatalf("via = %s, want %s", via, model.SubmitViaManual)
	}
}

func TestSubmittedViaDefaultsToAuto(t *testing.T) {
	entries := []model.LogEntry{
		{ID: 1, Type: model.ActionSessionStarted},
		{ID: 2, Type: model.ActionNavigated},
	}

	if via := submittedVia(entries); via != model.SubmitViaAuto {
		t.Fatalf("via = %s, want %s", via, model.SubmitViaAuto)
	}
}
