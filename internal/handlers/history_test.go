package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/doctracker/internal/handlers/testutil"
)

func TestReminderHistoryListsDeliveredReminders(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser(nil)
	other := env.CreateUser(nil)
	doc := env.CreateDocument(user, "Passport", 7)
	env.CreateDocument(other, "Visa", 7)

	code, summary := decodeSummary(t, env, http.MethodGet, testutil.SecretHeaders())
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 2, summary.Sent)

	w := env.Request(http.MethodGet, "/api/reminders/history?limit=10", nil, env.Token(user))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var entries []struct {
		DocumentID     string `json:"document_id"`
		Interval       int    `json:"interval"`
		RunDate        string `json:"run_date"`
		ExpirationDate string `json:"expiration_date"`
		Recipient      string `json:"recipient"`
	}
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &entries)
	require.Len(t, entries, 1)
	require.Equal(t, doc.ID, entries[0].DocumentID)
	require.Equal(t, 7, entries[0].Interval)
	require.Equal(t, "2024-03-01", entries[0].RunDate)
	require.Equal(t, "2024-03-08", entries[0].ExpirationDate)
	require.Equal(t, user.Email, entries[0].Recipient)
}

func TestReminderHistoryRequiresAuthentication(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/reminders/history", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
