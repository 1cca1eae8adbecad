package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreatePayout(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		serverStatus   int
		wantID         string
		wantErr        bool
	}{
		{
			name:           "created",
			serverResponse: `{"id":"po_1","status":"PENDING","amount":"42.5","currency":"USD"}`,
			serverStatus:   http.StatusCreated,
			wantID:         "po_1",
		},
		{
			name:           "ok status",
			serverResponse: `{"id":"po_2","status":"PENDING","amount":"42.5","currency":"USD"}`,
			serverStatus:   http.StatusOK,
			wantID:         "po_2",
		},
		{
			name:         "provider error",
			serverStatus: http.StatusBadGateway,
			wantErr:      true,
		},
		{
			name:           "missing id",
			serverResponse: `{"status":"PENDING"}`,
			serverStatus:   http.StatusOK,
			wantErr:        true,
		},
		{
			name:           "invalid json",
			serverResponse: `{"id":`,
			serverStatus:   http.StatusOK,
			wantErr:        true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/payouts", r.URL.Path)

				var req PayoutRequest
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "w-1", req.WithdrawalID)
				assert.True(t, decimal.RequireFromString("42.5").Equal(req.Amount))

				w.WriteHeader(tt.serverStatus)
				_, _ = w.Write([]byte(tt.serverResponse))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			client.httpClient.Timeout = 2 * time.Second

			resp, err := client.CreatePayout(context.Background(), PayoutRequest{
				WithdrawalID: "w-1",
				Amount:       decimal.RequireFromString("42.5"),
				Currency:     "USD",
				Email:        "payee@example.com",
			})
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, resp.ID)
			assert.Equal(t, StatusPending, resp.Status)
		})
	}
}

func TestClient_CommitPayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payouts/po_1/commit", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"po_1","status":"COMMITTED"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).CommitPayout(context.Background(), "po_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCommitted, resp.Status)
}

func TestClient_GetPayoutStatus(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		serverStatus   int
		wantStatus     PayoutStatus
		wantResp       bool
		wantErr        bool
	}{
		{
			name:           "completed",
			serverResponse: `{"id":"po_1","status":"COMPLETED"}`,
			serverStatus:   http.StatusOK,
			wantStatus:     StatusCompleted,
			wantResp:       true,
		},
		{
			name:           "failed with reason",
			serverResponse: `{"id":"po_1","status":"FAILED","failure_reason":"account closed"}`,
			serverStatus:   http.StatusOK,
			wantStatus:     StatusFailed,
			wantResp:       true,
		},
		{
			name:         "not known yet",
			serverStatus: http.StatusNotFound,
		},
		{
			name:         "rate limited",
			serverStatus: http.StatusTooManyRequests,
		},
		{
			name:         "server error",
			serverStatus: http.StatusInternalServerError,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.serverStatus)
				_, _ = w.Write([]byte(tt.serverResponse))
			}))
			defer srv.Close()

			resp, status, err := NewClient(srv.URL).GetPayoutStatus(context.Background(), "po_1")
			assert.Equal(t, tt.serverStatus, status)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if !tt.wantResp {
				assert.Nil(t, resp)
				return
			}
			assert.Equal(t, tt.wantStatus, resp.Status)
		})
	}
}

func TestClient_VerifyEligibility(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse string
		serverStatus   int
		want           bool
		wantErr        bool
	}{
		{
			name:           "eligible",
			serverResponse: `{"eligible":true}`,
			serverStatus:   http.StatusOK,
			want:           true,
		},
		{
			name:           "not eligible",
			serverResponse: `{"eligible":false}`,
			serverStatus:   http.StatusOK,
		},
		{
			name:         "unknown payee",
			serverStatus: http.StatusNotFound,
		},
		{
			name:           "malformed body",
			serverResponse: `{"eligible":`,
			serverStatus:   http.StatusOK,
			wantErr:        true,
		},
		{
			name:         "server error",
			serverStatus: http.StatusBadGateway,
			wantErr:      true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/payees/eligibility", r.URL.Path)
				assert.Equal(t, "payee+1@example.com", r.URL.Query().Get("email"))
				w.WriteHeader(tt.serverStatus)
				_, _ = w.Write([]byte(tt.serverResponse))
			}))
			defer srv.Close()

			got, err := NewClient(srv.URL).VerifyEligibility(context.Background(), "payee+1@example.com")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
