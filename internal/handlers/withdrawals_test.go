package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/mocks/service_mocks"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/service"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

const testWithdrawalID = "5d3c1b2a-9e8f-4a7b-8c6d-5e4f3a2b1c0d"

func testWithdrawal(status models.WithdrawalStatus) *models.Withdrawal {
	return &models.Withdrawal{
		ID:       testWithdrawalID,
		Status:   status,
		Amount:   decimal.NewFromInt(40),
		UserID:   testUserID,
		Currency: models.CurrencyUSD,
	}
}

func TestHandler_InitiateWithdrawal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockWithdrawals := service_mocks.NewMockWithdrawalService(ctrl)
	router := newTestRouter(nil, mockWithdrawals)

	validBody := `{"user_id":"` + testUserID + `","amount":"40","currency":"USD","destination_email":"payee@example.com","metadata":{"note":"rent"}}`

	tests := []struct {
		name           string
		body           string
		mockSetup      func()
		wantStatusCode int
	}{
		{
			name: "created",
			body: validBody,
			mockSetup: func() {
				mockWithdrawals.EXPECT().Initiate(gomock.Any(), gomock.Any()).DoAndReturn(
					func(_ context.Context, req service.InitiateWithdrawalRequest) (*models.Withdrawal, error) {
						assert.Equal(t, testUserID, req.UserID)
						assert.Equal(t, "payee@example.com", req.DestinationEmail)
						assert.JSONEq(t, `{"note":"rent"}`, string(req.Metadata))
						return testWithdrawal(models.StatusPendingVerification), nil
					})
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "missing email",
			body:           `{"user_id":"` + testUserID + `","amount":"40","currency":"USD"}`,
			mockSetup:      func() {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "empty body",
			body:           "",
			mockSetup:      func() {},
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "insufficient funds",
			body: validBody,
			mockSetup: func() {
				mockWithdrawals.EXPECT().Initiate(gomock.Any(), gomock.Any()).Return(nil, apperrors.InsufficientFunds("insufficient available funds to hold", "cid"))
			},
			wantStatusCode: http.StatusPaymentRequired,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			w := serve(router, http.MethodPost, "/api/withdrawals", tt.body)
			assert.Equal(t, tt.wantStatusCode, w.Code)
		})
	}
}

func TestHandler_GetAndListWithdrawals(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockWithdrawals := service_mocks.NewMockWithdrawalService(ctrl)
	router := newTestRouter(nil, mockWithdrawals)

	mockWithdrawals.EXPECT().Get(gomock.Any(), testWithdrawalID).Return(testWithdrawal(models.StatusCommitted), nil)
	w := serve(router, http.MethodGet, "/api/withdrawals/"+testWithdrawalID, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"COMMITTED"`)

	notFound := apperrors.NotFound("withdrawal not found", apperrors.CodeWithdrawalNotFound)
	mockWithdrawals.EXPECT().Get(gomock.Any(), testWithdrawalID).Return(nil, notFound)
	w = serve(router, http.MethodGet, "/api/withdrawals/"+testWithdrawalID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeWithdrawalNotFound, decodeError(t, w).Code)

	mockWithdrawals.EXPECT().ListByUser(gomock.Any(), testUserID).Return([]models.Withdrawal{}, nil)
	w = serve(router, http.MethodGet, "/api/users/"+testUserID+"/withdrawals", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestHandler_WithdrawalTransitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockWithdrawals := service_mocks.NewMockWithdrawalService(ctrl)
	router := newTestRouter(nil, mockWithdrawals)

	tests := []struct {
		name           string
		action         string
		body           string
		mockSetup      func()
		wantStatusCode int
	}{
		{
			name:   "process",
			action: "process",
			mockSetup: func() {
				mockWithdrawals.EXPECT().Process(gomock.Any(), testWithdrawalID).Return(testWithdrawal(models.StatusCommitted), nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:   "process provider failure",
			action: "process",
			mockSetup: func() {
				err := apperrors.Internal("failed to process withdrawal", errors.New("timeout"))
				err.Code = apperrors.CodeWithdrawalProcessing
				mockWithdrawals.EXPECT().Process(gomock.Any(), testWithdrawalID).Return(nil, err)
			},
			wantStatusCode: http.StatusInternalServerError,
		},
		{
			name:   "reject with reason",
			action: "reject",
			body:   `{"reason":"kyc mismatch"}`,
			mockSetup: func() {
				mockWithdrawals.EXPECT().Reject(gomock.Any(), testWithdrawalID, "kyc mismatch").Return(testWithdrawal(models.StatusRejected), nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:   "cancel without body",
			action: "cancel",
			mockSetup: func() {
				mockWithdrawals.EXPECT().Cancel(gomock.Any(), testWithdrawalID, "").Return(testWithdrawal(models.StatusCanceled), nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:   "complete from wrong state",
			action: "complete",
			mockSetup: func() {
				mockWithdrawals.EXPECT().Complete(gomock.Any(), testWithdrawalID).Return(nil, apperrors.InvalidStateTransition("PENDING_VERIFICATION", "SUCCEEDED"))
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:   "fail",
			action: "fail",
			body:   `{"reason":"account closed"}`,
			mockSetup: func() {
				mockWithdrawals.EXPECT().Fail(gomock.Any(), testWithdrawalID, "account closed").Return(testWithdrawal(models.StatusRefunded), nil)
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:   "refund concurrent modification",
			action: "refund",
			mockSetup: func() {
				mockWithdrawals.EXPECT().Refund(gomock.Any(), testWithdrawalID).Return(nil, apperrors.Conflict("modified", apperrors.CodeConcurrentModification))
			},
			wantStatusCode: http.StatusConflict,
		},
		{
			name:           "malformed reason",
			action:         "reject",
			body:           `{"reason":`,
			mockSetup:      func() {},
			wantStatusCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			w := serve(router, http.MethodPost, "/api/withdrawals/"+testWithdrawalID+"/"+tt.action, tt.body)
			assert.Equal(t, tt.wantStatusCode, w.Code)
		})
	}
}

func TestHandler_PayoutWebhook(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockWithdrawals := service_mocks.NewMockWithdrawalService(ctrl)
	router := newTestRouter(nil, mockWithdrawals)

	body := `{"event":"payout.failed","event_id":"evt-9","data":{"reference_id":"` + testWithdrawalID + `","transaction_id":"po-1","status":"failed","failure_reason":"closed"}}`

	mockWithdrawals.EXPECT().HandlePayoutWebhook(gomock.Any(), service.PayoutWebhookEvent{
		EventID: "evt-9",
		Event:   service.WebhookPayoutFailed,
		Data: service.PayoutWebhookData{
			ReferenceID:   testWithdrawalID,
			TransactionID: "po-1",
			Status:        "failed",
			FailureReason: "closed",
		},
	}).Return(testWithdrawal(models.StatusRefunded), nil)

	w := serve(router, http.MethodPost, "/api/webhooks/payout", body)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPost, "/api/webhooks/payout", `{"event":"payout.success","data":{}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
