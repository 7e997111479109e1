package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishmarket/models"
	"fishmarket/utils"
)

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*signupRequest)
		message string
	}{
		{
			"missing fields",
			func(r *signupRequest) { r.Email = "" },
			"Make sure you fill all fields",
		},
		{
			"password mismatch",
			func(r *signupRequest) { r.ConfirmPassword = "different" },
			"Passwords do not match",
		},
		{
			"bad role",
			func(r *signupRequest) { r.Role = "admin" },
			"Role must be buyer or seller",
		},
		{
			"bad phone",
			func(r *signupRequest) { r.ContactNo = "not-a-phone" },
			"Contact number is not a valid phone number",
		},
		{
			"bad date of birth",
			func(r *signupRequest) { r.DateOfBirth = "June 1 2000" },
			"Date of birth must be YYYY-MM-DD",
		},
		{
			"underage",
			func(r *signupRequest) { r.DateOfBirth = "2010-01-01" },
			"You must be at least 18 years old to register",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newTestController(t)

			req := signupRequest{
				FirstName:       "Maria",
				LastName:        "Santos",
				Username:        "maria",
				Email:           "maria@example.com",
				ContactNo:       "09170000001",
				Address:         "Cebu",
				DateOfBirth:     "1995-03-14",
				Password:        "hunter22",
				ConfirmPassword: "hunter22",
				Role:            models.RoleBuyer,
			}
			tt.mutate(&req)

			w := httptest.NewRecorder()
			c.Signup(w, jsonRequest(t, http.MethodPost, "/auth/signup", req))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSignupUnverifiedDuplicate(t *testing.T) {
	c, mock := newTestController(t)

	existing := testBuyer()
	existing.IsVerified = false
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(existing))

	req := signupRequest{
		FirstName:       "Maria",
		LastName:        "Santos",
		Username:        existing.Username,
		Email:           existing.Email,
		ContactNo:       existing.ContactNo,
		DateOfBirth:     "1995-03-14",
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
		Role:            models.RoleBuyer,
	}

	w := httptest.NewRecorder()
	c.Signup(w, jsonRequest(t, http.MethodPost, "/auth/signup", req))

	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["unverified"])
	assert.Equal(t, existing.ContactNo, body["contact_no"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin(t *testing.T) {
	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)

	pending := models.ApprovalPending
	rejected := models.ApprovalRejected

	tests := []struct {
		name    string
		mutate  func(*models.Account)
		rows    bool
		code    int
		message string
	}{
		{
			"unknown identifier",
			nil,
			false,
			http.StatusNotFound,
			"No account matches this identifier",
		},
		{
			"unverified account",
			func(a *models.Account) { a.IsVerified = false },
			true,
			http.StatusUnauthorized,
			"Account is not verified",
		},
		{
			"pending seller",
			func(a *models.Account) {
				a.Role = models.RoleSeller
				a.ApprovalStatus = &pending
			},
			true,
			http.StatusUnauthorized,
			"Seller account is awaiting admin approval",
		},
		{
			"rejected seller",
			func(a *models.Account) {
				a.Role = models.RoleSeller
				a.ApprovalStatus = &rejected
			},
			true,
			http.StatusUnauthorized,
			"Seller account has been rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newTestController(t)

			account := testBuyer()
			account.Password = hash
			if tt.mutate != nil {
				tt.mutate(account)
			}

			query := mock.ExpectQuery("SELECT .* FROM accounts")
			if tt.rows {
				query.WillReturnRows(accountRows(account))
			} else {
				query.WillReturnRows(accountRows())
			}

			w := httptest.NewRecorder()
			c.Login(w, jsonRequest(t, http.MethodPost, "/auth/login", loginRequest{
				Identifier: "maria",
				Password:   "hunter22",
			}))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestLoginWrongPassword(t *testing.T) {
	c, mock := newTestController(t)

	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)
	account := testBuyer()
	account.Password = hash

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))

	w := httptest.NewRecorder()
	c.Login(w, jsonRequest(t, http.MethodPost, "/auth/login", loginRequest{
		Identifier: "maria",
		Password:   "wrong",
	}))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Incorrect password", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSuccess(t *testing.T) {
	c, mock := newTestController(t)

	hash, err := utils.HashPassword("hunter22")
	require.NoError(t, err)
	account := testSeller()
	account.Password = hash

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))

	w := httptest.NewRecorder()
	c.Login(w, jsonRequest(t, http.MethodPost, "/auth/login", loginRequest{
		Identifier: account.Email,
		Password:   "hunter22",
	}))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.NotEmpty(t, body["token"])

	parsed, err := c.Tokens.Parse(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, account.ID, parsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPSuccess(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	account.IsVerified = false

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))
	mock.ExpectQuery("SELECT .* FROM otps").WillReturnRows(
		sqlmock.NewRows(otpColumns).AddRow(
			uuid.New().String(), account.ID.String(), "123456",
			fixedNow.Add(2*time.Minute), fixedNow.Add(-3*time.Minute),
		))
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM otps").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	c.VerifyOTP(w, jsonRequest(t, http.MethodPost, "/auth/verify-otp", verifyOTPRequest{
		ContactNo: account.ContactNo,
		Code:      "123456",
	}))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.NotEmpty(t, body["token"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPExpired(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	account.IsVerified = false

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))
	mock.ExpectQuery("SELECT .* FROM otps").WillReturnRows(
		sqlmock.NewRows(otpColumns).AddRow(
			uuid.New().String(), account.ID.String(), "123456",
			fixedNow.Add(-time.Minute), fixedNow.Add(-6*time.Minute),
		))
	// Expired codes are purged on sight
	mock.ExpectExec("DELETE FROM otps").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	c.VerifyOTP(w, jsonRequest(t, http.MethodPost, "/auth/verify-otp", verifyOTPRequest{
		ContactNo: account.ContactNo,
		Code:      "123456",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Verification code has expired, request a new one", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPWrongCode(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	account.IsVerified = false

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))
	mock.ExpectQuery("SELECT .* FROM otps").WillReturnRows(
		sqlmock.NewRows(otpColumns).AddRow(
			uuid.New().String(), account.ID.String(), "123456",
			fixedNow.Add(2*time.Minute), fixedNow.Add(-3*time.Minute),
		))

	w := httptest.NewRecorder()
	c.VerifyOTP(w, jsonRequest(t, http.MethodPost, "/auth/verify-otp", verifyOTPRequest{
		ContactNo: account.ContactNo,
		Code:      "654321",
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Incorrect verification code", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTPAlreadyVerified(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))

	w := httptest.NewRecorder()
	c.VerifyOTP(w, jsonRequest(t, http.MethodPost, "/auth/verify-otp", verifyOTPRequest{
		ContactNo: account.ContactNo,
		Code:      "123456",
	}))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResendOTPCooldown(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	account.IsVerified = false

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))
	mock.ExpectQuery("SELECT .* FROM otps").WillReturnRows(
		sqlmock.NewRows(otpColumns).AddRow(
			uuid.New().String(), account.ID.String(), "123456",
			fixedNow.Add(90*time.Second), fixedNow.Add(-time.Minute),
		))

	w := httptest.NewRecorder()
	c.ResendOTP(w, jsonRequest(t, http.MethodPost, "/auth/resend-otp", resendOTPRequest{
		ContactNo: account.ContactNo,
	}))

	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, float64(90), decodeBody(t, w)["retry_after"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResendOTPAfterExpiry(t *testing.T) {
	c, mock := newTestController(t)

	account := testBuyer()
	account.IsVerified = false

	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(account))
	mock.ExpectQuery("SELECT .* FROM otps").WillReturnRows(
		sqlmock.NewRows(otpColumns).AddRow(
			uuid.New().String(), account.ID.String(), "123456",
			fixedNow.Add(-time.Minute), fixedNow.Add(-6*time.Minute),
		))
	mock.ExpectExec("DELETE FROM otps").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO otps").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	c.ResendOTP(w, jsonRequest(t, http.MethodPost, "/auth/resend-otp", resendOTPRequest{
		ContactNo: account.ContactNo,
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["otp_sent"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
