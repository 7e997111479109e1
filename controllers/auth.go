package controllers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"fishmarket/database"
	"fishmarket/models"
	"fishmarket/utils"
)

type signupRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	ContactNo       string `json:"contact_no"`
	Address         string `json:"address"`
	DateOfBirth     string `json:"date_of_birth"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role"`
}

func (c *Controller) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Validate required fields
	if req.FirstName == "" || req.LastName == "" || req.Username == "" ||
		req.Email == "" || req.ContactNo == "" || req.Password == "" {
		utils.HandleError(w, http.StatusBadRequest, "Make sure you fill all fields")
		return
	}
	if req.Password != req.ConfirmPassword {
		utils.HandleError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}
	if !models.ValidSignupRole(req.Role) {
		utils.HandleError(w, http.StatusBadRequest, "Role must be buyer or seller")
		return
	}
	if !utils.IsValidPhone(req.ContactNo) {
		utils.HandleError(w, http.StatusBadRequest, "Contact number is not a valid phone number")
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Date of birth must be YYYY-MM-DD")
		return
	}
	if !utils.IsAdult(dob, c.Now()) {
		utils.HandleError(w, http.StatusBadRequest, "You must be at least 18 years old to register")
		return
	}

	// Check whether the username, email or contact number is already taken
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Or{
			squirrel.Expr("LOWER(username) = LOWER(?)", req.Username),
			squirrel.Expr("LOWER(email) = LOWER(?)", req.Email),
			squirrel.Eq{"contact_no": req.ContactNo},
		}).
		OrderBy("is_verified DESC", "created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("signup duplicate check", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var existing models.Account
	if err := c.DB.GetContext(r.Context(), &existing, query, args...); err == nil {
		if existing.IsVerified {
			utils.HandleError(w, http.StatusConflict, "An account with this username, email, or contact number already exists")
			return
		}
		// An unverified duplicate gets pointed back to OTP entry instead of
		// registering again.
		utils.SendJSONResponse(w, http.StatusConflict, map[string]interface{}{
			"error":      "An unverified account with these details already exists",
			"unverified": true,
			"contact_no": existing.ContactNo,
		})
		return
	}

	// Hash the password
	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to hash password")
		slog.Error("signup hash password", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	now := c.Now()
	account := models.Account{
		ID:          uuid.New(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Username:    req.Username,
		Email:       req.Email,
		ContactNo:   req.ContactNo,
		Address:     req.Address,
		DateOfBirth: dob,
		Password:    hashedPassword,
		Role:        req.Role,
		IsVerified:  false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Role == models.RoleSeller {
		pending := models.ApprovalPending
		account.ApprovalStatus = &pending
	}

	// Insert the new account
	query, args, err = QB.Insert("accounts").
		Columns("id", "first_name", "last_name", "username", "email", "contact_no",
			"address", "date_of_birth", "password", "role", "is_verified",
			"approval_status", "created_at", "updated_at").
		Values(account.ID, account.FirstName, account.LastName, account.Username,
			account.Email, account.ContactNo, account.Address, account.DateOfBirth,
			account.Password, account.Role, account.IsVerified,
			account.ApprovalStatus, account.CreatedAt, account.UpdatedAt).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(accountColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to create account")
		slog.Error("signup insert", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&account); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Error creating account")
		slog.Error("signup insert", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	// Issue the OTP; SMS failure is reported, never fatal
	sent, err := c.issueOTP(r.Context(), &account)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to create verification code")
		slog.Error("signup issue otp", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"account":  account,
		"otp_sent": sent,
	})
}

type verifyOTPRequest struct {
	ContactNo string `json:"contact_no"`
	Code      string `json:"code"`
}

func (c *Controller) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ContactNo == "" || req.Code == "" {
		utils.HandleError(w, http.StatusBadRequest, "Contact number and code are required")
		return
	}

	account, err := c.accountByContact(r.Context(), req.ContactNo)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			utils.HandleError(w, http.StatusNotFound, "No account matches this contact number")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to look up account")
		slog.Error("verify otp lookup", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if account.IsVerified {
		utils.HandleError(w, http.StatusConflict, "Account is already verified")
		return
	}

	otp, err := c.latestOTP(r.Context(), account.ID)
	if err != nil {
		if errors.Is(err, database.ErrOTPNotFound) {
			utils.HandleError(w, http.StatusBadRequest, "No verification code on record, request a new one")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to look up verification code")
		slog.Error("verify otp lookup code", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	// The digits must match the most recent record and it must be unexpired
	if otp.Code != req.Code {
		utils.HandleError(w, http.StatusBadRequest, "Incorrect verification code")
		return
	}
	if c.Now().After(otp.ExpiresAt) {
		if err := c.deleteOTPs(r.Context(), account.ID); err != nil {
			slog.Error("delete expired otps", "error", err)
		}
		utils.HandleError(w, http.StatusBadRequest, "Verification code has expired, request a new one")
		return
	}

	// Mark the account verified
	query, args, err := QB.Update("accounts").
		Set("is_verified", true).
		Set("updated_at", c.Now()).
		Where(squirrel.Eq{"id": account.ID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("verify otp update", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to verify account")
		slog.Error("verify otp update", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	account.IsVerified = true

	// The code is consumed on success
	if err := c.deleteOTPs(r.Context(), account.ID); err != nil {
		slog.Error("delete consumed otps", "error", err)
	}

	// Verification doubles as login
	signed, err := c.Tokens.Issue(account.ID, c.Now())
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to issue session token")
		slog.Error("verify otp issue token", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":   signed,
		"account": account,
	})
}

type resendOTPRequest struct {
	ContactNo string `json:"contact_no"`
}

func (c *Controller) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ContactNo == "" {
		utils.HandleError(w, http.StatusBadRequest, "Contact number is required")
		return
	}

	account, err := c.accountByContact(r.Context(), req.ContactNo)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			utils.HandleError(w, http.StatusNotFound, "No account matches this contact number")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to look up account")
		slog.Error("resend otp lookup", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if account.IsVerified {
		utils.HandleError(w, http.StatusConflict, "Account is already verified")
		return
	}

	// An unexpired code imposes a cooldown equal to its remaining TTL
	if otp, err := c.latestOTP(r.Context(), account.ID); err == nil {
		if remaining := otp.ExpiresAt.Sub(c.Now()); remaining > 0 {
			utils.SendJSONResponse(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":       "A verification code was sent recently, wait before requesting another",
				"retry_after": int(remaining.Seconds()),
			})
			return
		}
	}

	sent, err := c.issueOTP(r.Context(), account)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to create verification code")
		slog.Error("resend otp issue", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"otp_sent": sent,
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Identifier == "" || req.Password == "" {
		utils.HandleError(w, http.StatusBadRequest, "Identifier and password are required")
		return
	}

	// The identifier may be a username, email, or contact number
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Or{
			squirrel.Expr("LOWER(username) = LOWER(?)", req.Identifier),
			squirrel.Expr("LOWER(email) = LOWER(?)", req.Identifier),
			squirrel.Eq{"contact_no": req.Identifier},
		}).
		OrderBy("is_verified DESC", "created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("login lookup", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var account models.Account
	if err := c.DB.GetContext(r.Context(), &account, query, args...); err != nil {
		utils.HandleError(w, http.StatusNotFound, "No account matches this identifier")
		return
	}

	if !account.IsVerified {
		utils.HandleError(w, http.StatusUnauthorized, "Account is not verified")
		return
	}

	// Sellers must clear admin approval before they can log in
	if account.Role == models.RoleSeller && account.ApprovalStatus != nil {
		switch *account.ApprovalStatus {
		case models.ApprovalPending:
			utils.HandleError(w, http.StatusUnauthorized, "Seller account is awaiting admin approval")
			return
		case models.ApprovalRejected:
			utils.HandleError(w, http.StatusUnauthorized, "Seller account has been rejected")
			return
		}
	}

	if err := utils.CheckPassword(account.Password, req.Password); err != nil {
		utils.HandleError(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	signed, err := c.Tokens.Issue(account.ID, c.Now())
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to issue session token")
		slog.Error("login issue token", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":   signed,
		"account": account,
	})
}

// issueOTP supersedes any previous codes, stores a fresh 6-digit code, and
// attempts delivery. The returned flag reports delivery only; storage
// failures are errors.
func (c *Controller) issueOTP(ctx context.Context, account *models.Account) (bool, error) {
	code, err := utils.GenerateOTPCode(6)
	if err != nil {
		return false, fmt.Errorf("generate otp: %w", err)
	}

	if err := c.deleteOTPs(ctx, account.ID); err != nil {
		return false, fmt.Errorf("supersede otps: %w", err)
	}

	now := c.Now()
	query, args, err := QB.Insert("otps").
		Columns("id", "account_id", "code", "expires_at", "created_at").
		Values(uuid.New(), account.ID, code, now.Add(c.OTPTTL), now).
		ToSql()
	if err != nil {
		return false, err
	}
	if _, err := c.DB.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("store otp: %w", err)
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(c.OTPTTL.Minutes()))
	if err := c.SMS.Send(ctx, account.ContactNo, message); err != nil {
		slog.Error("otp sms delivery failed", "contact_no", account.ContactNo, "error", err)
		return false, nil
	}
	return true, nil
}

func (c *Controller) latestOTP(ctx context.Context, accountID uuid.UUID) (*models.OTP, error) {
	query, args, err := QB.Select(otpColumns...).
		From("otps").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var otp models.OTP
	if err := c.DB.GetContext(ctx, &otp, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOTPNotFound
		}
		return nil, err
	}
	return &otp, nil
}

func (c *Controller) deleteOTPs(ctx context.Context, accountID uuid.UUID) error {
	query, args, err := QB.Delete("otps").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := c.DB.ExecContext(ctx, query, args...); err != nil {
		return err
	}
	return nil
}
