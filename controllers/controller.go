package controllers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"fishmarket/database"
	"fishmarket/images"
	"fishmarket/models"
	"fishmarket/sms"
	"fishmarket/token"
	"fishmarket/utils"
)

var (
	QB = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

	accountColumns = []string{
		"id", "first_name", "last_name", "username", "email", "contact_no",
		"address", "date_of_birth", "password", "role", "is_verified",
		"approval_status", "approved_by", "approved_at", "created_at", "updated_at",
	}
	otpColumns = []string{"id", "account_id", "code", "expires_at", "created_at"}
	itemColumns = []string{
		"id", "seller_id", "item_type", "item_name", "item_price", "quantity",
		"unit", "image_url", "image_id", "description", "location", "is_active",
		"catch_date", "deleted_at", "created_at", "updated_at",
	}
	receiptColumns = []string{
		"id", "item_id", "seller_id", "buyer_id", "item_type", "item_name",
		"item_price", "unit", "image_url", "quantity_sold", "total_amount",
		"sale_date", "status", "notes",
	}
)

// prefixed qualifies column names for joined queries.
func prefixed(alias string, columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return out
}

type Controller struct {
	DB     *sqlx.DB
	Tokens *token.Manager
	SMS    sms.Sender
	Images images.Host
	OTPTTL time.Duration

	// Now is swapped out by tests that exercise expiry windows.
	Now func() time.Time
}

func New(db *sqlx.DB, tokens *token.Manager, sender sms.Sender, imageHost images.Host, otpTTL time.Duration) *Controller {
	return &Controller{
		DB:     db,
		Tokens: tokens,
		SMS:    sender,
		Images: imageHost,
		OTPTTL: otpTTL,
		Now:    time.Now,
	}
}

type contextKey int

const accountContextKey contextKey = 0

// AccountFrom returns the authenticated account placed on the request by
// RequireAuth.
func AccountFrom(r *http.Request) *models.Account {
	account, _ := r.Context().Value(accountContextKey).(*models.Account)
	return account
}

// RequireAuth resolves the bearer token to a verified account and stores it
// on the request context.
func (c *Controller) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			utils.HandleError(w, http.StatusUnauthorized, "Missing or malformed authorization header")
			return
		}

		accountID, err := c.Tokens.Parse(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			utils.HandleError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		account, err := c.accountByID(r.Context(), accountID)
		if err != nil {
			utils.HandleError(w, http.StatusUnauthorized, "Account no longer exists")
			return
		}
		if !account.IsVerified {
			utils.HandleError(w, http.StatusUnauthorized, "Account is not verified")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next(w, r.WithContext(ctx))
	}
}

// RequireRoles rejects authenticated callers whose role is not allowed.
// Sellers additionally need admin approval before seller operations open up.
func (c *Controller) RequireRoles(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := AccountFrom(r)
		if account == nil {
			utils.HandleError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		for _, role := range roles {
			if account.Role != role {
				continue
			}
			if role == models.RoleSeller &&
				(account.ApprovalStatus == nil || *account.ApprovalStatus != models.ApprovalApproved) {
				utils.HandleError(w, http.StatusForbidden, "Seller account is not approved")
				return
			}
			next(w, r)
			return
		}
		utils.HandleError(w, http.StatusForbidden, "Insufficient role for this operation")
	}
}

func (c *Controller) accountByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var account models.Account
	if err := c.DB.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// accountByContact prefers the verified account when an unverified
// duplicate shares the contact number.
func (c *Controller) accountByContact(ctx context.Context, contactNo string) (*models.Account, error) {
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"contact_no": contactNo}).
		OrderBy("is_verified DESC", "created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var account models.Account
	if err := c.DB.GetContext(ctx, &account, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}
