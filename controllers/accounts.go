package controllers

import (
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

func (c *Controller) Profile(w http.ResponseWriter, r *http.Request) {
	utils.SendJSONResponse(w, http.StatusOK, AccountFrom(r))
}

type updateProfileRequest struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Address         string `json:"address"`
	Email           string `json:"email"`
	ContactNo       string `json:"contact_no"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (c *Controller) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account := AccountFrom(r)

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := QB.Update("accounts").Set("updated_at", c.Now())

	if req.FirstName != "" {
		update = update.Set("first_name", req.FirstName)
	}
	if req.LastName != "" {
		update = update.Set("last_name", req.LastName)
	}
	if req.Address != "" {
		update = update.Set("address", req.Address)
	}

	// Email and contact changes re-check uniqueness among verified accounts
	if req.Email != "" && !strings.EqualFold(req.Email, account.Email) {
		if taken, err := c.identityTaken(r, "LOWER(email) = LOWER(?)", req.Email, account.ID); err != nil {
			utils.HandleError(w, http.StatusInternalServerError, "Failed to check email")
			return
		} else if taken {
			utils.HandleError(w, http.StatusConflict, "Email is already in use")
			return
		}
		update = update.Set("email", req.Email)
	}
	if req.ContactNo != "" && req.ContactNo != account.ContactNo {
		if !utils.IsValidPhone(req.ContactNo) {
			utils.HandleError(w, http.StatusBadRequest, "Contact number is not a valid phone number")
			return
		}
		if taken, err := c.identityTaken(r, "contact_no = ?", req.ContactNo, account.ID); err != nil {
			utils.HandleError(w, http.StatusInternalServerError, "Failed to check contact number")
			return
		} else if taken {
			utils.HandleError(w, http.StatusConflict, "Contact number is already in use")
			return
		}
		update = update.Set("contact_no", req.ContactNo)
	}

	// Password changes require proof of the current one
	if req.NewPassword != "" {
		if err := utils.CheckPassword(account.Password, req.CurrentPassword); err != nil {
			utils.HandleError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		hashed, err := utils.HashPassword(req.NewPassword)
		if err != nil {
			utils.HandleError(w, http.StatusInternalServerError, "Failed to hash password")
			return
		}
		update = update.Set("password", hashed)
	}

	query, args, err := update.
		Where(squirrel.Eq{"id": account.ID}).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(accountColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("update profile", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var updated models.Account
	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&updated); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to update profile")
		slog.Error("update profile", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, updated)
}

func (c *Controller) identityTaken(r *http.Request, condition, value string, selfID uuid.UUID) (bool, error) {
	query, args, err := QB.Select("COUNT(*)").
		From("accounts").
		Where(squirrel.Expr(condition, value)).
		Where(squirrel.Eq{"is_verified": true}).
		Where(squirrel.NotEq{"id": selfID}).
		ToSql()
	if err != nil {
		return false, err
	}

	var count int
	if err := c.DB.GetContext(r.Context(), &count, query, args...); err != nil {
		return false, err
	}
	return count > 0, nil
}

type createAdminRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	ContactNo   string `json:"contact_no"`
	Address     string `json:"address"`
	DateOfBirth string `json:"date_of_birth"`
	Password    string `json:"password"`
}

// CreateAdmin provisions an admin account directly; it is pre-verified and
// skips the OTP flow. Superadmin only.
func (c *Controller) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	var req createAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FirstName == "" || req.LastName == "" || req.Username == "" ||
		req.Email == "" || req.ContactNo == "" || req.Password == "" {
		utils.HandleError(w, http.StatusBadRequest, "Make sure you fill all fields")
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

	hashedPassword, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	now := c.Now()
	admin := models.Account{
		ID:          uuid.New(),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Username:    req.Username,
		Email:       req.Email,
		ContactNo:   req.ContactNo,
		Address:     req.Address,
		DateOfBirth: dob,
		Password:    hashedPassword,
		Role:        models.RoleAdmin,
		IsVerified:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query, args, err := QB.Insert("accounts").
		Columns("id", "first_name", "last_name", "username", "email", "contact_no",
			"address", "date_of_birth", "password", "role", "is_verified",
			"created_at", "updated_at").
		Values(admin.ID, admin.FirstName, admin.LastName, admin.Username,
			admin.Email, admin.ContactNo, admin.Address, admin.DateOfBirth,
			admin.Password, admin.Role, admin.IsVerified, admin.CreatedAt, admin.UpdatedAt).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(accountColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build insert")
		slog.Error("create admin", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&admin); err != nil {
		if database.IsUniqueViolation(err) {
			utils.HandleError(w, http.StatusConflict, "An account with this username, email, or contact number already exists")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to create admin")
		slog.Error("create admin", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusCreated, admin)
}

func (c *Controller) ListAdmins(w http.ResponseWriter, r *http.Request) {
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"role": models.RoleAdmin}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("list admins", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	admins := []models.Account{}
	if err := c.DB.SelectContext(r.Context(), &admins, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch admins")
		slog.Error("list admins", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, admins)
}

func (c *Controller) GetAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	account, err := c.accountByID(r.Context(), id)
	if err != nil || account.Role != models.RoleAdmin {
		utils.HandleError(w, http.StatusNotFound, "Admin not found")
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, account)
}

type updateAdminRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
}

func (c *Controller) UpdateAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req updateAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := QB.Update("accounts").Set("updated_at", c.Now())
	if req.FirstName != "" {
		update = update.Set("first_name", req.FirstName)
	}
	if req.LastName != "" {
		update = update.Set("last_name", req.LastName)
	}
	if req.Address != "" {
		update = update.Set("address", req.Address)
	}

	query, args, err := update.
		Where(squirrel.Eq{"id": id, "role": models.RoleAdmin}).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(accountColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("update admin", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var updated models.Account
	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&updated); err != nil {
		utils.HandleError(w, http.StatusNotFound, "Admin not found")
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, updated)
}

func (c *Controller) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid account id")
		return
	}
	if id == caller.ID {
		utils.HandleError(w, http.StatusBadRequest, "You cannot delete your own account")
		return
	}

	// Sellers this admin reviewed keep their status and timestamp; only the
	// reviewer reference is detached, so the row can be removed.
	err = database.WithTransaction(r.Context(), c.DB.DB, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(r.Context(),
			`UPDATE accounts SET approved_by = NULL WHERE approved_by = $1`, id); err != nil {
			return err
		}

		// Only admin accounts can be removed through this path
		result, err := tx.ExecContext(r.Context(),
			`DELETE FROM accounts WHERE id = $1 AND role = $2`, id, models.RoleAdmin)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return database.ErrAccountNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			utils.HandleError(w, http.StatusNotFound, "Admin not found")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to delete admin")
		slog.Error("delete admin", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Admin deleted successfully",
	})
}

func (c *Controller) PendingSellers(w http.ResponseWriter, r *http.Request) {
	query, args, err := QB.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{
			"role":            models.RoleSeller,
			"approval_status": models.ApprovalPending,
		}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("pending sellers", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	sellers := []models.Account{}
	if err := c.DB.SelectContext(r.Context(), &sellers, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch pending sellers")
		slog.Error("pending sellers", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, sellers)
}

type approvalRequest struct {
	Status string `json:"status"`
}

// ReviewSeller moves a pending seller to approved or rejected, recording
// the reviewing admin and timestamp in the same statement. Both outcomes
// are terminal.
func (c *Controller) ReviewSeller(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid account id")
		return
	}

	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !models.ValidApprovalDecision(req.Status) {
		utils.HandleError(w, http.StatusBadRequest, "Status must be approved or rejected")
		return
	}

	// The guard on current status makes concurrent reviews race-safe: only
	// one transition out of pending can win.
	query, args, err := QB.Update("accounts").
		Set("approval_status", req.Status).
		Set("approved_by", caller.ID).
		Set("approved_at", c.Now()).
		Set("updated_at", c.Now()).
		Where(squirrel.Eq{
			"id":              id,
			"role":            models.RoleSeller,
			"approval_status": models.ApprovalPending,
		}).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(accountColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("review seller", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var seller models.Account
	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&seller); err != nil {
		utils.HandleError(w, http.StatusNotFound, "No pending seller with this id")
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, seller)
}
