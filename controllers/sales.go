package controllers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fishmarket/database"
	"fishmarket/models"
	"fishmarket/utils"
)

type sellRequest struct {
	BuyerID      uuid.UUID `json:"buyer_id"`
	QuantitySold int       `json:"quantity_sold"`
	Notes        string    `json:"notes"`
}

// Sell records a confirmed sale: the receipt snapshot and the stock
// decrement commit or fail as one transaction. The conditional decrement is
// the authority on available quantity; concurrent sells for more than the
// remaining stock cannot both win.
func (c *Controller) Sell(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req sellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.QuantitySold <= 0 {
		utils.HandleError(w, http.StatusBadRequest, "Quantity sold must be greater than zero")
		return
	}

	item, err := c.itemByID(r.Context(), itemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if item.SellerID != caller.ID {
		utils.HandleError(w, http.StatusForbidden, "Only the owning seller can sell this item")
		return
	}
	if !item.IsActive {
		utils.HandleError(w, http.StatusBadRequest, "Item is not active")
		return
	}
	if req.QuantitySold > item.Quantity {
		utils.HandleError(w, http.StatusBadRequest, "Quantity sold exceeds available stock")
		return
	}

	buyer, err := c.accountByID(r.Context(), req.BuyerID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Buyer account not found")
		return
	}
	if buyer.ID == caller.ID {
		utils.HandleError(w, http.StatusBadRequest, "Seller and buyer cannot be the same account")
		return
	}

	receipt := models.Receipt{
		ID:           uuid.New(),
		ItemID:       item.ID,
		SellerID:     caller.ID,
		BuyerID:      buyer.ID,
		ItemType:     item.ItemType,
		ItemName:     item.ItemName,
		ItemPrice:    item.ItemPrice,
		Unit:         item.Unit,
		ImageURL:     item.ImageURL,
		QuantitySold: req.QuantitySold,
		TotalAmount:  item.ItemPrice.Mul(decimal.NewFromInt(int64(req.QuantitySold))),
		SaleDate:     c.Now(),
		Status:       models.ReceiptCompleted,
		Notes:        req.Notes,
	}

	err = database.WithRetry(r.Context(), c.DB.DB, database.TxOptions{
		IsolationLevel: sql.LevelSerializable,
		MaxRetries:     3,
	}, func(tx *sql.Tx) error {
		// Decrement only when enough stock remains; zero rows means another
		// sale got there first.
		result, err := tx.ExecContext(r.Context(),
			`UPDATE items
			 SET quantity = quantity - $1,
			     is_active = CASE WHEN quantity - $1 <= 0 THEN FALSE ELSE is_active END,
			     updated_at = NOW()
			 WHERE id = $2
			   AND deleted_at IS NULL
			   AND is_active
			   AND quantity >= $1`,
			receipt.QuantitySold, receipt.ItemID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return database.ErrInsufficientStock
		}

		_, err = tx.ExecContext(r.Context(),
			`INSERT INTO receipts (id, item_id, seller_id, buyer_id, item_type, item_name,
			                       item_price, unit, image_url, quantity_sold, total_amount,
			                       sale_date, status, notes)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			receipt.ID, receipt.ItemID, receipt.SellerID, receipt.BuyerID,
			receipt.ItemType, receipt.ItemName, receipt.ItemPrice, receipt.Unit,
			receipt.ImageURL, receipt.QuantitySold, receipt.TotalAmount,
			receipt.SaleDate, receipt.Status, receipt.Notes)
		return err
	})
	if err != nil {
		if errors.Is(err, database.ErrInsufficientStock) {
			utils.HandleError(w, http.StatusBadRequest, "Quantity sold exceeds available stock")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to record sale")
		slog.Error("sell", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	sellerName := caller.FirstName + " " + caller.LastName
	buyerName := buyer.FirstName + " " + buyer.LastName
	receipt.SellerName = &sellerName
	receipt.BuyerName = &buyerName

	utils.SendJSONResponse(w, http.StatusCreated, receipt)
}

// SoldBySeller lists a seller's receipts, newest first. Sellers see their
// own; admins can see anyone's.
func (c *Controller) SoldBySeller(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	sellerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid seller id")
		return
	}
	if caller.ID != sellerID && caller.Role != models.RoleAdmin && caller.Role != models.RoleSuperadmin {
		utils.HandleError(w, http.StatusForbidden, "You can only view your own sales")
		return
	}

	c.listReceipts(w, r, squirrel.Eq{"r.seller_id": sellerID})
}

// PurchasesByBuyer lists a buyer's receipts, newest first.
func (c *Controller) PurchasesByBuyer(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	buyerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid buyer id")
		return
	}
	if caller.ID != buyerID && caller.Role != models.RoleAdmin && caller.Role != models.RoleSuperadmin {
		utils.HandleError(w, http.StatusForbidden, "You can only view your own purchases")
		return
	}

	c.listReceipts(w, r, squirrel.Eq{"r.buyer_id": buyerID})
}

func (c *Controller) listReceipts(w http.ResponseWriter, r *http.Request, condition squirrel.Sqlizer) {
	columns := append(prefixed("r", receiptColumns),
		"s.first_name || ' ' || s.last_name AS seller_name",
		"b.first_name || ' ' || b.last_name AS buyer_name")
	query, args, err := QB.Select(columns...).
		From("receipts r").
		Join("accounts s ON s.id = r.seller_id").
		Join("accounts b ON b.id = r.buyer_id").
		Where(condition).
		OrderBy("r.sale_date DESC").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("list receipts", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	receipts := []models.Receipt{}
	if err := c.DB.SelectContext(r.Context(), &receipts, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch receipts")
		slog.Error("list receipts", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, receipts)
}
