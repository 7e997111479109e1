package controllers

import (
	"context"
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

type cartLineRequest struct {
	ItemID   uuid.UUID `json:"item_id"`
	Quantity int       `json:"quantity"`
}

// AddToCart merges the requested quantity into an existing line for the
// same item instead of duplicating it. The stock check here is optimistic;
// the sale transaction re-validates independently.
func (c *Controller) AddToCart(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity <= 0 {
		utils.HandleError(w, http.StatusBadRequest, "Quantity must be greater than zero")
		return
	}

	item, err := c.itemByID(r.Context(), req.ItemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if !item.IsActive {
		utils.HandleError(w, http.StatusBadRequest, "Item is not active")
		return
	}
	if item.SellerID == buyer.ID {
		utils.HandleError(w, http.StatusBadRequest, "You cannot add your own listing to your cart")
		return
	}

	cart, err := c.getOrCreateCart(r.Context(), buyer.ID)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to load cart")
		slog.Error("add to cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	// The merged quantity must still fit the live stock
	existing, err := c.cartLineQuantity(r.Context(), cart.ID, item.ID)
	if err != nil && !errors.Is(err, database.ErrCartLineNotFound) {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to load cart line")
		slog.Error("add to cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if existing+req.Quantity > item.Quantity {
		utils.HandleError(w, http.StatusBadRequest, "Requested quantity exceeds available stock")
		return
	}

	query, args, err := QB.Insert("cart_lines").
		Columns("cart_id", "item_id", "quantity").
		Values(cart.ID, item.ID, req.Quantity).
		Suffix("ON CONFLICT (cart_id, item_id) DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build insert")
		slog.Error("add to cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to add item to cart")
		slog.Error("add to cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"item_id":  item.ID,
		"quantity": existing + req.Quantity,
	})
}

// UpdateCartLine sets an absolute quantity; zero removes the line.
func (c *Controller) UpdateCartLine(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	var req cartLineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity < 0 {
		utils.HandleError(w, http.StatusBadRequest, "Quantity must not be negative")
		return
	}

	cart, err := c.cartByBuyer(r.Context(), buyer.ID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Cart not found")
		return
	}
	if _, err := c.cartLineQuantity(r.Context(), cart.ID, req.ItemID); err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item is not in your cart")
		return
	}

	if req.Quantity == 0 {
		c.removeLine(w, r, cart.ID, req.ItemID)
		return
	}

	item, err := c.itemByID(r.Context(), req.ItemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if !item.IsActive {
		utils.HandleError(w, http.StatusBadRequest, "Item is not active")
		return
	}
	if req.Quantity > item.Quantity {
		utils.HandleError(w, http.StatusBadRequest, "Requested quantity exceeds available stock")
		return
	}

	query, args, err := QB.Update("cart_lines").
		Set("quantity", req.Quantity).
		Where(squirrel.Eq{"cart_id": cart.ID, "item_id": req.ItemID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("update cart line", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to update cart")
		slog.Error("update cart line", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"item_id":  req.ItemID,
		"quantity": req.Quantity,
	})
}

func (c *Controller) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	itemID, err := uuid.Parse(r.PathValue("itemId"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	cart, err := c.cartByBuyer(r.Context(), buyer.ID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Cart not found")
		return
	}

	c.removeLine(w, r, cart.ID, itemID)
}

func (c *Controller) ClearCart(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	cart, err := c.cartByBuyer(r.Context(), buyer.ID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Cart not found")
		return
	}

	query, args, err := QB.Delete("cart_lines").
		Where(squirrel.Eq{"cart_id": cart.ID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build delete")
		slog.Error("clear cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to clear cart")
		slog.Error("clear cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Cart cleared",
	})
}

// GetCart returns the lines joined to their live items. Lines whose item
// was deleted are silently dropped by the join.
func (c *Controller) GetCart(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	cart, err := c.cartByBuyer(r.Context(), buyer.ID)
	if err != nil {
		// No cart yet just means an empty one
		utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
			"lines":      []models.CartLine{},
			"cart_total": decimal.Zero,
		})
		return
	}

	query, args, err := QB.Select(
		"cl.cart_id", "cl.item_id", "cl.quantity", "cl.added_at",
		"i.item_name", "i.item_type", "i.item_price", "i.unit", "i.image_url",
		"i.quantity AS stock", "i.seller_id").
		From("cart_lines cl").
		Join("items i ON i.id = cl.item_id AND i.deleted_at IS NULL").
		Where(squirrel.Eq{"cl.cart_id": cart.ID}).
		OrderBy("cl.added_at ASC").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("get cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	lines := []models.CartLine{}
	if err := c.DB.SelectContext(r.Context(), &lines, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch cart")
		slog.Error("get cart", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	total := decimal.Zero
	for i := range lines {
		lines[i].LineTotal = lines[i].ItemPrice.Mul(decimal.NewFromInt(int64(lines[i].Quantity)))
		total = total.Add(lines[i].LineTotal)
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]interface{}{
		"lines":      lines,
		"cart_total": total,
	})
}

type cartSummary struct {
	CartTotal   decimal.Decimal `json:"cart_total" db:"cart_total"`
	ItemCount   int             `json:"item_count" db:"item_count"`
	SellerCount int             `json:"seller_count" db:"seller_count"`
}

func (c *Controller) CartSummary(w http.ResponseWriter, r *http.Request) {
	buyer := AccountFrom(r)

	cart, err := c.cartByBuyer(r.Context(), buyer.ID)
	if err != nil {
		utils.SendJSONResponse(w, http.StatusOK, cartSummary{CartTotal: decimal.Zero})
		return
	}

	query, args, err := QB.Select(
		"COALESCE(SUM(i.item_price * cl.quantity), 0) AS cart_total",
		"COUNT(cl.item_id) AS item_count",
		"COUNT(DISTINCT i.seller_id) AS seller_count").
		From("cart_lines cl").
		Join("items i ON i.id = cl.item_id AND i.deleted_at IS NULL").
		Where(squirrel.Eq{"cl.cart_id": cart.ID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("cart summary", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var summary cartSummary
	if err := c.DB.GetContext(r.Context(), &summary, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to compute summary")
		slog.Error("cart summary", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, summary)
}

func (c *Controller) removeLine(w http.ResponseWriter, r *http.Request, cartID, itemID uuid.UUID) {
	query, args, err := QB.Delete("cart_lines").
		Where(squirrel.Eq{"cart_id": cartID, "item_id": itemID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build delete")
		slog.Error("remove cart line", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	result, err := c.DB.ExecContext(r.Context(), query, args...)
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to remove item from cart")
		slog.Error("remove cart line", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		utils.HandleError(w, http.StatusNotFound, "Item is not in your cart")
		return
	}

	utils.SendJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Item removed from cart",
	})
}

func (c *Controller) cartByBuyer(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	query, args, err := QB.Select("id", "buyer_id", "created_at", "updated_at").
		From("carts").
		Where(squirrel.Eq{"buyer_id": buyerID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var cart models.Cart
	if err := c.DB.GetContext(ctx, &cart, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartNotFound
		}
		return nil, err
	}
	return &cart, nil
}

// getOrCreateCart creates the buyer's cart lazily on first add.
func (c *Controller) getOrCreateCart(ctx context.Context, buyerID uuid.UUID) (*models.Cart, error) {
	cart, err := c.cartByBuyer(ctx, buyerID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, database.ErrCartNotFound) {
		return nil, err
	}

	now := c.Now()
	fresh := models.Cart{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query, args, err := QB.Insert("carts").
		Columns("id", "buyer_id", "created_at", "updated_at").
		Values(fresh.ID, fresh.BuyerID, fresh.CreatedAt, fresh.UpdatedAt).
		ToSql()
	if err != nil {
		return nil, err
	}
	if _, err := c.DB.ExecContext(ctx, query, args...); err != nil {
		// Lost a create race; the existing cart wins
		if database.IsUniqueViolation(err) {
			return c.cartByBuyer(ctx, buyerID)
		}
		return nil, err
	}
	return &fresh, nil
}

func (c *Controller) cartLineQuantity(ctx context.Context, cartID, itemID uuid.UUID) (int, error) {
	query, args, err := QB.Select("quantity").
		From("cart_lines").
		Where(squirrel.Eq{"cart_id": cartID, "item_id": itemID}).
		ToSql()
	if err != nil {
		return 0, err
	}

	var quantity int
	if err := c.DB.GetContext(ctx, &quantity, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrCartLineNotFound
		}
		return 0, err
	}
	return quantity, nil
}
