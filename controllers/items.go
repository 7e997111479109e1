package controllers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fishmarket/database"
	"fishmarket/images"
	"fishmarket/models"
	"fishmarket/utils"
)

const maxImageBytes = 10 << 20 // 10 MB

// Sortable listing columns; anything else falls back to catch date.
var itemSortColumns = map[string]string{
	"catch_date": "i.catch_date",
	"price":      "i.item_price",
	"name":       "i.item_name",
}

type offsetPage struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

func (c *Controller) CreateItem(w http.ResponseWriter, r *http.Request) {
	seller := AccountFrom(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			utils.HandleError(w, http.StatusRequestEntityTooLarge, "Image upload exceeds the 10 MB limit")
			return
		}
		utils.HandleError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	itemType := r.FormValue("item_type")
	itemName := r.FormValue("item_name")
	unit := r.FormValue("unit")
	description := r.FormValue("description")
	location := r.FormValue("location")

	if !models.ValidItemType(itemType) {
		utils.HandleError(w, http.StatusBadRequest, "Item type must be fish, souvenirs, or food")
		return
	}
	if !models.ValidUnit(unit) {
		utils.HandleError(w, http.StatusBadRequest, "Unit must be kg, pieces, lbs, or grams")
		return
	}
	if len(itemName) < 2 || len(itemName) > 120 {
		utils.HandleError(w, http.StatusBadRequest, "Item name must be between 2 and 120 characters")
		return
	}

	price, err := decimal.NewFromString(r.FormValue("item_price"))
	if err != nil || !price.IsPositive() {
		utils.HandleError(w, http.StatusBadRequest, "Item price must be a number greater than zero")
		return
	}

	quantity, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil || quantity < 0 {
		utils.HandleError(w, http.StatusBadRequest, "Quantity must be a non-negative integer")
		return
	}

	// Catch date defaults to now when omitted
	catchDate := c.Now()
	if raw := r.FormValue("catch_date"); raw != "" {
		catchDate, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.HandleError(w, http.StatusBadRequest, "Catch date must be RFC3339")
			return
		}
	}

	// Exactly one image is required
	file, handler, err := r.FormFile("image")
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Exactly one image is required")
		return
	}
	defer file.Close()

	// The image goes to the host before the row is written; a failed insert
	// is compensated by deleting the upload.
	img, err := c.Images.Upload(r.Context(), file, "items", handler.Filename)
	if err != nil {
		if errors.Is(err, images.ErrUnsupportedFormat) {
			utils.HandleError(w, http.StatusUnsupportedMediaType, "Image must be JPEG or PNG")
			return
		}
		utils.HandleError(w, http.StatusInternalServerError, "Failed to store image")
		slog.Error("create item upload", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	now := c.Now()
	item := models.Item{
		ID:          uuid.New(),
		SellerID:    seller.ID,
		ItemType:    itemType,
		ItemName:    itemName,
		ItemPrice:   price,
		Quantity:    quantity,
		Unit:        unit,
		ImageURL:    img.URL,
		ImageID:     img.PublicID,
		Description: description,
		Location:    location,
		IsActive:    true,
		CatchDate:   catchDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	query, args, err := QB.Insert("items").
		Columns("id", "seller_id", "item_type", "item_name", "item_price", "quantity",
			"unit", "image_url", "image_id", "description", "location", "is_active",
			"catch_date", "created_at", "updated_at").
		Values(item.ID, item.SellerID, item.ItemType, item.ItemName, item.ItemPrice,
			item.Quantity, item.Unit, item.ImageURL, item.ImageID, item.Description,
			item.Location, item.IsActive, item.CatchDate, item.CreatedAt, item.UpdatedAt).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(itemColumns, ", "))).
		ToSql()
	if err != nil {
		c.cleanupImage(r.Context(), img.PublicID)
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build insert")
		slog.Error("create item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&item); err != nil {
		c.cleanupImage(r.Context(), img.PublicID)
		utils.HandleError(w, http.StatusInternalServerError, "Error creating item")
		slog.Error("create item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	c.populateSeller(&item, seller)
	decorateItem(&item, c.Now())

	utils.SendJSONResponse(w, http.StatusCreated, item)
}

func (c *Controller) UpdateItem(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	item, err := c.itemByID(r.Context(), itemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if item.SellerID != caller.ID {
		utils.HandleError(w, http.StatusForbidden, "Only the owning seller can update this item")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			utils.HandleError(w, http.StatusRequestEntityTooLarge, "Image upload exceeds the 10 MB limit")
			return
		}
		utils.HandleError(w, http.StatusBadRequest, "Invalid form data")
		return
	}

	// Active status is carved out to its own endpoint
	update := QB.Update("items").Set("updated_at", c.Now())

	if v := r.FormValue("item_name"); v != "" {
		if len(v) < 2 || len(v) > 120 {
			utils.HandleError(w, http.StatusBadRequest, "Item name must be between 2 and 120 characters")
			return
		}
		update = update.Set("item_name", v)
	}
	if v := r.FormValue("item_type"); v != "" {
		if !models.ValidItemType(v) {
			utils.HandleError(w, http.StatusBadRequest, "Item type must be fish, souvenirs, or food")
			return
		}
		update = update.Set("item_type", v)
	}
	if v := r.FormValue("unit"); v != "" {
		if !models.ValidUnit(v) {
			utils.HandleError(w, http.StatusBadRequest, "Unit must be kg, pieces, lbs, or grams")
			return
		}
		update = update.Set("unit", v)
	}
	if v := r.FormValue("item_price"); v != "" {
		price, err := decimal.NewFromString(v)
		if err != nil || !price.IsPositive() {
			utils.HandleError(w, http.StatusBadRequest, "Item price must be a number greater than zero")
			return
		}
		update = update.Set("item_price", price)
	}
	if v := r.FormValue("quantity"); v != "" {
		quantity, err := strconv.Atoi(v)
		if err != nil || quantity < 0 {
			utils.HandleError(w, http.StatusBadRequest, "Quantity must be a non-negative integer")
			return
		}
		update = update.Set("quantity", quantity)
	}
	if v := r.FormValue("description"); v != "" {
		update = update.Set("description", v)
	}
	if v := r.FormValue("location"); v != "" {
		update = update.Set("location", v)
	}
	if v := r.FormValue("catch_date"); v != "" {
		catchDate, err := time.Parse(time.RFC3339, v)
		if err != nil {
			utils.HandleError(w, http.StatusBadRequest, "Catch date must be RFC3339")
			return
		}
		update = update.Set("catch_date", catchDate)
	}

	// A replacement image supersedes the old one; the old file is removed
	// best-effort after the new upload succeeds
	oldImageID := ""
	if file, handler, err := r.FormFile("image"); err == nil {
		defer file.Close()

		img, err := c.Images.Upload(r.Context(), file, "items", handler.Filename)
		if err != nil {
			if errors.Is(err, images.ErrUnsupportedFormat) {
				utils.HandleError(w, http.StatusUnsupportedMediaType, "Image must be JPEG or PNG")
				return
			}
			utils.HandleError(w, http.StatusInternalServerError, "Failed to store image")
			slog.Error("update item upload", "error", utils.ErrorWithTrace(err, err.Error()))
			return
		}
		oldImageID = item.ImageID
		update = update.Set("image_url", img.URL).Set("image_id", img.PublicID)
	}

	query, args, err := update.
		Where(squirrel.Eq{"id": item.ID}).
		Suffix(fmt.Sprintf("RETURNING %s", strings.Join(itemColumns, ", "))).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("update item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var updated models.Item
	if err := c.DB.QueryRowxContext(r.Context(), query, args...).StructScan(&updated); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to update item")
		slog.Error("update item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	if oldImageID != "" {
		c.cleanupImage(r.Context(), oldImageID)
	}

	c.populateSeller(&updated, caller)
	decorateItem(&updated, c.Now())

	utils.SendJSONResponse(w, http.StatusOK, updated)
}

type statusRequest struct {
	IsActive bool `json:"is_active"`
}

func (c *Controller) SetItemStatus(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	item, err := c.itemByID(r.Context(), itemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if item.SellerID != caller.ID {
		utils.HandleError(w, http.StatusForbidden, "Only the owning seller can change this item")
		return
	}

	query, args, err := QB.Update("items").
		Set("is_active", req.IsActive).
		Set("updated_at", c.Now()).
		Where(squirrel.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build update")
		slog.Error("set item status", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to update item status")
		slog.Error("set item status", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	item.IsActive = req.IsActive
	utils.SendJSONResponse(w, http.StatusOK, item)
}

// DeleteItem soft-deletes so receipts keep a resolvable item reference.
// The stored image is removed since nothing renders it afterwards.
func (c *Controller) DeleteItem(w http.ResponseWriter, r *http.Request) {
	caller := AccountFrom(r)

	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	item, err := c.itemByID(r.Context(), itemID)
	if err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}
	if item.SellerID != caller.ID {
		utils.HandleError(w, http.StatusForbidden, "Only the owning seller can delete this item")
		return
	}

	query, args, err := QB.Update("items").
		Set("is_active", false).
		Set("deleted_at", c.Now()).
		Set("updated_at", c.Now()).
		Where(squirrel.Eq{"id": item.ID}).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build delete")
		slog.Error("delete item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}
	if _, err := c.DB.ExecContext(r.Context(), query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to delete item")
		slog.Error("delete item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	c.cleanupImage(r.Context(), item.ImageID)

	utils.SendJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Item deleted successfully",
	})
}

func (c *Controller) ListItems(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	conditions := squirrel.And{
		squirrel.Expr("i.deleted_at IS NULL"),
		squirrel.Eq{"i.is_active": true},
	}
	if itemType := r.URL.Query().Get("item_type"); itemType != "" {
		conditions = append(conditions, squirrel.Eq{"i.item_type": itemType})
	}
	if sellerID := r.URL.Query().Get("seller_id"); sellerID != "" {
		conditions = append(conditions, squirrel.Eq{"i.seller_id": sellerID})
	}
	if search := r.URL.Query().Get("q"); search != "" {
		pattern := "%" + search + "%"
		conditions = append(conditions, squirrel.Or{
			squirrel.Expr("i.item_name ILIKE ?", pattern),
			squirrel.Expr("i.description ILIKE ?", pattern),
		})
	}

	sortColumn, ok := itemSortColumns[r.URL.Query().Get("sort")]
	if !ok {
		sortColumn = "i.catch_date"
	}
	direction := "DESC"
	if strings.EqualFold(r.URL.Query().Get("order"), "asc") {
		direction = "ASC"
	}

	countQuery, countArgs, err := QB.Select("COUNT(*)").
		From("items i").
		Where(conditions).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("list items count", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var total int64
	if err := c.DB.GetContext(r.Context(), &total, countQuery, countArgs...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to count items")
		slog.Error("list items count", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	columns := append(prefixed("i", itemColumns),
		"a.first_name || ' ' || a.last_name AS seller_name",
		"a.contact_no AS seller_contact_no")
	query, args, err := QB.Select(columns...).
		From("items i").
		Join("accounts a ON a.id = i.seller_id").
		Where(conditions).
		OrderBy(sortColumn + " " + direction).
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("list items", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	items := []models.Item{}
	if err := c.DB.SelectContext(r.Context(), &items, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch items")
		slog.Error("list items", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	now := c.Now()
	for i := range items {
		decorateItem(&items[i], now)
	}

	totalPages := int(total) / limit
	if int(total)%limit > 0 {
		totalPages++
	}

	utils.SendJSONResponse(w, http.StatusOK, offsetPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   limit,
		TotalPages: totalPages,
	})
}

func (c *Controller) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid item id")
		return
	}

	columns := append(prefixed("i", itemColumns),
		"a.first_name || ' ' || a.last_name AS seller_name",
		"a.contact_no AS seller_contact_no")
	query, args, err := QB.Select(columns...).
		From("items i").
		Join("accounts a ON a.id = i.seller_id").
		Where(squirrel.Eq{"i.id": itemID}).
		Where("i.deleted_at IS NULL").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("get item", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	var item models.Item
	if err := c.DB.GetContext(r.Context(), &item, query, args...); err != nil {
		utils.HandleError(w, http.StatusNotFound, "Item not found")
		return
	}

	decorateItem(&item, c.Now())
	utils.SendJSONResponse(w, http.StatusOK, item)
}

// ListBySeller returns a seller's own listings, inactive ones included.
func (c *Controller) ListBySeller(w http.ResponseWriter, r *http.Request) {
	sellerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		utils.HandleError(w, http.StatusBadRequest, "Invalid seller id")
		return
	}

	conditions := squirrel.And{
		squirrel.Eq{"i.seller_id": sellerID},
		squirrel.Expr("i.deleted_at IS NULL"),
	}
	if itemType := r.URL.Query().Get("item_type"); itemType != "" {
		conditions = append(conditions, squirrel.Eq{"i.item_type": itemType})
	}

	columns := append(prefixed("i", itemColumns),
		"a.first_name || ' ' || a.last_name AS seller_name",
		"a.contact_no AS seller_contact_no")
	query, args, err := QB.Select(columns...).
		From("items i").
		Join("accounts a ON a.id = i.seller_id").
		Where(conditions).
		OrderBy("i.catch_date DESC").
		ToSql()
	if err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to build query")
		slog.Error("list by seller", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	items := []models.Item{}
	if err := c.DB.SelectContext(r.Context(), &items, query, args...); err != nil {
		utils.HandleError(w, http.StatusInternalServerError, "Failed to fetch items")
		slog.Error("list by seller", "error", utils.ErrorWithTrace(err, err.Error()))
		return
	}

	now := c.Now()
	for i := range items {
		decorateItem(&items[i], now)
	}

	utils.SendJSONResponse(w, http.StatusOK, items)
}

func (c *Controller) itemByID(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	query, args, err := QB.Select(itemColumns...).
		From("items").
		Where(squirrel.Eq{"id": id}).
		Where("deleted_at IS NULL").
		ToSql()
	if err != nil {
		return nil, err
	}

	var item models.Item
	if err := c.DB.GetContext(ctx, &item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// cleanupImage is compensating cleanup: its own failure is logged, never
// surfaced to the caller.
func (c *Controller) cleanupImage(ctx context.Context, publicID string) {
	if publicID == "" {
		return
	}
	if err := c.Images.Delete(ctx, publicID); err != nil {
		slog.Error("image cleanup failed", "public_id", publicID, "error", err)
	}
}

// decorateItem fills the read-time projections a listing carries in
// responses.
func decorateItem(item *models.Item, now time.Time) {
	item.Freshness = models.FreshnessBucket(item.ItemType, item.CatchDate, now)
	item.DisplayPrice = models.DisplayPrice(item.ItemPrice, item.Unit)
}

func (c *Controller) populateSeller(item *models.Item, seller *models.Account) {
	name := seller.FirstName + " " + seller.LastName
	item.SellerName = &name
	item.SellerContactNo = &seller.ContactNo
}
