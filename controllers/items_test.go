package controllers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishmarket/images"
	"fishmarket/models"
)

func multipartItemRequest(t *testing.T, fields map[string]string, imageData []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if imageData != nil {
		fw, err := mw.CreateFormFile("image", "photo.png")
		require.NoError(t, err)
		_, err = fw.Write(imageData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/items", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

func testPNG(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func validItemFields() map[string]string {
	return map[string]string{
		"item_type":  models.ItemTypeFish,
		"item_name":  "Yellowfin Tuna",
		"item_price": "120.00",
		"quantity":   "5",
		"unit":       models.UnitKg,
		"location":   "Pier 3",
	}
}

func TestCreateItemValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		message string
	}{
		{
			"bad item type",
			func(f map[string]string) { f["item_type"] = "vegetables" },
			"Item type must be fish, souvenirs, or food",
		},
		{
			"bad unit",
			func(f map[string]string) { f["unit"] = "tons" },
			"Unit must be kg, pieces, lbs, or grams",
		},
		{
			"name too short",
			func(f map[string]string) { f["item_name"] = "X" },
			"Item name must be between 2 and 120 characters",
		},
		{
			"zero price",
			func(f map[string]string) { f["item_price"] = "0" },
			"Item price must be a number greater than zero",
		},
		{
			"negative quantity",
			func(f map[string]string) { f["quantity"] = "-1" },
			"Quantity must be a non-negative integer",
		},
		{
			"bad catch date",
			func(f map[string]string) { f["catch_date"] = "yesterday" },
			"Catch date must be RFC3339",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, mock := newTestController(t)

			fields := validItemFields()
			tt.mutate(fields)

			w := httptest.NewRecorder()
			c.CreateItem(w, withAccount(multipartItemRequest(t, fields, testPNG(t)), testSeller()))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.message, decodeBody(t, w)["error"])
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCreateItemRequiresImage(t *testing.T) {
	c, mock := newTestController(t)

	w := httptest.NewRecorder()
	c.CreateItem(w, withAccount(multipartItemRequest(t, validItemFields(), nil), testSeller()))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Exactly one image is required", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItemRejectsUnsupportedImage(t *testing.T) {
	c, mock := newTestController(t)
	c.Images = images.NewDiskHost(t.TempDir(), "http://localhost:8000", 1280)

	w := httptest.NewRecorder()
	c.CreateItem(w, withAccount(multipartItemRequest(t, validItemFields(), []byte("not an image")), testSeller()))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "Image must be JPEG or PNG", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItemSuccess(t *testing.T) {
	c, mock := newTestController(t)
	c.Images = images.NewDiskHost(t.TempDir(), "http://localhost:8000", 1280)

	seller := testSeller()
	item := testItem(seller.ID)

	mock.ExpectQuery("INSERT INTO items").WillReturnRows(itemRows(item))

	w := httptest.NewRecorder()
	c.CreateItem(w, withAccount(multipartItemRequest(t, validItemFields(), testPNG(t)), seller))

	require.Equal(t, http.StatusCreated, w.Code)

	var created models.Item
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, item.ID, created.ID)
	assert.Equal(t, models.FreshnessVeryFresh, created.Freshness)
	assert.Equal(t, "₱120.00 per kg", created.DisplayPrice)
	require.NotNil(t, created.SellerName)
	assert.Equal(t, "Juan Reyes", *created.SellerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemNonOwner(t *testing.T) {
	c, mock := newTestController(t)

	caller := testSeller()
	item := testItem(uuid.New())

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))

	r := withAccount(multipartItemRequest(t, map[string]string{"item_name": "Renamed"}, nil), caller)
	r.SetPathValue("id", item.ID.String())

	w := httptest.NewRecorder()
	c.UpdateItem(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemNotFound(t *testing.T) {
	c, mock := newTestController(t)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnError(sql.ErrNoRows)

	itemID := uuid.New()
	r := httptest.NewRequest(http.MethodGet, "/items/"+itemID.String(), nil)
	r.SetPathValue("id", itemID.String())

	w := httptest.NewRecorder()
	c.GetItem(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteItemSoftDeletes(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	item := testItem(seller.ID)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))
	mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 1))

	r := withAccount(httptest.NewRequest(http.MethodDelete, "/items/"+item.ID.String(), nil), seller)
	r.SetPathValue("id", item.ID.String())

	w := httptest.NewRecorder()
	c.DeleteItem(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListItemsPagination(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	item := testItem(seller.ID)

	joinedColumns := append(append([]string{}, itemColumns...), "seller_name", "seller_contact_no")
	rows := sqlmock.NewRows(joinedColumns).AddRow(
		item.ID.String(), item.SellerID.String(), item.ItemType, item.ItemName,
		item.ItemPrice.String(), item.Quantity, item.Unit, item.ImageURL, item.ImageID,
		item.Description, item.Location, item.IsActive, item.CatchDate, nil,
		item.CreatedAt, item.UpdatedAt, "Juan Reyes", seller.ContactNo,
	)

	mock.ExpectQuery("SELECT COUNT").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(41))
	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(rows)

	w := httptest.NewRecorder()
	c.ListItems(w, httptest.NewRequest(http.MethodGet, "/items?item_type=fish&page=2&limit=20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(41), body["total"])
	assert.Equal(t, float64(2), body["page"])
	assert.Equal(t, float64(20), body["page_size"])
	assert.Equal(t, float64(3), body["total_pages"])

	listed := body["items"].([]interface{})
	require.Len(t, listed, 1)
	first := listed[0].(map[string]interface{})
	assert.Equal(t, models.FreshnessVeryFresh, first["freshness"])
	assert.Equal(t, "₱120.00 per kg", first["display_price"])
	assert.Equal(t, "Juan Reyes", first["seller_name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
