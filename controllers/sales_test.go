package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fishmarket/models"
)

func testItem(sellerID uuid.UUID) *models.Item {
	return &models.Item{
		ID:        uuid.New(),
		SellerID:  sellerID,
		ItemType:  models.ItemTypeFish,
		ItemName:  "Yellowfin Tuna",
		ItemPrice: decimal.RequireFromString("120.00"),
		Quantity:  5,
		Unit:      models.UnitKg,
		ImageURL:  "http://localhost:8000/uploads/items/tuna.jpg",
		IsActive:  true,
		CatchDate: fixedNow.Add(-6 * time.Hour),
		CreatedAt: fixedNow,
		UpdatedAt: fixedNow,
	}
}

func sellTestRequest(t *testing.T, seller *models.Account, item *models.Item, req sellRequest) *http.Request {
	t.Helper()

	r := withAccount(jsonRequest(t, http.MethodPost, "/items/"+item.ID.String()+"/sell", req), seller)
	r.SetPathValue("id", item.ID.String())
	return r
}

func TestSellSuccess(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	buyer := testBuyer()
	item := testItem(seller.ID)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(buyer))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      buyer.ID,
		QuantitySold: 3,
		Notes:        "picked up at the pier",
	}))

	require.Equal(t, http.StatusCreated, w.Code)

	var receipt models.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, item.ID, receipt.ItemID)
	assert.Equal(t, seller.ID, receipt.SellerID)
	assert.Equal(t, buyer.ID, receipt.BuyerID)
	assert.Equal(t, item.ItemName, receipt.ItemName)
	assert.Equal(t, 3, receipt.QuantitySold)
	assert.True(t, receipt.TotalAmount.Equal(decimal.NewFromInt(360)),
		"total %s", receipt.TotalAmount)
	assert.Equal(t, models.ReceiptCompleted, receipt.Status)
	require.NotNil(t, receipt.SellerName)
	assert.Equal(t, "Juan Reyes", *receipt.SellerName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Selling the last of the stock must deactivate the listing in the same
// statement as the decrement; the conditional flip is load-bearing, so the
// expectation pins it.
func TestSellExactStockDeactivatesListing(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	buyer := testBuyer()
	item := testItem(seller.ID) // stock 5

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(buyer))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE items SET quantity = quantity - \$1, is_active = CASE WHEN quantity - \$1 <= 0 THEN FALSE ELSE is_active END`).
		WithArgs(item.Quantity, item.ID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO receipts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      buyer.ID,
		QuantitySold: item.Quantity,
	}))

	require.Equal(t, http.StatusCreated, w.Code)

	var receipt models.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Equal(t, item.Quantity, receipt.QuantitySold)
	assert.True(t, receipt.TotalAmount.Equal(decimal.NewFromInt(600)),
		"total %s", receipt.TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellRejectsOverstock(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	item := testItem(seller.ID)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      uuid.New(),
		QuantitySold: item.Quantity + 1,
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Quantity sold exceeds available stock", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellRejectsNonOwner(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	item := testItem(uuid.New())

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      uuid.New(),
		QuantitySold: 1,
	}))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellRejectsSelfPurchase(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	item := testItem(seller.ID)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(seller))

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      seller.ID,
		QuantitySold: 1,
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Seller and buyer cannot be the same account", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A concurrent sale can empty the stock between the pre-check and the
// decrement; the conditional update catches it and the transaction rolls
// back without writing a receipt.
func TestSellLosesDecrementRace(t *testing.T) {
	c, mock := newTestController(t)

	seller := testSeller()
	buyer := testBuyer()
	item := testItem(seller.ID)

	mock.ExpectQuery("SELECT .* FROM items").WillReturnRows(itemRows(item))
	mock.ExpectQuery("SELECT .* FROM accounts").WillReturnRows(accountRows(buyer))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	w := httptest.NewRecorder()
	c.Sell(w, sellTestRequest(t, seller, item, sellRequest{
		BuyerID:      buyer.ID,
		QuantitySold: 3,
	}))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Quantity sold exceeds available stock", decodeBody(t, w)["error"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoldBySellerForbidden(t *testing.T) {
	c, mock := newTestController(t)

	caller := testSeller()
	other := uuid.New()

	r := withAccount(httptest.NewRequest(http.MethodGet, "/items/sold/seller/"+other.String(), nil), caller)
	r.SetPathValue("id", other.String())

	w := httptest.NewRecorder()
	c.SoldBySeller(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
