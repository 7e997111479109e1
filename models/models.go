package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account roles.
const (
	RoleBuyer      = "buyer"
	RoleSeller     = "seller"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// Seller approval states. Present on seller accounts only.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Item types.
const (
	ItemTypeFish      = "fish"
	ItemTypeSouvenirs = "souvenirs"
	ItemTypeFood      = "food"
)

// Item units.
const (
	UnitKg     = "kg"
	UnitPieces = "pieces"
	UnitLbs    = "lbs"
	UnitGrams  = "grams"
)

// Receipt statuses.
const (
	ReceiptCompleted = "completed"
	ReceiptPending   = "pending"
	ReceiptCancelled = "cancelled"
)

func ValidSignupRole(role string) bool {
	return role == RoleBuyer || role == RoleSeller
}

func ValidApprovalDecision(status string) bool {
	return status == ApprovalApproved || status == ApprovalRejected
}

func ValidItemType(t string) bool {
	return t == ItemTypeFish || t == ItemTypeSouvenirs || t == ItemTypeFood
}

func ValidUnit(u string) bool {
	return u == UnitKg || u == UnitPieces || u == UnitLbs || u == UnitGrams
}

type Account struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	FirstName      string     `json:"first_name" db:"first_name"`
	LastName       string     `json:"last_name" db:"last_name"`
	Username       string     `json:"username" db:"username"`
	Email          string     `json:"email" db:"email"`
	ContactNo      string     `json:"contact_no" db:"contact_no"`
	Address        string     `json:"address" db:"address"`
	DateOfBirth    time.Time  `json:"date_of_birth" db:"date_of_birth"`
	Password       string     `json:"-" db:"password"`
	Role           string     `json:"role" db:"role"`
	IsVerified     bool       `json:"is_verified" db:"is_verified"`
	ApprovalStatus *string    `json:"approval_status,omitempty" db:"approval_status"`
	ApprovedBy     *uuid.UUID `json:"approved_by,omitempty" db:"approved_by"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty" db:"approved_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type OTP struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AccountID uuid.UUID `json:"account_id" db:"account_id"`
	Code      string    `json:"-" db:"code"`
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Item struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	SellerID    uuid.UUID       `json:"seller_id" db:"seller_id"`
	ItemType    string          `json:"item_type" db:"item_type"`
	ItemName    string          `json:"item_name" db:"item_name"`
	ItemPrice   decimal.Decimal `json:"item_price" db:"item_price"`
	Quantity    int             `json:"quantity" db:"quantity"`
	Unit        string          `json:"unit" db:"unit"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	ImageID     string          `json:"-" db:"image_id"`
	Description string          `json:"description" db:"description"`
	Location    string          `json:"location" db:"location"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CatchDate   time.Time       `json:"catch_date" db:"catch_date"`
	DeletedAt   *time.Time      `json:"-" db:"deleted_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`

	// Populated by reads that join the owning seller.
	SellerName      *string `json:"seller_name,omitempty" db:"seller_name"`
	SellerContactNo *string `json:"seller_contact_no,omitempty" db:"seller_contact_no"`

	// Derived on read, never stored. Freshness only applies to fish.
	Freshness    string `json:"freshness,omitempty" db:"-"`
	DisplayPrice string `json:"display_price,omitempty" db:"-"`
}

// Receipt is an immutable snapshot of a sale; editing the source item
// afterwards must not change it.
type Receipt struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ItemID       uuid.UUID       `json:"item_id" db:"item_id"`
	SellerID     uuid.UUID       `json:"seller_id" db:"seller_id"`
	BuyerID      uuid.UUID       `json:"buyer_id" db:"buyer_id"`
	ItemType     string          `json:"item_type" db:"item_type"`
	ItemName     string          `json:"item_name" db:"item_name"`
	ItemPrice    decimal.Decimal `json:"item_price" db:"item_price"`
	Unit         string          `json:"unit" db:"unit"`
	ImageURL     string          `json:"image_url" db:"image_url"`
	QuantitySold int             `json:"quantity_sold" db:"quantity_sold"`
	TotalAmount  decimal.Decimal `json:"total_amount" db:"total_amount"`
	SaleDate     time.Time       `json:"sale_date" db:"sale_date"`
	Status       string          `json:"status" db:"status"`
	Notes        string          `json:"notes" db:"notes"`

	SellerName *string `json:"seller_name,omitempty" db:"seller_name"`
	BuyerName  *string `json:"buyer_name,omitempty" db:"buyer_name"`
}

type Cart struct {
	ID        uuid.UUID `json:"id" db:"id"`
	BuyerID   uuid.UUID `json:"buyer_id" db:"buyer_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CartLine is one (item, quantity) pair in a buyer's cart. Item fields are
// joined from the live listing at read time, never snapshotted.
type CartLine struct {
	CartID   uuid.UUID `json:"-" db:"cart_id"`
	ItemID   uuid.UUID `json:"item_id" db:"item_id"`
	Quantity int       `json:"quantity" db:"quantity"`
	AddedAt  time.Time `json:"added_at" db:"added_at"`

	ItemName  string          `json:"item_name" db:"item_name"`
	ItemType  string          `json:"item_type" db:"item_type"`
	ItemPrice decimal.Decimal `json:"item_price" db:"item_price"`
	Unit      string          `json:"unit" db:"unit"`
	ImageURL  string          `json:"image_url" db:"image_url"`
	Stock     int             `json:"stock" db:"stock"`
	SellerID  uuid.UUID       `json:"seller_id" db:"seller_id"`
	LineTotal decimal.Decimal `json:"line_total" db:"-"`
}
