package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxItemQuantity caps the quantity of a single line item.
const MaxItemQuantity = 10000

var ErrQuantityLimit = errors.New("line item quantity out of range")

// Cart is the single cart document owned by a user. TotalPrice is a cache of
// the sum of quantity x unit price as of the last recompute.
type Cart struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"user_id" json:"userId"`
	Items      []CartItem         `bson:"items" json:"items"`
	TotalPrice float64            `bson:"total_price" json:"totalPrice"`
	Version    int64              `bson:"version" json:"-"`
	CreatedAt  time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

type CartItem struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"productId"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	AddedAt   time.Time          `bson:"added_at" json:"addedAt"`
}

// NewCart returns an empty, not yet persisted cart for userID.
func NewCart(userID primitive.ObjectID, now time.Time) *Cart {
	return &Cart{
		UserID:    userID,
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Cart) indexOf(productID primitive.ObjectID) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// HasItem reports whether productID has a line item.
func (c *Cart) HasItem(productID primitive.ObjectID) bool {
	return c.indexOf(productID) >= 0
}

// AddItem merges quantity into the existing line item for productID or
// appends a new one at the end. The cart is left unchanged and
// ErrQuantityLimit returned when the resulting quantity would fall outside
// 1..MaxItemQuantity.
func (c *Cart) AddItem(productID primitive.ObjectID, quantity int, now time.Time) error {
	if quantity < 1 || quantity > MaxItemQuantity {
		return ErrQuantityLimit
	}
	if i := c.indexOf(productID); i >= 0 {
		if c.Items[i].Quantity > MaxItemQuantity-quantity {
			return ErrQuantityLimit
		}
		c.Items[i].Quantity += quantity
		return nil
	}
	c.Items = append(c.Items, CartItem{ProductID: productID, Quantity: quantity, AddedAt: now})
	return nil
}

// SetQuantity overwrites the quantity of an existing line item. It returns
// false when the cart has no line item for productID.
func (c *Cart) SetQuantity(productID primitive.ObjectID, quantity int) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items[i].Quantity = quantity
	return true
}

// RemoveItem drops the line item for productID, keeping the order of the
// rest. It returns false when there was nothing to remove.
func (c *Cart) RemoveItem(productID primitive.ObjectID) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// ProductIDs lists the products referenced by the cart in line item order.
func (c *Cart) ProductIDs() []primitive.ObjectID {
	ids := make([]primitive.ObjectID, len(c.Items))
	for i, item := range c.Items {
		ids[i] = item.ProductID
	}
	return ids
}

// Recompute sets TotalPrice from the given unit prices. Line items whose
// product has no price (the product no longer exists) are dropped.
func (c *Cart) Recompute(unitPrices map[primitive.ObjectID]float64) {
	kept := c.Items[:0]
	total := decimal.Zero
	for _, item := range c.Items {
		price, ok := unitPrices[item.ProductID]
		if !ok {
			continue
		}
		kept = append(kept, item)
		total = total.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.Items = kept
	c.TotalPrice = total.Round(2).InexactFloat64()
}

// CartView is a cart with line items resolved to product summaries.
type CartView struct {
	ID         primitive.ObjectID `json:"id"`
	UserID     primitive.ObjectID `json:"userId"`
	Items      []CartLine         `json:"items"`
	TotalPrice float64            `json:"totalPrice"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

type CartLine struct {
	Product  ProductSummary `json:"product"`
	Quantity int            `json:"quantity"`
	AddedAt  time.Time      `json:"addedAt"`
}

// View resolves line items against products. Products missing from the map
// are rendered with only their id.
func (c *Cart) View(products map[primitive.ObjectID]ProductSummary) *CartView {
	v := &CartView{
		ID:         c.ID,
		UserID:     c.UserID,
		Items:      make([]CartLine, len(c.Items)),
		TotalPrice: c.TotalPrice,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for i, item := range c.Items {
		summary, ok := products[item.ProductID]
		if !ok {
			summary = ProductSummary{ID: item.ProductID}
		}
		v.Items[i] = CartLine{Product: summary, Quantity: item.Quantity, AddedAt: item.AddedAt}
	}
	return v
}
