package event

import (
	stderrors "errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/c0deZ3R0/go-track-kit/errors"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Price is an amount truncated toward zero to two fractional digits, in an ISO-4217 currency.
type Price struct {
	amount   decimal.Decimal
	currency string
}

// NewPrice validates currency and truncates amount to cents.
func NewPrice(amount decimal.Decimal, currency string) (Price, error) {
	if !currencyPattern.MatchString(currency) {
		return Price{}, errors.NewValidationError("currency",
			fmt.Errorf("currency %q is not an ISO-4217 code", currency))
	}
	return Price{amount: amount.Truncate(2), currency: currency}, nil
}

// ParsePrice parses a decimal string such as "15.99".
func ParsePrice(amount, currency string) (Price, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Price{}, errors.NewValidationError("price", fmt.Errorf("invalid amount %q: %w", amount, err))
	}
	return NewPrice(d, currency)
}

// MustParsePrice is ParsePrice for literals known to be valid.
func MustParsePrice(amount, currency string) Price {
	p, err := ParsePrice(amount, currency)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Price) Amount() decimal.Decimal { return p.amount }
func (p Price) Currency() string        { return p.currency }

// String formats the amount as a plain decimal with two fractional digits.
func (p Price) String() string { return p.amount.StringFixed(2) }

// Item is one product line of a purchase, view or add-to-cart.
type Item struct {
	productID        string
	productVariantID string
	price            Price
	quantity         int
	name             string
	productImage     string
	category         string
}

// ItemOption sets an optional Item field.
type ItemOption func(*Item) error

// WithQuantity sets the quantity. It must be at least 1; the default is 1.
func WithQuantity(q int) ItemOption {
	return func(i *Item) error {
		if q < 1 {
			return errors.NewValidationError("quantity", fmt.Errorf("quantity must be at least 1, got %d", q))
		}
		i.quantity = q
		return nil
	}
}

// WithName sets the product name.
func WithName(name string) ItemOption {
	return func(i *Item) error { i.name = name; return nil }
}

// WithProductImage sets the product image URL.
func WithProductImage(url string) ItemOption {
	return func(i *Item) error { i.productImage = url; return nil }
}

// WithCategory sets the product category.
func WithCategory(category string) ItemOption {
	return func(i *Item) error { i.category = category; return nil }
}

// NewItem validates the required fields and applies opts.
func NewItem(productID, productVariantID string, price Price, opts ...ItemOption) (Item, error) {
	if productID == "" {
		return Item{}, errors.NewValidationError("productId", stderrors.New("productId must not be empty"))
	}
	if productVariantID == "" {
		return Item{}, errors.NewValidationError("productVariantId", stderrors.New("productVariantId must not be empty"))
	}
	if price.currency == "" {
		return Item{}, errors.NewValidationError("price", stderrors.New("price is required"))
	}

	item := Item{
		productID:        productID,
		productVariantID: productVariantID,
		price:            price,
		quantity:         1,
	}
	for _, opt := range opts {
		if err := opt(&item); err != nil {
			return Item{}, err
		}
	}
	return item, nil
}

// MustItem is NewItem for literals known to be valid.
func MustItem(productID, productVariantID string, price Price, opts ...ItemOption) Item {
	item, err := NewItem(productID, productVariantID, price, opts...)
	if err != nil {
		panic(err)
	}
	return item
}

func (i Item) ProductID() string        { return i.productID }
func (i Item) ProductVariantID() string { return i.productVariantID }
func (i Item) Price() Price             { return i.price }
func (i Item) Quantity() int            { return i.quantity }
func (i Item) Name() string             { return i.name }
func (i Item) ProductImage() string     { return i.productImage }
func (i Item) Category() string         { return i.category }

func (i Item) quantityString() string { return strconv.Itoa(i.quantity) }

// Order identifies a completed purchase.
type Order struct {
	orderID string
}

// NewOrder requires a non-empty order id.
func NewOrder(orderID string) (Order, error) {
	if orderID == "" {
		return Order{}, errors.NewValidationError("orderId", stderrors.New("orderId must not be empty"))
	}
	return Order{orderID: orderID}, nil
}

func (o Order) OrderID() string { return o.orderID }

// Cart carries optional cart details for a purchase.
type Cart struct {
	CartID     string
	CartCoupon string
}
