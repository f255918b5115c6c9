// Package event defines the events a host application can record and their
// decomposition into wire-request descriptors.
package event

import (
	stderrors "errors"
	"fmt"
	"maps"
	"strings"

	"github.com/c0deZ3R0/go-track-kit/errors"
)

// TypeCode is the "t" query parameter of a collection request.
type TypeCode string

const (
	TypePurchase            TypeCode = "p"
	TypeOrderConfirmed      TypeCode = "oc"
	TypeProductView         TypeCode = "d"
	TypeAddToCart           TypeCode = "c"
	TypeCustom              TypeCode = "ce"
	TypeInfo                TypeCode = "i"
	TypeIdentifierCollected TypeCode = "idn"
)

// Descriptor is one fully-formed outbound request derived from an event.
type Descriptor struct {
	Type     TypeCode
	Metadata *Metadata
	// Extra holds additional top-level query parameters, such as "pd".
	Extra map[string]string
}

// Event is implemented only by the event types in this package.
type Event interface {
	// Name is a short label for logs and spans.
	Name() string
	expand() []Descriptor
}

// PurchaseEvent records a completed order.
type PurchaseEvent struct {
	items []Item
	order Order
	cart  *Cart
}

// NewPurchaseEvent builds a purchase. cart may be nil.
// An empty items list is accepted; such an event expands to no requests.
func NewPurchaseEvent(items []Item, order Order, cart *Cart) (PurchaseEvent, error) {
	if items == nil {
		return PurchaseEvent{}, errors.NewValidationError("items", stderrors.New("items must not be nil"))
	}
	if order.orderID == "" {
		return PurchaseEvent{}, errors.NewValidationError("order", stderrors.New("order is required"))
	}
	e := PurchaseEvent{items: append([]Item(nil), items...), order: order}
	if cart != nil {
		c := *cart
		e.cart = &c
	}
	return e, nil
}

func (PurchaseEvent) Name() string      { return "purchase" }
func (e PurchaseEvent) Items() []Item   { return append([]Item(nil), e.items...) }
func (e PurchaseEvent) Order() Order    { return e.order }
func (e PurchaseEvent) Cart() *Cart {
	if e.cart == nil {
		return nil
	}
	c := *e.cart
	return &c
}

// ProductViewEvent records product detail views.
type ProductViewEvent struct {
	items    []Item
	deeplink string
}

// NewProductViewEvent builds a product view. deeplink may be empty.
func NewProductViewEvent(items []Item, deeplink string) (ProductViewEvent, error) {
	if items == nil {
		return ProductViewEvent{}, errors.NewValidationError("items", stderrors.New("items must not be nil"))
	}
	return ProductViewEvent{items: append([]Item(nil), items...), deeplink: deeplink}, nil
}

func (ProductViewEvent) Name() string       { return "product_view" }
func (e ProductViewEvent) Items() []Item    { return append([]Item(nil), e.items...) }
func (e ProductViewEvent) Deeplink() string { return e.deeplink }

// AddToCartEvent records items added to a cart.
type AddToCartEvent struct {
	items    []Item
	deeplink string
}

// NewAddToCartEvent builds an add-to-cart. deeplink may be empty.
func NewAddToCartEvent(items []Item, deeplink string) (AddToCartEvent, error) {
	if items == nil {
		return AddToCartEvent{}, errors.NewValidationError("items", stderrors.New("items must not be nil"))
	}
	return AddToCartEvent{items: append([]Item(nil), items...), deeplink: deeplink}, nil
}

func (AddToCartEvent) Name() string       { return "add_to_cart" }
func (e AddToCartEvent) Items() []Item    { return append([]Item(nil), e.items...) }
func (e AddToCartEvent) Deeplink() string { return e.deeplink }

// forbiddenCustomChars may not appear in custom event types or property keys.
const forbiddenCustomChars = `"'(){}[]\|`

// CustomEvent is a caller-defined event with string properties.
type CustomEvent struct {
	eventType  string
	properties map[string]string
}

// NewCustomEvent validates type and property keys. properties may be nil.
func NewCustomEvent(eventType string, properties map[string]string) (CustomEvent, error) {
	if eventType == "" {
		return CustomEvent{}, errors.NewValidationError("type", stderrors.New("type must not be empty"))
	}
	if strings.ContainsAny(eventType, forbiddenCustomChars) {
		return CustomEvent{}, errors.NewValidationError("type",
			fmt.Errorf("type %q must not contain any of %s", eventType, forbiddenCustomChars))
	}
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		if strings.ContainsAny(k, forbiddenCustomChars) {
			return CustomEvent{}, errors.NewValidationError("properties",
				fmt.Errorf("property key %q must not contain any of %s", k, forbiddenCustomChars))
		}
		props[k] = v
	}
	return CustomEvent{eventType: eventType, properties: props}, nil
}

func (CustomEvent) Name() string   { return "custom" }
func (e CustomEvent) Type() string { return e.eventType }
func (e CustomEvent) Properties() map[string]string {
	out := make(map[string]string, len(e.properties))
	maps.Copy(out, e.properties)
	return out
}

// InfoEvent carries no payload; it announces the device and identity.
type InfoEvent struct{}

func (InfoEvent) Name() string { return "info" }

// IdentifierCollectedEvent is sent after the host application identifies the user.
type IdentifierCollectedEvent struct{}

func (IdentifierCollectedEvent) Name() string { return "identifier_collected" }
