package event

import (
	"encoding/json"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/c0deZ3R0/go-track-kit/identity"
	"github.com/c0deZ3R0/go-track-kit/logging"
)

// Metadata keys shared by the collection endpoint.
const (
	KeySource       = "source"
	KeyPhone        = "phone"
	KeyEmail        = "email"
	KeyCurrency     = "currency"
	KeyPrice        = "price"
	KeyProductID    = "productId"
	KeySubProductID = "subProductId"
	KeyName         = "name"
	KeyImage        = "image"
	KeyCategory     = "category"
	KeyQuantity     = "quantity"
	KeyOrderID      = "orderId"
	KeyCartTotal    = "cartTotal"
	KeyCartID       = "cartId"
	KeyCartCoupon   = "cartCoupon"
	KeyProducts     = "products"
	KeyType         = "type"
	KeyProperties   = "properties"

	// SourceValue marks every request as coming from the mobile SDK.
	SourceValue = "msdk"

	// ParamDeeplink is the extra query parameter carrying a deeplink.
	ParamDeeplink = "pd"
)

// Expand converts e into descriptors enriched with ids, logging to the default logger.
func Expand(e Event, ids identity.UserIdentifiers) []Descriptor {
	return NewBuilder(logging.Default()).Expand(e, ids)
}

// Builder expands events into descriptors.
type Builder struct {
	logger *logging.Logger
}

// NewBuilder returns a Builder logging to logger.
func NewBuilder(logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Default()
	}
	return &Builder{logger: logger.WithComponent("event")}
}

// Expand converts e into an ordered list of descriptors. Item-based events
// with no items produce nothing. Every descriptor gets source=msdk and the
// identifiers' phone and email unless the event already set those keys.
func (b *Builder) Expand(e Event, ids identity.UserIdentifiers) []Descriptor {
	if e == nil {
		b.logger.Warn("unknown event type, nothing to send")
		return nil
	}

	descriptors := e.expand()
	if len(descriptors) == 0 {
		b.logger.Debug("event produced no requests", slog.String("event", e.Name()))
		return nil
	}

	phone, _ := ids.Phone()
	email, _ := ids.Email()
	for _, d := range descriptors {
		d.Metadata.Set(KeySource, SourceValue)
		d.Metadata.SetIfEmpty(KeyPhone, phone)
		d.Metadata.SetIfEmpty(KeyEmail, email)
	}
	return descriptors
}

// CartTotal sums item prices, truncated toward zero to two digits.
// Quantities do not contribute.
func CartTotal(items []Item) string {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.price.amount)
	}
	return total.Truncate(2).StringFixed(2)
}

func productMetadata(item Item) *Metadata {
	m := NewMetadata()
	m.Set(KeyCurrency, item.price.currency)
	m.Set(KeyPrice, item.price.String())
	m.Set(KeyProductID, item.productID)
	m.Set(KeySubProductID, item.productVariantID)
	m.Set(KeyName, item.name)
	m.Set(KeyImage, item.productImage)
	m.Set(KeyCategory, item.category)
	return m
}

func deeplinkExtra(deeplink string) map[string]string {
	if deeplink == "" {
		return nil
	}
	return map[string]string{ParamDeeplink: deeplink}
}

// orderProduct is one entry of the order-confirmed "products" list.
type orderProduct struct {
	ProductID    string `json:"productId"`
	SubProductID string `json:"subProductId"`
	Currency     string `json:"currency"`
	Category     string `json:"category,omitempty"`
	Quantity     string `json:"quantity"`
	Name         string `json:"name,omitempty"`
	Price        string `json:"price"`
	Image        string `json:"image,omitempty"`
}

func (e PurchaseEvent) expand() []Descriptor {
	if len(e.items) == 0 {
		return nil
	}

	cartTotal := CartTotal(e.items)
	out := make([]Descriptor, 0, len(e.items)+1)
	products := make([]orderProduct, 0, len(e.items))

	for _, item := range e.items {
		m := productMetadata(item)
		m.Set(KeyQuantity, item.quantityString())
		m.Set(KeyOrderID, e.order.orderID)
		m.Set(KeyCartTotal, cartTotal)
		if e.cart != nil {
			m.Set(KeyCartID, e.cart.CartID)
			m.Set(KeyCartCoupon, e.cart.CartCoupon)
		}
		out = append(out, Descriptor{Type: TypePurchase, Metadata: m})

		products = append(products, orderProduct{
			ProductID:    item.productID,
			SubProductID: item.productVariantID,
			Currency:     item.price.currency,
			Category:     item.category,
			Quantity:     item.quantityString(),
			Name:         item.name,
			Price:        item.price.String(),
			Image:        item.productImage,
		})
	}

	oc := NewMetadata()
	oc.Set(KeyOrderID, e.order.orderID)
	oc.Set(KeyCurrency, e.items[0].price.currency)
	oc.Set(KeyCartTotal, cartTotal)
	// A slice of plain string fields always marshals.
	raw, _ := json.Marshal(products)
	oc.Set(KeyProducts, string(raw))
	out = append(out, Descriptor{Type: TypeOrderConfirmed, Metadata: oc})

	return out
}

func (e ProductViewEvent) expand() []Descriptor {
	out := make([]Descriptor, 0, len(e.items))
	for _, item := range e.items {
		out = append(out, Descriptor{
			Type:     TypeProductView,
			Metadata: productMetadata(item),
			Extra:    deeplinkExtra(e.deeplink),
		})
	}
	return out
}

func (e AddToCartEvent) expand() []Descriptor {
	out := make([]Descriptor, 0, len(e.items))
	for _, item := range e.items {
		m := productMetadata(item)
		m.Set(KeyQuantity, item.quantityString())
		out = append(out, Descriptor{
			Type:     TypeAddToCart,
			Metadata: m,
			Extra:    deeplinkExtra(e.deeplink),
		})
	}
	return out
}

func (e CustomEvent) expand() []Descriptor {
	m := NewMetadata()
	m.Set(KeyType, e.eventType)
	props := e.properties
	if props == nil {
		props = map[string]string{}
	}
	// map[string]string always marshals.
	raw, _ := json.Marshal(props)
	m.Set(KeyProperties, string(raw))
	return []Descriptor{{Type: TypeCustom, Metadata: m}}
}

func (InfoEvent) expand() []Descriptor {
	return []Descriptor{{Type: TypeInfo, Metadata: NewMetadata()}}
}

func (IdentifierCollectedEvent) expand() []Descriptor {
	return []Descriptor{{Type: TypeIdentifierCollected, Metadata: NewMetadata()}}
}
