package event

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-track-kit/errors"
	"github.com/c0deZ3R0/go-track-kit/identity"
	"github.com/c0deZ3R0/go-track-kit/logging"
)

func newBuilder() *Builder { return NewBuilder(logging.Discard()) }

func mustOrder(t *testing.T, id string) Order {
	t.Helper()
	o, err := NewOrder(id)
	require.NoError(t, err)
	return o
}

func metadataJSON(t *testing.T, m *Metadata) map[string]string {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestPrice_Truncates(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"15.99", "15.99"},
		{"15.999", "15.99"},
		{"4", "4.00"},
		{"0.005", "0.00"},
		{"-1.239", "-1.23"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePrice(tt.in, "USD")
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
			assert.Equal(t, "USD", p.Currency())
		})
	}
}

func TestPrice_Invalid(t *testing.T) {
	_, err := ParsePrice("abc", "USD")
	assert.True(t, errors.IsValidation(err))

	_, err = NewPrice(decimal.NewFromInt(1), "usd")
	assert.True(t, errors.IsValidation(err))

	_, err = NewPrice(decimal.NewFromInt(1), "")
	assert.True(t, errors.IsValidation(err))
}

func TestNewItem(t *testing.T) {
	price := MustParsePrice("9.99", "EUR")

	item, err := NewItem("p1", "v1", price, WithName("Shirt"), WithCategory("tops"), WithProductImage("https://img/1.png"))
	require.NoError(t, err)
	assert.Equal(t, 1, item.Quantity(), "quantity defaults to 1")
	assert.Equal(t, "Shirt", item.Name())
	assert.Equal(t, "tops", item.Category())
	assert.Equal(t, "https://img/1.png", item.ProductImage())

	tests := []struct {
		name  string
		build func() (Item, error)
		param string
	}{
		{"missing product id", func() (Item, error) { return NewItem("", "v1", price) }, "productId"},
		{"missing variant id", func() (Item, error) { return NewItem("p1", "", price) }, "productVariantId"},
		{"missing price", func() (Item, error) { return NewItem("p1", "v1", Price{}) }, "price"},
		{"zero quantity", func() (Item, error) { return NewItem("p1", "v1", price, WithQuantity(0)) }, "quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			var te *errors.TrackError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.param, te.Metadata["param"])
		})
	}
}

func TestCartTotal(t *testing.T) {
	items := []Item{
		MustItem("a", "a1", MustParsePrice("15.99", "USD"), WithQuantity(3)),
		MustItem("b", "b1", MustParsePrice("4.00", "USD")),
	}
	assert.Equal(t, "19.99", CartTotal(items))

	assert.Equal(t, "15.99", CartTotal([]Item{MustItem("a", "a1", MustParsePrice("15.999", "USD"))}))
	assert.Equal(t, "0.00", CartTotal(nil))
}

func TestExpand_Purchase(t *testing.T) {
	items := []Item{
		MustItem("a", "a1", MustParsePrice("15.99", "USD"), WithQuantity(2), WithName("A"), WithCategory("cat")),
		MustItem("b", "b1", MustParsePrice("4.00", "CAD")),
	}
	e, err := NewPurchaseEvent(items, mustOrder(t, "order-1"), &Cart{CartID: "cart-9", CartCoupon: "SAVE"})
	require.NoError(t, err)

	got := newBuilder().Expand(e, identity.MustBuild())
	require.Len(t, got, 3)

	assert.Equal(t, TypePurchase, got[0].Type)
	assert.Equal(t, TypePurchase, got[1].Type)
	assert.Equal(t, TypeOrderConfirmed, got[2].Type)

	line := metadataJSON(t, got[0].Metadata)
	assert.Equal(t, map[string]string{
		"currency":     "USD",
		"price":        "15.99",
		"productId":    "a",
		"subProductId": "a1",
		"name":         "A",
		"category":     "cat",
		"quantity":     "2",
		"orderId":      "order-1",
		"cartTotal":    "19.99",
		"cartId":       "cart-9",
		"cartCoupon":   "SAVE",
		"source":       "msdk",
	}, line)

	second := metadataJSON(t, got[1].Metadata)
	assert.Equal(t, "1", second["quantity"])
	assert.Equal(t, "CAD", second["currency"])

	oc := metadataJSON(t, got[2].Metadata)
	assert.Equal(t, "order-1", oc["orderId"])
	assert.Equal(t, "USD", oc["currency"], "first item's currency")
	assert.Equal(t, "19.99", oc["cartTotal"])

	var products []map[string]string
	require.NoError(t, json.Unmarshal([]byte(oc["products"]), &products), "products is an embedded JSON string")
	require.Len(t, products, 2)
	assert.Equal(t, "a", products[0]["productId"])
	assert.Equal(t, "a1", products[0]["subProductId"])
	assert.Equal(t, "2", products[0]["quantity"])
	assert.Equal(t, "15.99", products[0]["price"])
	assert.Equal(t, "b", products[1]["productId"])
}

func TestExpand_PurchaseWithoutCart(t *testing.T) {
	e, err := NewPurchaseEvent([]Item{MustItem("a", "a1", MustParsePrice("1", "USD"))}, mustOrder(t, "o"), nil)
	require.NoError(t, err)

	got := newBuilder().Expand(e, identity.MustBuild())
	require.Len(t, got, 2)
	_, ok := got[0].Metadata.Get(KeyCartID)
	assert.False(t, ok)
}

func TestExpand_EmptyItemsProduceNothing(t *testing.T) {
	purchase, err := NewPurchaseEvent([]Item{}, mustOrder(t, "o"), nil)
	require.NoError(t, err)
	view, err := NewProductViewEvent([]Item{}, "app://x")
	require.NoError(t, err)
	cart, err := NewAddToCartEvent([]Item{}, "")
	require.NoError(t, err)

	b := newBuilder()
	for _, e := range []Event{purchase, view, cart, PurchaseEvent{}} {
		assert.Empty(t, b.Expand(e, identity.MustBuild()), e.Name())
	}
}

func TestNewEvents_RejectNilItems(t *testing.T) {
	_, err := NewPurchaseEvent(nil, mustOrder(t, "o"), nil)
	assert.True(t, errors.IsValidation(err))
	_, err = NewPurchaseEvent([]Item{}, Order{}, nil)
	assert.True(t, errors.IsValidation(err))
	_, err = NewProductViewEvent(nil, "")
	assert.True(t, errors.IsValidation(err))
	_, err = NewAddToCartEvent(nil, "")
	assert.True(t, errors.IsValidation(err))
	_, err = NewOrder("")
	assert.True(t, errors.IsValidation(err))
}

func TestExpand_ProductViewWithDeeplink(t *testing.T) {
	items := []Item{
		MustItem("a", "a1", MustParsePrice("1.50", "USD"), WithQuantity(4)),
		MustItem("b", "b1", MustParsePrice("2.50", "USD")),
	}
	e, err := NewProductViewEvent(items, "app://product/a")
	require.NoError(t, err)

	got := newBuilder().Expand(e, identity.MustBuild())
	require.Len(t, got, 2)
	for _, d := range got {
		assert.Equal(t, TypeProductView, d.Type)
		assert.Equal(t, "app://product/a", d.Extra[ParamDeeplink])
		_, hasQty := d.Metadata.Get(KeyQuantity)
		assert.False(t, hasQty, "product views carry no quantity")
	}
	assert.Equal(t, "1.50", metadataJSON(t, got[0].Metadata)["price"])
}

func TestExpand_AddToCart(t *testing.T) {
	e, err := NewAddToCartEvent([]Item{MustItem("a", "a1", MustParsePrice("3", "USD"), WithQuantity(5))}, "")
	require.NoError(t, err)

	got := newBuilder().Expand(e, identity.MustBuild())
	require.Len(t, got, 1)
	assert.Equal(t, TypeAddToCart, got[0].Type)
	assert.Nil(t, got[0].Extra)
	assert.Equal(t, "5", metadataJSON(t, got[0].Metadata)["quantity"])
}

func TestExpand_Custom(t *testing.T) {
	e, err := NewCustomEvent("T", map[string]string{"k": "v"})
	require.NoError(t, err)

	got := newBuilder().Expand(e, identity.MustBuild())
	require.Len(t, got, 1)
	assert.Equal(t, TypeCustom, got[0].Type)

	m := metadataJSON(t, got[0].Metadata)
	assert.Equal(t, "T", m["type"])

	var props map[string]string
	require.NoError(t, json.Unmarshal([]byte(m["properties"]), &props))
	assert.Equal(t, map[string]string{"k": "v"}, props)
}

func TestNewCustomEvent_Validation(t *testing.T) {
	tests := []struct {
		name  string
		typ   string
		props map[string]string
		ok    bool
	}{
		{"valid", "Signup", map[string]string{"plan": "pro"}, true},
		{"nil properties", "Signup", nil, true},
		{"empty type", "", nil, false},
		{"quote in type", `Sign"up`, nil, false},
		{"brace in key", "Signup", map[string]string{"{k}": "v"}, false},
		{"pipe in key", "Signup", map[string]string{"a|b": "v"}, false},
		{"special chars in value are fine", "Signup", map[string]string{"k": `"[x]"`}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCustomEvent(tt.typ, tt.props)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsValidation(err))
			}
		})
	}
}

func TestExpand_InfoAndIdentifierCollected(t *testing.T) {
	b := newBuilder()

	info := b.Expand(InfoEvent{}, identity.MustBuild())
	require.Len(t, info, 1)
	assert.Equal(t, TypeInfo, info[0].Type)
	assert.Equal(t, []string{KeySource}, info[0].Metadata.Keys())

	idn := b.Expand(IdentifierCollectedEvent{}, identity.MustBuild())
	require.Len(t, idn, 1)
	assert.Equal(t, TypeIdentifierCollected, idn[0].Type)
}

func TestExpand_NilEvent(t *testing.T) {
	assert.Nil(t, newBuilder().Expand(nil, identity.MustBuild()))
}

func TestExpand_IdentifierEnrichment(t *testing.T) {
	ids := identity.MustBuild(identity.WithPhone("+1555"), identity.WithEmail("a@b.com"))

	got := newBuilder().Expand(InfoEvent{}, ids)
	require.Len(t, got, 1)
	m := metadataJSON(t, got[0].Metadata)
	assert.Equal(t, "+1555", m["phone"])
	assert.Equal(t, "a@b.com", m["email"])
	assert.Equal(t, "msdk", m["source"])
}

func TestExpand_EnrichmentNeverOverrides(t *testing.T) {
	// Custom events can't set phone themselves, so exercise the rule on Metadata directly.
	m := NewMetadata()
	m.Set(KeyPhone, "+1999")
	m.SetIfEmpty(KeyPhone, "+1555")
	m.SetIfEmpty(KeyEmail, "")

	v, _ := m.Get(KeyPhone)
	assert.Equal(t, "+1999", v)
	_, ok := m.Get(KeyEmail)
	assert.False(t, ok)
}

func TestMetadata_OrderedJSON(t *testing.T) {
	m := NewMetadata()
	m.Set("z", "1")
	m.Set("a", "2")
	m.Set("empty", "")
	m.Set("z", "3")

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"3","a":"2"}`, string(raw))
	assert.Equal(t, 2, m.Len())

	raw, err = json.Marshal(NewMetadata())
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))
}

func TestEventAccessorsCopy(t *testing.T) {
	items := []Item{MustItem("a", "a1", MustParsePrice("1", "USD"))}
	cart := &Cart{CartID: "c"}
	e, err := NewPurchaseEvent(items, mustOrder(t, "o"), cart)
	require.NoError(t, err)

	items[0] = MustItem("changed", "x", MustParsePrice("2", "USD"))
	cart.CartID = "changed"

	assert.Equal(t, "a", e.Items()[0].ProductID())
	assert.Equal(t, "c", e.Cart().CartID)
	assert.Equal(t, "o", e.Order().OrderID())
}
