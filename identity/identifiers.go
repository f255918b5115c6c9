// Package identity holds the caller-supplied user identifiers and the rules
// for merging a newer partial identity over an older one.
package identity

import (
	stderrors "errors"
	"maps"

	"github.com/c0deZ3R0/go-track-kit/errors"
)

// UserIdentifiers is an immutable set of identifiers for the current user.
// Construct it with Build and supersede it with Merge.
type UserIdentifiers struct {
	clientUserID string
	phone        string
	email        string
	shopifyID    string
	klaviyoID    string
	visitorID    string
	custom       map[string]string
}

// Option sets one field on a UserIdentifiers under construction.
type Option func(*builder)

type builder struct {
	ids UserIdentifiers
	err error
}

func (b *builder) setString(param string, dst *string, value string) {
	if b.err != nil {
		return
	}
	if value == "" {
		b.err = errors.NewValidationError(param, stderrors.New(param+" must not be empty"))
		return
	}
	*dst = value
}

// WithClientUserID sets the host application's own user id.
func WithClientUserID(id string) Option {
	return func(b *builder) { b.setString("clientUserId", &b.ids.clientUserID, id) }
}

// WithPhone sets the phone number.
func WithPhone(phone string) Option {
	return func(b *builder) { b.setString("phone", &b.ids.phone, phone) }
}

// WithEmail sets the email address.
func WithEmail(email string) Option {
	return func(b *builder) { b.setString("email", &b.ids.email, email) }
}

// WithShopifyID sets the Shopify customer id.
func WithShopifyID(id string) Option {
	return func(b *builder) { b.setString("shopifyId", &b.ids.shopifyID, id) }
}

// WithKlaviyoID sets the Klaviyo profile id.
func WithKlaviyoID(id string) Option {
	return func(b *builder) { b.setString("klaviyoId", &b.ids.klaviyoID, id) }
}

// WithVisitorID sets the device visitor id.
func WithVisitorID(id string) Option {
	return func(b *builder) { b.setString("visitorId", &b.ids.visitorID, id) }
}

// WithCustomIdentifiers adds named custom identifiers. A nil map is rejected;
// keys and values must be non-empty.
func WithCustomIdentifiers(custom map[string]string) Option {
	return func(b *builder) {
		if b.err != nil {
			return
		}
		if custom == nil {
			b.err = errors.NewValidationError("customIdentifiers", stderrors.New("customIdentifiers must not be nil"))
			return
		}
		for k, v := range custom {
			if k == "" || v == "" {
				b.err = errors.NewValidationError("customIdentifiers",
					stderrors.New("custom identifier names and values must not be empty"))
				return
			}
		}
		if b.ids.custom == nil {
			b.ids.custom = make(map[string]string, len(custom))
		}
		maps.Copy(b.ids.custom, custom)
	}
}

// Build validates every option and returns the frozen identifiers.
// Either all fields are valid or nothing is constructed.
func Build(opts ...Option) (UserIdentifiers, error) {
	b := &builder{}
	for _, opt := range opts {
		opt(b)
		if b.err != nil {
			return UserIdentifiers{}, b.err
		}
	}
	return b.ids, nil
}

// MustBuild is Build for literals known to be valid. It panics on a validation error.
func MustBuild(opts ...Option) UserIdentifiers {
	ids, err := Build(opts...)
	if err != nil {
		panic(err)
	}
	return ids
}

func get(v string) (string, bool) { return v, v != "" }

func (u UserIdentifiers) ClientUserID() (string, bool) { return get(u.clientUserID) }
func (u UserIdentifiers) Phone() (string, bool)        { return get(u.phone) }
func (u UserIdentifiers) Email() (string, bool)        { return get(u.email) }
func (u UserIdentifiers) ShopifyID() (string, bool)    { return get(u.shopifyID) }
func (u UserIdentifiers) KlaviyoID() (string, bool)    { return get(u.klaviyoID) }
func (u UserIdentifiers) VisitorID() (string, bool)    { return get(u.visitorID) }

// CustomIdentifiers returns a copy of the custom identifier map. Never nil.
func (u UserIdentifiers) CustomIdentifiers() map[string]string {
	out := make(map[string]string, len(u.custom))
	maps.Copy(out, u.custom)
	return out
}

// IsEmpty reports whether no identifier at all is set.
func (u UserIdentifiers) IsEmpty() bool {
	return u.clientUserID == "" && u.phone == "" && u.email == "" && u.shopifyID == "" &&
		u.klaviyoID == "" && u.visitorID == "" && len(u.custom) == 0
}

// Merge returns older overridden field by field with newer. Scalars from newer
// win when present; custom identifiers are unioned with newer winning on
// collision. Neither input is modified.
func Merge(older, newer UserIdentifiers) UserIdentifiers {
	merged := UserIdentifiers{
		clientUserID: pick(newer.clientUserID, older.clientUserID),
		phone:        pick(newer.phone, older.phone),
		email:        pick(newer.email, older.email),
		shopifyID:    pick(newer.shopifyID, older.shopifyID),
		klaviyoID:    pick(newer.klaviyoID, older.klaviyoID),
		visitorID:    pick(newer.visitorID, older.visitorID),
	}
	if len(older.custom)+len(newer.custom) > 0 {
		merged.custom = make(map[string]string, len(older.custom)+len(newer.custom))
		maps.Copy(merged.custom, older.custom)
		maps.Copy(merged.custom, newer.custom)
	}
	return merged
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}
