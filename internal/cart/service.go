package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jersey-studio/internal/catalog"
	"github.com/noah-isme/jersey-studio/internal/lock"
	"github.com/noah-isme/jersey-studio/internal/obs"
	"github.com/noah-isme/jersey-studio/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart, item or add-on could not be located.
	ErrNotFound = errors.New("cart not found")
	// ErrInvalidInput wraps pricing.ErrInvalidInput so callers can match either.
	ErrInvalidInput = fmt.Errorf("cart: %w", pricing.ErrInvalidInput)
)

// MaxQuantity caps the quantity of a single garment or add-on line.
const MaxQuantity = 10000

// Locker serialises read-modify-write cycles on a cart.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service encapsulates cart domain operations.
type Service struct {
	Store   Store
	Catalog *catalog.Catalog
	Locker  Locker
	Engine  *pricing.Engine
	TTL     time.Duration
	LockTTL time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

// ItemInput describes a garment line to add.
type ItemInput struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int64  `json:"quantity" validate:"gte=1,lte=10000"`
	Size     string `json:"size" validate:"omitempty,oneof=YS YM YL XS S M L XL 2XL 3XL"`
	Gender   string `json:"gender" validate:"omitempty,oneof=men women youth unisex"`
}

// ItemUpdate changes any subset of a line's quantity, size and gender.
type ItemUpdate struct {
	Quantity *int64  `json:"quantity" validate:"omitempty,gte=1,lte=10000"`
	Size     *string `json:"size" validate:"omitempty,oneof=YS YM YL XS S M L XL 2XL 3XL"`
	Gender   *string `json:"gender" validate:"omitempty,oneof=men women youth unisex"`
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 72 * time.Hour
	}
	return s.TTL
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) engine() *pricing.Engine {
	if s.Engine != nil {
		return s.Engine
	}
	return pricing.NewEngine(pricing.DefaultRules())
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Create starts an empty cart owned by userID (empty for guests).
func (s *Service) Create(ctx context.Context, userID, designID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	now := s.now()
	c := Cart{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		DesignID:  strings.TrimSpace(designID),
		Items:     []Item{},
		AddOns:    []AddOn{},
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.Store.Save(ctx, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Get loads a cart visible to userID. A cart owned by someone else is reported as not found.
func (s *Service) Get(ctx context.Context, id, userID string) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	c, err := s.Store.Get(ctx, id)
	if err != nil {
		return Cart{}, err
	}
	if !visibleTo(c, userID) {
		return Cart{}, ErrNotFound
	}
	return c, nil
}

// SetDesign links a generated design to the cart.
func (s *Service) SetDesign(ctx context.Context, id, userID, designID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		c.DesignID = strings.TrimSpace(designID)
		return nil
	})
}

// AddItem adds a garment line priced from the catalog, merging with an identical line.
func (s *Service) AddItem(ctx context.Context, id, userID string, in ItemInput) (Cart, error) {
	if err := checkQuantity(in.Quantity); err != nil {
		return Cart{}, err
	}
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	product, err := s.Catalog.Product(in.SKU)
	if err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		for i := range c.Items {
			it := &c.Items[i]
			if it.SKU == product.SKU && it.Size == in.Size && it.Gender == in.Gender {
				it.Quantity += in.Quantity
				return checkQuantity(it.Quantity)
			}
		}
		c.Items = append(c.Items, Item{
			ID:             uuid.NewString(),
			SKU:            product.SKU,
			Name:           product.Name,
			Type:           product.Type,
			UnitPriceMinor: product.UnitPriceMinor,
			Quantity:       in.Quantity,
			Size:           in.Size,
			Gender:         in.Gender,
		})
		return nil
	})
}

// UpdateItem changes quantity, size or gender of a line.
func (s *Service) UpdateItem(ctx context.Context, id, userID, itemID string, upd ItemUpdate) (Cart, error) {
	if upd.Quantity != nil {
		if err := checkQuantity(*upd.Quantity); err != nil {
			return Cart{}, err
		}
	}
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		for i := range c.Items {
			it := &c.Items[i]
			if it.ID != itemID {
				continue
			}
			if upd.Quantity != nil {
				it.Quantity = *upd.Quantity
			}
			if upd.Size != nil {
				it.Size = *upd.Size
			}
			if upd.Gender != nil {
				it.Gender = *upd.Gender
			}
			return nil
		}
		return ErrNotFound
	})
}

// RemoveItem drops a line from the cart.
func (s *Service) RemoveItem(ctx context.Context, id, userID, itemID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

// AddAddOn attaches an add-on priced from the catalog, merging with an existing line of the same kind.
func (s *Service) AddAddOn(ctx context.Context, id, userID, kind string, qty int64) (Cart, error) {
	if err := checkQuantity(qty); err != nil {
		return Cart{}, err
	}
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	opt, err := s.Catalog.AddOn(kind)
	if err != nil {
		return Cart{}, err
	}
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		for i := range c.AddOns {
			if c.AddOns[i].Kind == opt.Kind {
				c.AddOns[i].Quantity += qty
				return checkQuantity(c.AddOns[i].Quantity)
			}
		}
		c.AddOns = append(c.AddOns, AddOn{
			ID:             uuid.NewString(),
			Kind:           opt.Kind,
			Name:           opt.Name,
			UnitPriceMinor: opt.UnitPriceMinor,
			Quantity:       qty,
		})
		return nil
	})
}

// RemoveAddOn drops an add-on line.
func (s *Service) RemoveAddOn(ctx context.Context, id, userID, addOnID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		for i := range c.AddOns {
			if c.AddOns[i].ID == addOnID {
				c.AddOns = append(c.AddOns[:i], c.AddOns[i+1:]...)
				return nil
			}
		}
		return ErrNotFound
	})
}

// SetRoster replaces the roster and the team-order flag.
func (s *Service) SetRoster(ctx context.Context, id, userID string, members []pricing.RosterMember, team bool) (Cart, error) {
	roster := make([]pricing.RosterMember, 0, len(members))
	for _, m := range members {
		m.MemberID = strings.TrimSpace(m.MemberID)
		if m.Quantity == 0 {
			m.Quantity = 1
		}
		roster = append(roster, m)
	}
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		c.Roster = roster
		c.IsTeamOrder = team
		return nil
	})
}

// ClearRoster removes the roster and turns the cart back into a regular order.
func (s *Service) ClearRoster(ctx context.Context, id, userID string) (Cart, error) {
	return s.mutate(ctx, id, userID, func(c *Cart) error {
		c.Roster = nil
		c.IsTeamOrder = false
		return nil
	})
}

// Price computes the breakdown for the cart.
func (s *Service) Price(c Cart, isSubscriber bool) (pricing.Breakdown, error) {
	b, err := s.engine().Compute(Snapshot(c, isSubscriber))
	if err != nil {
		obs.IncCounter(obs.PriceComputationsTotal, "invalid")
		s.Logger.Debug().Err(err).Str("cart_id", c.ID).Msg("cart pricing rejected")
		return pricing.Breakdown{}, err
	}
	obs.IncCounter(obs.PriceComputationsTotal, "ok")
	return b, nil
}

// mutate applies fn under the cart lock and saves the result only when the cart still prices.
func (s *Service) mutate(ctx context.Context, id, userID string, fn func(*Cart) error) (Cart, error) {
	if err := s.ready(); err != nil {
		return Cart{}, err
	}
	var out Cart
	run := func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		if !visibleTo(c, userID) {
			return ErrNotFound
		}
		if err := fn(&c); err != nil {
			return err
		}
		if _, err := s.engine().Compute(Snapshot(c, false)); err != nil {
			return err
		}
		now := s.now()
		c.UpdatedAt = now
		c.ExpiresAt = now.Add(s.ttl())
		if err := s.Store.Save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	}
	var err error
	if s.Locker == nil {
		err = run(ctx)
	} else {
		err = s.Locker.WithLock(ctx, lock.Key("cart", id), s.lockTTL(), run)
	}
	if err != nil {
		return Cart{}, err
	}
	return out, nil
}

func checkQuantity(qty int64) error {
	switch {
	case qty < 1:
		return fmt.Errorf("quantity must be at least 1: %w", ErrInvalidInput)
	case qty > MaxQuantity:
		return fmt.Errorf("quantity must be at most %d: %w", MaxQuantity, ErrInvalidInput)
	}
	return nil
}

func visibleTo(c Cart, userID string) bool {
	return c.UserID == "" || c.UserID == strings.TrimSpace(userID)
}
