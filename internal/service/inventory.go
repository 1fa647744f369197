package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"atstore-api/internal/cache"
	"atstore-api/internal/metrics"
	"atstore-api/internal/model"
	"atstore-api/internal/repository"
	"atstore-api/internal/vault"
	"atstore-api/pkg/apierror"
	"atstore-api/pkg/uid"
)

// errNothingAvailable aborts a reservation transaction without writing.
var errNothingAvailable = errors.New("no available item")

// CategoryInput describes a category to create, with plaintext credentials.
type CategoryInput struct {
	Name  string             `json:"name"`
	Price int64              `json:"price"`
	Items []vault.Credential `json:"items"`
}

// CreateListingInput describes a new listing.
type CreateListingInput struct {
	Game         string          `json:"game"`
	Server       string          `json:"server"`
	Type         string          `json:"type"`
	DisplayImage string          `json:"displayImage"`
	DetailImages []string        `json:"detailImages"`
	Categories   []CategoryInput `json:"categories"`
}

// ItemUpdate is a partial edit of an inventory item. Nil fields are left alone.
type ItemUpdate struct {
	Username *string           `json:"username"`
	Password *string           `json:"password"`
	Status   *model.ItemStatus `json:"status"`
}

// Reservation is one item taken out of stock, with its decrypted credential.
type Reservation struct {
	ListingID  string
	CategoryID string
	ItemID     string
	Credential vault.Credential
}

// InventoryService owns listings, their categories and inventory items.
// Every mutation goes through ListingRepository.Update so reservations and
// owner edits of the same listing never overwrite each other.
type InventoryService struct {
	listings repository.ListingRepository
	vault    *vault.Vault
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewInventoryService creates a new inventory service. c may be nil to disable caching.
func NewInventoryService(
	listings repository.ListingRepository,
	v *vault.Vault,
	c cache.Cache,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *InventoryService {
	return &InventoryService{
		listings: listings,
		vault:    v,
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  m,
		logger:   logger.Named("inventory"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func listingKey(id string) string { return "listing:" + id }
func gameKey(game string) string  { return "game:" + game }

// invalidate drops cached public views touched by a write to l.
func (s *InventoryService) invalidate(ctx context.Context, l *model.Listing) {
	if s.cache == nil || l == nil {
		return
	}
	if err := s.cache.Delete(ctx, listingKey(l.ID), gameKey(l.Game)); err != nil {
		s.logger.Warn("failed to invalidate listing cache", zap.String("listing_id", l.ID), zap.Error(err))
	}
}

// cached serves v from cache or computes it with load and stores the result.
func (s *InventoryService) cached(ctx context.Context, key string, v interface{}, load func() (interface{}, error)) error {
	encode := func() ([]byte, error) {
		out, err := load()
		if err != nil {
			return nil, err
		}
		return json.Marshal(out)
	}

	var (
		data []byte
		err  error
	)
	if s.cache == nil {
		data, err = encode()
	} else {
		data, err = s.cache.GetOrSet(ctx, key, s.cacheTTL, encode)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func validateCategory(name string, price int64) error {
	if strings.TrimSpace(name) == "" {
		return fieldError("name", "category name is required")
	}
	if price <= 0 {
		return fieldError("price", "price must be greater than zero")
	}
	return nil
}

// requireUniqueName rejects a category name already used by another category
// of l. Orders and reservations address categories by name.
func requireUniqueName(l *model.Listing, name, exceptID string) error {
	if i := l.CategoryIndexByName(name); i >= 0 && l.Categories[i].ID != exceptID {
		return apierror.Conflict("a category named " + name + " already exists on this listing")
	}
	return nil
}

func validateCredential(c vault.Credential) error {
	if c.Username == "" {
		return fieldError("username", "username is required")
	}
	if c.Password == "" {
		return fieldError("password", "password is required")
	}
	return nil
}

func (s *InventoryService) newItem(c vault.Credential) (model.InventoryItem, error) {
	if err := validateCredential(c); err != nil {
		return model.InventoryItem{}, err
	}
	enc, err := s.vault.EncryptCredential(c)
	if err != nil {
		return model.InventoryItem{}, err
	}
	return model.InventoryItem{
		ID:       uid.NewSortable(),
		Username: enc.Username,
		Password: enc.Password,
		Status:   model.ItemAvailable,
	}, nil
}

// CreateListing encrypts every credential and stores a new listing owned by ownerID.
func (s *InventoryService) CreateListing(ctx context.Context, ownerID string, in CreateListingInput) (*model.OwnerListing, error) {
	if ownerID == "" {
		return nil, apierror.Unauthorized("")
	}
	if strings.TrimSpace(in.Game) == "" {
		return nil, fieldError("game", "game is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fieldError("type", "type is required")
	}

	now := s.now()
	l := &model.Listing{
		ID:           uid.New(),
		Game:         in.Game,
		Server:       in.Server,
		Type:         in.Type,
		DisplayImage: in.DisplayImage,
		DetailImages: append([]string{}, in.DetailImages...),
		OwnerID:      ownerID,
		Categories:   make([]model.Category, 0, len(in.Categories)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, ci := range in.Categories {
		if err := validateCategory(ci.Name, ci.Price); err != nil {
			return nil, err
		}
		if l.CategoryIndexByName(ci.Name) >= 0 {
			return nil, fieldError("categories", "category names must be unique")
		}
		cat := model.Category{ID: uid.NewSortable(), Name: ci.Name, Price: ci.Price, Items: make([]model.InventoryItem, 0, len(ci.Items))}
		for _, cred := range ci.Items {
			item, err := s.newItem(cred)
			if err != nil {
				return nil, err
			}
			cat.Items = append(cat.Items, item)
		}
		l.Categories = append(l.Categories, cat)
	}

	if err := s.listings.Create(ctx, l); err != nil {
		return nil, translate(err, "listing")
	}
	s.invalidate(ctx, l)

	s.logger.Info("listing created", zap.String("listing_id", l.ID), zap.String("owner_id", ownerID), zap.String("game", l.Game))
	view := s.ownerView(l)
	return &view, nil
}

// GetListing returns the public view of one listing.
func (s *InventoryService) GetListing(ctx context.Context, listingID string) (*model.PublicListing, error) {
	var out model.PublicListing
	err := s.cached(ctx, listingKey(listingID), &out, func() (interface{}, error) {
		l, err := s.listings.Get(ctx, listingID)
		if err != nil {
			return nil, translate(err, "listing")
		}
		return l.ToPublic(), nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPublic returns the buyer-facing categories of one listing.
func (s *InventoryService) ListPublic(ctx context.Context, listingID string) ([]model.PublicCategory, error) {
	l, err := s.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return l.Categories, nil
}

// ListByGame returns public views of all listings for a game, newest first.
func (s *InventoryService) ListByGame(ctx context.Context, game string) ([]model.PublicListing, error) {
	out := make([]model.PublicListing, 0)
	err := s.cached(ctx, gameKey(game), &out, func() (interface{}, error) {
		listings, err := s.listings.ListByGame(ctx, game)
		if err != nil {
			return nil, translate(err, "listing")
		}
		views := make([]model.PublicListing, 0, len(listings))
		for _, l := range listings {
			views = append(views, l.ToPublic())
		}
		return views, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListForOwner returns the owner's listings with every credential decrypted.
// An item that fails to decrypt shows model.DecryptionPlaceholder instead.
func (s *InventoryService) ListForOwner(ctx context.Context, ownerID string) ([]model.OwnerListing, error) {
	if ownerID == "" {
		return nil, apierror.Unauthorized("")
	}
	listings, err := s.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate(err, "listing")
	}

	out := make([]model.OwnerListing, 0, len(listings))
	for _, l := range listings {
		out = append(out, s.ownerView(l))
	}
	return out, nil
}

// OwnerStats totals the owner's listings, item counts and their value at
// current category prices.
func (s *InventoryService) OwnerStats(ctx context.Context, ownerID string) (*model.OwnerStats, error) {
	if ownerID == "" {
		return nil, apierror.Unauthorized("")
	}
	listings, err := s.listings.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate(err, "listing")
	}

	stats := &model.OwnerStats{Listings: len(listings)}
	for _, l := range listings {
		stats.Categories += len(l.Categories)
		for _, c := range l.Categories {
			available := c.AvailableCount()
			sold := len(c.Items) - available
			stats.AvailableItems += available
			stats.SoldItems += sold
			stats.StockValue += int64(available) * c.Price
			stats.SoldValue += int64(sold) * c.Price
		}
	}
	return stats, nil
}

func (s *InventoryService) ownerView(l *model.Listing) model.OwnerListing {
	view := model.OwnerListing{
		ID:           l.ID,
		Game:         l.Game,
		Server:       l.Server,
		Type:         l.Type,
		DisplayImage: l.DisplayImage,
		DetailImages: append([]string{}, l.DetailImages...),
		Categories:   make([]model.OwnerCategory, 0, len(l.Categories)),
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
	}

	for _, c := range l.Categories {
		oc := model.OwnerCategory{
			ID:    c.ID,
			Name:  c.Name,
			Price: c.Price,
			Items: make([]model.OwnerItem, 0, len(c.Items)),
		}
		for _, item := range c.Items {
			if item.IsAvailable() {
				oc.AvailableCount++
			} else {
				oc.SoldCount++
			}
			oc.Items = append(oc.Items, s.ownerItem(l.ID, item))
		}
		view.Categories = append(view.Categories, oc)
	}
	return view
}

// ownerItem decrypts one item. A failure yields the placeholder instead of an error.
func (s *InventoryService) ownerItem(listingID string, item model.InventoryItem) model.OwnerItem {
	status := model.ItemAvailable
	if !item.IsAvailable() {
		status = model.ItemSold
	}

	cred, err := s.vault.DecryptCredential(vault.Credential{Username: item.Username, Password: item.Password})
	if err != nil {
		s.logger.Warn("failed to decrypt inventory item",
			zap.String("listing_id", listingID), zap.String("item_id", item.ID), zap.Error(err))
		cred = vault.Credential{Username: model.DecryptionPlaceholder, Password: model.DecryptionPlaceholder}
	}
	return model.OwnerItem{ID: item.ID, Username: cred.Username, Password: cred.Password, Status: status}
}

// mutate runs fn as one atomic whole-listing update and invalidates cached views.
func (s *InventoryService) mutate(ctx context.Context, listingID string, fn repository.MutateFunc) (*model.Listing, error) {
	l, err := s.listings.Update(ctx, listingID, fn)
	if err != nil {
		return nil, translate(err, "listing")
	}
	s.invalidate(ctx, l)
	return l, nil
}

// ownedBy wraps fn with the owner check, evaluated against the freshly loaded listing.
func ownedBy(ownerID string, fn repository.MutateFunc) repository.MutateFunc {
	return func(l *model.Listing) error {
		if l.OwnerID == "" {
			return apierror.Forbidden("listing has no owner and cannot be modified")
		}
		if l.OwnerID != ownerID {
			return apierror.Forbidden("you do not own this listing")
		}
		return fn(l)
	}
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return apierror.Unauthorized("")
	}
	return nil
}

func findCategory(l *model.Listing, categoryID string) (*model.Category, error) {
	i := l.CategoryIndex(categoryID)
	if i < 0 {
		return nil, apierror.NotFound("category not found")
	}
	return &l.Categories[i], nil
}

// AppendCategory adds an empty category to a listing without an owner check.
func (s *InventoryService) AppendCategory(ctx context.Context, listingID, name string, price int64) (*model.Category, error) {
	if err := validateCategory(name, price); err != nil {
		return nil, err
	}
	return s.appendCategory(ctx, listingID, name, price, func(fn repository.MutateFunc) repository.MutateFunc { return fn })
}

// AddCategory is AppendCategory restricted to the listing owner.
func (s *InventoryService) AddCategory(ctx context.Context, listingID, ownerID, name string, price int64) (*model.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateCategory(name, price); err != nil {
		return nil, err
	}
	return s.appendCategory(ctx, listingID, name, price, func(fn repository.MutateFunc) repository.MutateFunc {
		return ownedBy(ownerID, fn)
	})
}

func (s *InventoryService) appendCategory(ctx context.Context, listingID, name string, price int64, guard func(repository.MutateFunc) repository.MutateFunc) (*model.Category, error) {
	cat := model.Category{ID: uid.NewSortable(), Name: name, Price: price, Items: []model.InventoryItem{}}
	_, err := s.mutate(ctx, listingID, guard(func(l *model.Listing) error {
		if err := requireUniqueName(l, name, ""); err != nil {
			return err
		}
		l.Categories = append(l.Categories, cat)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// AppendItem encrypts a credential and appends it to a category without an owner check.
func (s *InventoryService) AppendItem(ctx context.Context, listingID, categoryID string, cred vault.Credential) (*model.OwnerItem, error) {
	return s.appendItem(ctx, listingID, categoryID, cred, func(fn repository.MutateFunc) repository.MutateFunc { return fn })
}

// AddItem is AppendItem restricted to the listing owner.
func (s *InventoryService) AddItem(ctx context.Context, listingID, categoryID, ownerID string, cred vault.Credential) (*model.OwnerItem, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.appendItem(ctx, listingID, categoryID, cred, func(fn repository.MutateFunc) repository.MutateFunc {
		return ownedBy(ownerID, fn)
	})
}

func (s *InventoryService) appendItem(ctx context.Context, listingID, categoryID string, cred vault.Credential, guard func(repository.MutateFunc) repository.MutateFunc) (*model.OwnerItem, error) {
	item, err := s.newItem(cred)
	if err != nil {
		return nil, err
	}

	_, err = s.mutate(ctx, listingID, guard(func(l *model.Listing) error {
		cat, err := findCategory(l, categoryID)
		if err != nil {
			return err
		}
		cat.Items = append(cat.Items, item)
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return &model.OwnerItem{ID: item.ID, Username: cred.Username, Password: cred.Password, Status: item.Status}, nil
}

// UpdateCategory renames and reprices a category.
func (s *InventoryService) UpdateCategory(ctx context.Context, listingID, categoryID, ownerID, name string, price int64) (*model.Category, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if err := validateCategory(name, price); err != nil {
		return nil, err
	}

	var updated model.Category
	_, err := s.mutate(ctx, listingID, ownedBy(ownerID, func(l *model.Listing) error {
		cat, err := findCategory(l, categoryID)
		if err != nil {
			return err
		}
		if err := requireUniqueName(l, name, categoryID); err != nil {
			return err
		}
		cat.Name = name
		cat.Price = price
		updated = *cat
		return nil
	}))
	if err != nil {
		return nil, err
	}
	updated.Items = nil
	return &updated, nil
}

// UpdateItem replaces an item's credentials and/or marks it sold.
// A sold item can never become available again.
func (s *InventoryService) UpdateItem(ctx context.Context, listingID, categoryID, itemID, ownerID string, upd ItemUpdate) (*model.OwnerItem, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if upd.Status != nil && *upd.Status != model.ItemAvailable && *upd.Status != model.ItemSold {
		return nil, fieldError("status", "status must be available or sold")
	}

	var username, password string
	if upd.Username != nil {
		if *upd.Username == "" {
			return nil, fieldError("username", "username is required")
		}
		enc, err := s.vault.Encrypt(*upd.Username)
		if err != nil {
			return nil, err
		}
		username = enc
	}
	if upd.Password != nil {
		if *upd.Password == "" {
			return nil, fieldError("password", "password is required")
		}
		enc, err := s.vault.Encrypt(*upd.Password)
		if err != nil {
			return nil, err
		}
		password = enc
	}

	var updated model.InventoryItem
	_, err := s.mutate(ctx, listingID, ownedBy(ownerID, func(l *model.Listing) error {
		cat, err := findCategory(l, categoryID)
		if err != nil {
			return err
		}
		i := cat.ItemIndex(itemID)
		if i < 0 {
			return apierror.NotFound("item not found")
		}
		item := &cat.Items[i]

		if upd.Status != nil {
			if !item.IsAvailable() && *upd.Status == model.ItemAvailable {
				return fieldError("status", "a sold item cannot be made available again")
			}
			item.Status = *upd.Status
		}
		if username != "" {
			item.Username = username
		}
		if password != "" {
			item.Password = password
		}
		updated = *item
		return nil
	}))
	if err != nil {
		return nil, err
	}

	view := s.ownerItem(listingID, updated)
	return &view, nil
}

// RemoveItem deletes an item from its category.
func (s *InventoryService) RemoveItem(ctx context.Context, listingID, categoryID, itemID, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	_, err := s.mutate(ctx, listingID, ownedBy(ownerID, func(l *model.Listing) error {
		cat, err := findCategory(l, categoryID)
		if err != nil {
			return err
		}
		i := cat.ItemIndex(itemID)
		if i < 0 {
			return apierror.NotFound("item not found")
		}
		cat.Items = append(cat.Items[:i:i], cat.Items[i+1:]...)
		return nil
	}))
	return err
}

// UpdateListingType changes a listing's type label.
func (s *InventoryService) UpdateListingType(ctx context.Context, listingID, ownerID, listingType string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	if strings.TrimSpace(listingType) == "" {
		return fieldError("type", "type is required")
	}
	_, err := s.mutate(ctx, listingID, ownedBy(ownerID, func(l *model.Listing) error {
		l.Type = listingType
		return nil
	}))
	return err
}

// DeleteListing removes a listing owned by ownerID.
func (s *InventoryService) DeleteListing(ctx context.Context, listingID, ownerID string) error {
	if err := requireOwner(ownerID); err != nil {
		return err
	}
	l, err := s.listings.Get(ctx, listingID)
	if err != nil {
		return translate(err, "listing")
	}
	if err := ownedBy(ownerID, func(*model.Listing) error { return nil })(l); err != nil {
		return err
	}
	if err := s.listings.Delete(ctx, listingID); err != nil {
		return translate(err, "listing")
	}
	s.invalidate(ctx, l)

	s.logger.Info("listing deleted", zap.String("listing_id", listingID), zap.String("owner_id", ownerID))
	return nil
}

// ReserveOldestAvailable marks the first available item of the named
// category as sold and returns its decrypted credential, in one atomic
// listing update. Items whose credential no longer decrypts are skipped and
// logged. It returns nil and writes nothing when the category has no
// deliverable item.
func (s *InventoryService) ReserveOldestAvailable(ctx context.Context, listingID, categoryName string) (*Reservation, error) {
	var (
		res     *Reservation
		skipped []string
	)
	_, err := s.mutate(ctx, listingID, func(l *model.Listing) error {
		res = nil
		skipped = skipped[:0]
		ci := l.CategoryIndexByName(categoryName)
		if ci < 0 {
			return apierror.NotFound("category not found")
		}
		cat := &l.Categories[ci]

		for i := range cat.Items {
			item := &cat.Items[i]
			if !item.IsAvailable() {
				continue
			}
			cred, err := s.vault.DecryptCredential(vault.Credential{Username: item.Username, Password: item.Password})
			if err != nil {
				skipped = append(skipped, item.ID)
				continue
			}
			item.Status = model.ItemSold
			res = &Reservation{ListingID: l.ID, CategoryID: cat.ID, ItemID: item.ID, Credential: cred}
			return nil
		}
		return errNothingAvailable
	})

	for _, id := range skipped {
		s.metrics.Reservation("undecryptable")
		s.logger.Error("skipped undecryptable inventory item",
			zap.String("listing_id", listingID),
			zap.String("category", categoryName),
			zap.String("item_id", id))
	}

	if errors.Is(err, errNothingAvailable) {
		s.metrics.Reservation("out_of_stock")
		return nil, nil
	}
	if err != nil {
		s.metrics.Reservation("error")
		return nil, err
	}
	s.metrics.Reservation("reserved")
	return res, nil
}

// Release puts a reserved item back in stock. It only undoes a reservation
// whose settlement failed, before the credential was handed to anyone.
func (s *InventoryService) Release(ctx context.Context, r *Reservation) error {
	_, err := s.mutate(ctx, r.ListingID, func(l *model.Listing) error {
		cat, err := findCategory(l, r.CategoryID)
		if err != nil {
			return err
		}
		i := cat.ItemIndex(r.ItemID)
		if i < 0 {
			return apierror.NotFound("item not found")
		}
		cat.Items[i].Status = model.ItemAvailable
		return nil
	})
	if err == nil {
		s.metrics.Reservation("released")
	}
	return err
}
