package model

import "time"

// ItemStatus is the sale state of a single inventory item.
type ItemStatus string

const (
	ItemAvailable ItemStatus = "available"
	ItemSold      ItemStatus = "sold"
)

// DecryptionPlaceholder replaces a credential that cannot be decrypted in owner views.
const DecryptionPlaceholder = "[decryption failed]"

// InventoryItem is one sellable credential. Username and Password hold vault
// ciphertext, never plaintext.
type InventoryItem struct {
	ID       string     `json:"id" bson:"id"`
	Username string     `json:"username" bson:"username"`
	Password string     `json:"password" bson:"password"`
	Status   ItemStatus `json:"status,omitempty" bson:"status,omitempty"`
}

// IsAvailable reports whether the item can still be sold. Records written
// before statuses existed have no status and count as available.
func (i InventoryItem) IsAvailable() bool {
	return i.Status != ItemSold
}

// Category is a priced group of items inside a listing. Items are kept in
// insertion order and sold oldest first.
type Category struct {
	ID    string          `json:"id" bson:"id"`
	Name  string          `json:"name" bson:"name"`
	Price int64           `json:"price" bson:"price"`
	Items []InventoryItem `json:"items" bson:"items"`
}

// AvailableCount returns the number of unsold items.
func (c Category) AvailableCount() int {
	n := 0
	for _, item := range c.Items {
		if item.IsAvailable() {
			n++
		}
	}
	return n
}

// ItemIndex returns the position of the item with the given id, or -1.
func (c Category) ItemIndex(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// Listing is the aggregate root: it owns its categories and their items and
// is always persisted as a whole. Revision increases by one on every write.
type Listing struct {
	ID           string     `json:"id" bson:"_id"`
	Game         string     `json:"game" bson:"game"`
	Server       string     `json:"server,omitempty" bson:"server,omitempty"`
	Type         string     `json:"type" bson:"type"`
	DisplayImage string     `json:"displayImage" bson:"display_image"`
	DetailImages []string   `json:"detailImages" bson:"detail_images"`
	OwnerID      string     `json:"ownerId,omitempty" bson:"owner_id,omitempty"`
	Categories   []Category `json:"categories" bson:"categories"`
	Revision     int64      `json:"-" bson:"revision"`
	CreatedAt    time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt    time.Time  `json:"updatedAt" bson:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	out := *l
	out.DetailImages = append([]string(nil), l.DetailImages...)
	out.Categories = make([]Category, len(l.Categories))
	for i, c := range l.Categories {
		c.Items = append([]InventoryItem(nil), c.Items...)
		out.Categories[i] = c
	}
	return &out
}

// CategoryIndex returns the position of the category with the given id, or -1.
func (l *Listing) CategoryIndex(categoryID string) int {
	for i, c := range l.Categories {
		if c.ID == categoryID {
			return i
		}
	}
	return -1
}

// CategoryIndexByName returns the position of the first category with the given name, or -1.
func (l *Listing) CategoryIndexByName(name string) int {
	for i, c := range l.Categories {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PublicCategory is what buyers see: no credentials, no sold/total breakdown.
type PublicCategory struct {
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	AvailableCount int    `json:"availableCount"`
}

// PublicListing is the buyer-facing view of a listing.
type PublicListing struct {
	ID           string           `json:"id"`
	Game         string           `json:"game"`
	Server       string           `json:"server,omitempty"`
	Type         string           `json:"type"`
	DisplayImage string           `json:"displayImage"`
	DetailImages []string         `json:"detailImages"`
	Categories   []PublicCategory `json:"categories"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// ToPublic builds the buyer-facing view.
func (l *Listing) ToPublic() PublicListing {
	cats := make([]PublicCategory, 0, len(l.Categories))
	for _, c := range l.Categories {
		cats = append(cats, PublicCategory{
			Name:           c.Name,
			Price:          c.Price,
			AvailableCount: c.AvailableCount(),
		})
	}
	images := l.DetailImages
	if images == nil {
		images = []string{}
	}
	return PublicListing{
		ID:           l.ID,
		Game:         l.Game,
		Server:       l.Server,
		Type:         l.Type,
		DisplayImage: l.DisplayImage,
		DetailImages: images,
		Categories:   cats,
		CreatedAt:    l.CreatedAt,
	}
}

// OwnerItem is an inventory item with decrypted credentials.
type OwnerItem struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Password string     `json:"password"`
	Status   ItemStatus `json:"status"`
}

// OwnerCategory is a category as its owner sees it.
type OwnerCategory struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Price          int64       `json:"price"`
	AvailableCount int         `json:"availableCount"`
	SoldCount      int         `json:"soldCount"`
	Items          []OwnerItem `json:"items"`
}

// OwnerListing is the full, decrypted view of a listing for its owner.
type OwnerListing struct {
	ID           string          `json:"id"`
	Game         string          `json:"game"`
	Server       string          `json:"server,omitempty"`
	Type         string          `json:"type"`
	DisplayImage string          `json:"displayImage"`
	DetailImages []string        `json:"detailImages"`
	Categories   []OwnerCategory `json:"categories"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// OwnerStats summarizes an owner's inventory across all listings.
type OwnerStats struct {
	Listings       int   `json:"listings"`
	Categories     int   `json:"categories"`
	AvailableItems int   `json:"availableItems"`
	SoldItems      int   `json:"soldItems"`
	StockValue     int64 `json:"stockValue"`
	SoldValue      int64 `json:"soldValue"`
}
