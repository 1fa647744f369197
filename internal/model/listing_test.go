package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory_AvailableCount(t *testing.T) {
	c := Category{Items: []InventoryItem{
		{ID: "1", Status: ItemAvailable},
		{ID: "2", Status: ItemSold},
		{ID: "3"}, // legacy record without status
	}}
	assert.Equal(t, 2, c.AvailableCount())
	assert.Equal(t, 1, c.ItemIndex("2"))
	assert.Equal(t, -1, c.ItemIndex("missing"))
}

func TestListing_Clone(t *testing.T) {
	l := &Listing{
		ID:           "l1",
		DetailImages: []string{"a.png"},
		Categories: []Category{{
			ID:    "c1",
			Name:  "Standard",
			Items: []InventoryItem{{ID: "i1", Status: ItemAvailable}},
		}},
	}

	c := l.Clone()
	c.Categories[0].Items[0].Status = ItemSold
	c.Categories[0].Name = "Changed"
	c.DetailImages[0] = "b.png"

	assert.Equal(t, ItemAvailable, l.Categories[0].Items[0].Status)
	assert.Equal(t, "Standard", l.Categories[0].Name)
	assert.Equal(t, "a.png", l.DetailImages[0])
	assert.Nil(t, (*Listing)(nil).Clone())
}

func TestListing_ToPublic(t *testing.T) {
	l := &Listing{
		ID:   "l1",
		Game: "genshin",
		Categories: []Category{{
			ID:    "c1",
			Name:  "Standard",
			Price: 10000,
			Items: []InventoryItem{
				{ID: "i1", Username: "enc-u", Password: "enc-p", Status: ItemAvailable},
				{ID: "i2", Status: ItemSold},
			},
		}},
	}

	pub := l.ToPublic()
	assert.Equal(t, []PublicCategory{{Name: "Standard", Price: 10000, AvailableCount: 1}}, pub.Categories)
	assert.NotNil(t, pub.DetailImages)
	assert.Equal(t, 0, l.CategoryIndexByName("Standard"))
	assert.Equal(t, -1, l.CategoryIndex("nope"))
}
