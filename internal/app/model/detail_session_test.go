package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeQuantities_KeepsResponseOrder(t *testing.T) {
	var resp SizesByColorResponse
	payload := `{"detailId": 42, "price": 19000, "quantity": 9, "activeColor": "red",
		"mapSizeToQuantity": {"S": 5, "M": 2, "XL": 0}, "images": ["a.png"]}`
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))

	first, ok := resp.MapSizeToQuantity.First()
	require.True(t, ok)
	assert.Equal(t, "S", first.Size)
	assert.Equal(t, 5, first.Quantity)
	assert.Equal(t, []string{"S", "M", "XL"}, resp.MapSizeToQuantity.Sizes())

	q, ok := resp.MapSizeToQuantity.Get("M")
	assert.True(t, ok)
	assert.Equal(t, 2, q)
	assert.Equal(t, "19000.00", resp.Price.String())
}

func TestSizeQuantities_OrderIsNotAlphabetical(t *testing.T) {
	var m SizeQuantities
	require.NoError(t, json.Unmarshal([]byte(`{"XL": 1, "A": 2}`), &m))
	assert.Equal(t, "XL", m[0].Size)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"XL":1,"A":2}`, string(b))
}

func TestSizeQuantities_EmptyAndNull(t *testing.T) {
	var m SizeQuantities
	require.NoError(t, json.Unmarshal([]byte(`{}`), &m))
	_, ok := m.First()
	assert.False(t, ok)

	require.NoError(t, json.Unmarshal([]byte(`null`), &m))
	assert.Nil(t, m)

	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &m))
}

func TestDetailSession_Clone(t *testing.T) {
	s := &DetailSession{Images: []string{"a"}, Grid: SparseGrid{}}
	s.Grid.Set(1, 2, GridCell{Quantity: 3})

	c := s.Clone()
	c.Images[0] = "b"
	c.Grid.Set(1, 3, GridCell{})

	assert.Equal(t, "a", s.Images[0])
	assert.Len(t, s.Grid, 1)
}

func TestSparseGrid_JSON(t *testing.T) {
	g := SparseGrid{}
	g.Set(2, 1, GridCell{Price: NewMoney(5), Quantity: 1})
	g.Set(1, 1, GridCell{Price: NewMoney(7), Quantity: 2})

	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"colorId":1,"sizeId":1,"price":7,"quantity":2},{"colorId":2,"sizeId":1,"price":5,"quantity":1}]`, string(b))

	var back SparseGrid
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Has(1, 1))
	assert.True(t, back.Has(2, 1))
}

func TestVocabulary_Lookups(t *testing.T) {
	parent := uint(1)
	v := Vocabulary{
		Colors: []VariantColor{{ID: 3, Name: "Red"}},
		Sizes:  []VariantSize{{ID: 8, Code: "M", Label: "Medium"}},
		Categories: []Category{{ID: 1, Name: "Tops", Children: []Category{
			{ID: 2, Name: "Shirts", ParentID: &parent},
		}}},
	}

	c, ok := v.ColorByName(" red ")
	assert.True(t, ok)
	assert.Equal(t, uint(3), c.ID)

	_, ok = v.ColorByName("teal")
	assert.False(t, ok)

	s, ok := v.SizeByName("medium")
	assert.True(t, ok)
	assert.Equal(t, uint(8), s.ID)

	paths := v.CategoryPaths()
	require.Len(t, paths, 2)
	assert.Equal(t, "Tops > Shirts", paths[1].Path)
	assert.True(t, paths[1].Leaf)
	assert.False(t, paths[0].Leaf)
}
