package graphdb

import (
	"math"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type album struct {
	ID        string    `crud:"pk,property:id,label:Post"`
	Title     string    `crud:"property:title"`
	Price     int64     `crud:"property:price"`
	Views     int       `crud:"property:views"`
	Rating    float64   `crud:"property:rating"`
	Tags      []string  `crud:"property:tags"`
	Cover     *string   `crud:"property:cover"`
	CreatedAt time.Time `crud:"property:createdAt"`
	Ignored   string
}

func TestNormalizeNested(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := map[string]interface{}{
		"seller": neo4j.Node{Props: map[string]interface{}{"id": "s1"}},
		"pics": []interface{}{
			neo4j.Node{Props: map[string]interface{}{"url": "a.jpg"}},
			neo4j.Node{Props: map[string]interface{}{"url": "b.jpg"}},
		},
		"since": neo4j.LocalDateTime(created),
		"edge":  neo4j.Relationship{Props: map[string]interface{}{"amount": int64(500)}},
	}

	out := Normalize(in).(map[string]interface{})

	assert.Equal(t, map[string]interface{}{"id": "s1"}, out["seller"])
	pics := out["pics"].([]interface{})
	require.Len(t, pics, 2)
	assert.Equal(t, "b.jpg", pics[1].(map[string]interface{})["url"])
	assert.IsType(t, time.Time{}, out["since"])
	assert.Equal(t, int64(500), out["edge"].(map[string]interface{})["amount"])
}

func TestDecodeConvertsKinds(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	props := map[string]interface{}{
		"id":        "p1",
		"title":     "Sunset",
		"price":     int64(1299),
		"views":     int64(42),
		"rating":    int64(4),
		"tags":      []interface{}{"beach", "summer"},
		"cover":     "cover.jpg",
		"createdAt": created,
	}

	var a album
	require.NoError(t, Decode(props, &a))

	assert.Equal(t, "p1", a.ID)
	assert.Equal(t, int64(1299), a.Price)
	assert.Equal(t, 42, a.Views)
	assert.Equal(t, 4.0, a.Rating)
	assert.Equal(t, []string{"beach", "summer"}, a.Tags)
	require.NotNil(t, a.Cover)
	assert.Equal(t, "cover.jpg", *a.Cover)
	assert.True(t, created.Equal(a.CreatedAt))
}

func TestDecodeMissingPropertiesLeaveFields(t *testing.T) {
	a := album{Title: "keep"}
	require.NoError(t, Decode(map[string]interface{}{"id": "p1"}, &a))
	assert.Equal(t, "keep", a.Title)
}

func TestDecodeNamesBadField(t *testing.T) {
	var a album
	err := Decode(map[string]interface{}{"views": "many"}, &a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Views")
}

func TestDecodeRejectsLossyFloats(t *testing.T) {
	var a album
	require.NoError(t, Decode(map[string]interface{}{"price": float64(1299), "views": float64(-3)}, &a))
	assert.Equal(t, int64(1299), a.Price)
	assert.Equal(t, -3, a.Views)

	for _, v := range []float64{12.5, 1e19, -1e19, math.Inf(1), math.NaN()} {
		err := Decode(map[string]interface{}{"price": v}, &a)
		require.Error(t, err, "%v", v)
		assert.Contains(t, err.Error(), "Price")
	}
	assert.Equal(t, int64(1299), a.Price)
}

func TestDecodeParsesTimeStrings(t *testing.T) {
	var a album
	require.NoError(t, Decode(map[string]interface{}{"createdAt": "2024-05-01T10:00:00Z"}, &a))
	assert.Equal(t, 2024, a.CreatedAt.Year())
}

func TestValueConvertsIntegers(t *testing.T) {
	res := result([]string{"total"}, []any{int64(7)})

	n, err := Value[int](res, "total")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	f, err := Value[float64](res, "total")
	require.NoError(t, err)
	assert.Equal(t, 7.0, f)
}

func TestValueMissingKeyAndEmptyResult(t *testing.T) {
	_, err := Value[int](result([]string{"total"}, []any{int64(1)}), "count")
	assert.Error(t, err)

	_, err = Value[int](result([]string{"total"}), "total")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanAndScanAll(t *testing.T) {
	res := result([]string{"n"},
		[]any{neo4j.Node{Props: map[string]interface{}{"id": "p1", "title": "One"}}},
		[]any{nil},
		[]any{neo4j.Node{Props: map[string]interface{}{"id": "p2", "title": "Two"}}},
	)

	first, err := Scan[album](res, "n")
	require.NoError(t, err)
	assert.Equal(t, "One", first.Title)

	all, err := ScanAll[album](res, "n")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "p2", all[1].ID)

	_, err = Scan[album](result([]string{"n"}, []any{nil}), "n")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordsNormalizesRows(t *testing.T) {
	res := result([]string{"p", "liked"},
		[]any{neo4j.Node{Props: map[string]interface{}{"id": "p1"}}, true},
	)
	rows := Records(res)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0]["p"].(map[string]interface{})["id"])
	assert.Equal(t, true, rows[0]["liked"])
}

func TestParseTags(t *testing.T) {
	meta, err := parseTags[album]()
	require.NoError(t, err)
	assert.Equal(t, "Post", meta.Label)
	assert.Equal(t, "ID", meta.PKField)
	assert.Equal(t, "id", meta.PKProp)
	assert.NotContains(t, meta.Mappings, "Ignored")

	type twoKeys struct {
		A string `crud:"pk,property:a"`
		B string `crud:"pk,property:b"`
	}
	_, err = parseTags[twoKeys]()
	assert.Error(t, err)

	type noProperty struct {
		A string `crud:"pk"`
	}
	_, err = parseTags[noProperty]()
	assert.Error(t, err)
}

func TestRedactParams(t *testing.T) {
	out := RedactParams(map[string]interface{}{
		"email":        "a@b.c",
		"password":     "hunter2",
		"resetToken":   "abc",
		"clientSecret": "s",
	})
	assert.Equal(t, "a@b.c", out["email"])
	assert.Equal(t, "***", out["password"])
	assert.Equal(t, "***", out["resetToken"])
	assert.Equal(t, "***", out["clientSecret"])
}
