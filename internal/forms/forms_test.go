package forms

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue(t *testing.T) {
	t.Run("string values", func(t *testing.T) {
		v := String("MHIC-12345")
		s, ok := v.AsString()
		assert.True(t, ok)
		assert.Equal(t, "MHIC-12345", s)
		_, ok = v.AsNumber()
		assert.False(t, ok)
		assert.False(t, v.IsEmpty())
	})

	t.Run("number values", func(t *testing.T) {
		v := Number(5000)
		n, ok := v.AsNumber()
		assert.True(t, ok)
		assert.Equal(t, float64(5000), n)
		_, ok = v.AsString()
		assert.False(t, ok)
	})

	t.Run("zero value is absent", func(t *testing.T) {
		var v Value
		assert.True(t, v.IsEmpty())
		assert.Equal(t, KindAbsent, v.Kind())
	})

	t.Run("empty string is empty", func(t *testing.T) {
		assert.True(t, String("").IsEmpty())
		assert.False(t, Number(0).IsEmpty(), "zero is a real number")
	})
}

func TestFromAny(t *testing.T) {
	t.Run("decoded JSON scalars", func(t *testing.T) {
		assert.Equal(t, String("MHIC-12345"), FromAny("MHIC-12345"))
		assert.Equal(t, Number(5000), FromAny(float64(5000)))
		assert.Equal(t, Number(7), FromAny(7))
		assert.Equal(t, Number(7), FromAny(int64(7)))
	})

	t.Run("unsupported types read as absent", func(t *testing.T) {
		assert.Equal(t, KindAbsent, FromAny(true).Kind())
		assert.Equal(t, KindAbsent, FromAny(nil).Kind())
		assert.Equal(t, KindAbsent, FromAny([]string{"a"}).Kind())
	})
}

func TestData(t *testing.T) {
	data := Data{
		Fields: map[string]Value{
			ValuationField: Number(25000),
			"scope":        String("kitchen remodel"),
		},
		Attachments: map[string]string{"plans": "s3://bucket/plans.pdf"},
	}

	t.Run("field lookup", func(t *testing.T) {
		assert.False(t, data.Field("scope").IsEmpty())
		assert.True(t, data.Field("missing").IsEmpty(), "unknown fields read as absent")
	})

	t.Run("valuation helper", func(t *testing.T) {
		v, ok := data.Valuation()
		assert.True(t, ok)
		assert.Equal(t, float64(25000), v)

		_, ok = Data{}.Valuation()
		assert.False(t, ok)
	})

	t.Run("attachments", func(t *testing.T) {
		assert.True(t, data.HasAttachment("plans"))
		assert.False(t, data.HasAttachment("site_plan"))
		assert.False(t, Data{}.HasAttachment("plans"))
	})
}
