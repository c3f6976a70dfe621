package llm

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/offer-extractor/internal/domain"
)

func TestStripFence(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"offers":[]}`, `{"offers":[]}`},
		{"json fence", "```json\n{\"offers\":[]}\n```", `{"offers":[]}`},
		{"bare fence", "```\n{\"offers\":[]}\n```", `{"offers":[]}`},
		{"uppercase tag", "```JSON\n{\"offers\":[]}\n```", `{"offers":[]}`},
		{"single line", "```json {\"offers\":[]} ```", `{"offers":[]}`},
		{"surrounding whitespace", "\n\n  ```json\n{\"offers\":[]}\n```  \n", `{"offers":[]}`},
		{"missing closing fence", "```json\n{\"offers\":[]}", `{"offers":[]}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFence(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, StripFence(got))
		})
	}
}

func TestParseContentFencedEqualsUnfenced(t *testing.T) {
	payload := `{"offers":[
		{"storeName":"Lidl","productName":"Gouda","brand":"Milbona","quantity":"400 g","price":2.49,"originalPrice":3.29,"offerDateStart":"2025-02-03","offerDateEnd":"2025-02-08"},
		{"storeName":"Lidl","productName":"Bananen","brand":null,"quantity":null,"price":1.11,"originalPrice":null,"offerDateStart":"2025-02-03","offerDateEnd":"2025-02-08"}
	]}`

	plain, err := ParseContent(payload, OfferSchema)
	require.NoError(t, err)
	fenced, err := ParseContent("```json\n"+payload+"\n```", OfferSchema)
	require.NoError(t, err)

	assert.Equal(t, plain, fenced)
	require.Len(t, plain, 2)
	require.NotNil(t, plain[0].Brand)
	assert.Equal(t, "Milbona", *plain[0].Brand)
	require.NotNil(t, plain[0].OriginalPrice)
	assert.Equal(t, 3.29, *plain[0].OriginalPrice)
	assert.Nil(t, plain[1].Brand)
	assert.Nil(t, plain[1].OriginalPrice)
}

func TestParseContentRequiredFields(t *testing.T) {
	base := map[string]any{
		"storeName":      "Aldi",
		"productName":    "Butter",
		"price":          1.99,
		"offerDateStart": "2025-01-01",
		"offerDateEnd":   "2025-01-07",
	}

	for _, field := range OfferSchema.RequiredFields() {
		for _, variant := range []string{"absent", "null", "blank"} {
			t.Run(field+" "+variant, func(t *testing.T) {
				item := make(map[string]any, len(base))
				for k, v := range base {
					item[k] = v
				}
				switch variant {
				case "absent":
					delete(item, field)
				case "null":
					item[field] = nil
				case "blank":
					item[field] = "  "
				}

				body, err := json.Marshal(map[string]any{"offers": []any{item}})
				require.NoError(t, err)

				records, err := ParseContent(string(body), OfferSchema)
				assert.Nil(t, records)
				assert.True(t, domain.IsType(err, domain.ErrorTypeSchemaViolation), "got %v", err)
			})
		}
	}
}

func TestParseContentRepairs(t *testing.T) {
	t.Run("prose around object", func(t *testing.T) {
		records, err := ParseContent("Here are the offers:\n"+aldiButter+"\nLet me know if you need more.", OfferSchema)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("german amounts and dates", func(t *testing.T) {
		content := `{"offers":[{"storeName":"Netto","productName":"Kaffee","price":"4,99 €","originalPrice":"1.299,00","offerDateStart":"03.02.2025","offerDateEnd":"2025-02-08"}]}`
		records, err := ParseContent(content, OfferSchema)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 4.99, records[0].Price)
		require.NotNil(t, records[0].OriginalPrice)
		assert.Equal(t, 1299.0, *records[0].OriginalPrice)
		assert.Equal(t, domain.NewDate(2025, time.February, 3), records[0].OfferDateStart)
	})

	t.Run("empty offers", func(t *testing.T) {
		records, err := ParseContent(`{"offers":[]}`, OfferSchema)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("unparseable date", func(t *testing.T) {
		content := `{"offers":[{"storeName":"Aldi","productName":"Butter","price":1.99,"offerDateStart":"Montag","offerDateEnd":"2025-01-07"}]}`
		_, err := ParseContent(content, OfferSchema)
		assert.True(t, domain.IsType(err, domain.ErrorTypeSchemaViolation))
	})

	t.Run("negative price", func(t *testing.T) {
		content := `{"offers":[{"storeName":"Aldi","productName":"Butter","price":-1,"offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`
		_, err := ParseContent(content, OfferSchema)
		assert.True(t, domain.IsType(err, domain.ErrorTypeSchemaViolation))
	})

	t.Run("quantity text in price", func(t *testing.T) {
		content := `{"offers":[{"storeName":"Lidl","productName":"Joghurt","price":"3 x 1,99 €","offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`
		_, err := ParseContent(content, OfferSchema)
		assert.True(t, domain.IsType(err, domain.ErrorTypeSchemaViolation))
	})

	t.Run("null offers", func(t *testing.T) {
		_, err := ParseContent(`{"offers":null}`, OfferSchema)
		assert.True(t, domain.IsType(err, domain.ErrorTypeMalformedPayload))
	})
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.99", 1.99},
		{"1,99", 1.99},
		{"1,99 €", 1.99},
		{"EUR 12.49", 12.49},
		{"1.299,00", 1299},
		{"statt 3,49", 3.49},
		{"2,- €", 2},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, tt.in)
	}

	for _, bad := range []string{
		"gratis", "-0,79", "",
		"2 für 3,00 €", "3 x 1,99 €", "500 g 2,49", "1.299.00",
	} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestResponseFormatShape(t *testing.T) {
	raw, err := json.Marshal(OfferSchema.ResponseFormat())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	js := doc["json_schema"].(map[string]any)
	schema := js["schema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []any{"offers"}, schema["required"])

	offers := schema["properties"].(map[string]any)["offers"].(map[string]any)
	assert.Equal(t, "array", offers["type"])

	item := offers["items"].(map[string]any)
	assert.Equal(t, false, item["additionalProperties"])
	assert.Len(t, item["required"], 8)

	props := item["properties"].(map[string]any)
	assert.Equal(t, "string", props["storeName"].(map[string]any)["type"])
	assert.Equal(t, "number", props["price"].(map[string]any)["type"])
	assert.Equal(t, []any{"string", "null"}, props["brand"].(map[string]any)["type"])
	assert.Equal(t, []any{"number", "null"}, props["originalPrice"].(map[string]any)["type"])
	assert.Equal(t, "date", props["offerDateEnd"].(map[string]any)["format"])

	assert.ElementsMatch(t,
		[]string{"storeName", "productName", "price", "offerDateStart", "offerDateEnd"},
		OfferSchema.RequiredFields())
}

func TestDocumentValidatesModelAnswers(t *testing.T) {
	resolved, err := OfferSchema.Document().Resolve(nil)
	require.NoError(t, err)

	decode := func(raw string) any {
		var v any
		require.NoError(t, json.Unmarshal([]byte(raw), &v))
		return v
	}

	complete := `{"offers":[{"storeName":"Aldi","productName":"Butter","brand":null,"quantity":"250 g","price":1.99,"originalPrice":null,"offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`
	assert.NoError(t, resolved.Validate(decode(complete)))

	extra := `{"offers":[{"storeName":"Aldi","productName":"Butter","brand":null,"quantity":null,"price":1.99,"originalPrice":null,"offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07","aisle":4}]}`
	assert.Error(t, resolved.Validate(decode(extra)))

	nullPrice := `{"offers":[{"storeName":"Aldi","productName":"Butter","brand":null,"quantity":null,"price":null,"originalPrice":null,"offerDateStart":"2025-01-01","offerDateEnd":"2025-01-07"}]}`
	assert.Error(t, resolved.Validate(decode(nullPrice)))
}
