package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemsSchemaAcceptsWellFormedResult(t *testing.T) {
	doc := []byte(`{
		"currency": "EUR",
		"items": [
			{"name": "milk", "name_original": "Milch", "quantity": "1",
			 "unit_price": "2.50", "total": "2.50", "category": "groceries",
			 "alternatives": ["household"]}
		]
	}`)
	require.NoError(t, ValidateJSONAgainstSchema(BuildItemsJSONSchema(), doc))
}

func TestItemsSchemaAllowsUnknownCategoryLabels(t *testing.T) {
	// Out-of-set categories are remapped downstream, never rejected here.
	doc := []byte(`{
		"currency": "EUR",
		"items": [
			{"name": "milk", "quantity": "1", "unit_price": "2.50",
			 "total": "2.50", "category": "something brand new"}
		]
	}`)
	require.NoError(t, ValidateJSONAgainstSchema(BuildItemsJSONSchema(), doc))
}

func TestItemsSchemaRejectsNonDecimalAmounts(t *testing.T) {
	doc := []byte(`{
		"currency": "EUR",
		"items": [
			{"name": "milk", "quantity": "one", "unit_price": "2.50",
			 "total": "2.50", "category": "groceries"}
		]
	}`)
	require.Error(t, ValidateJSONAgainstSchema(BuildItemsJSONSchema(), doc))
}

func TestItemsSchemaRejectsMissingFields(t *testing.T) {
	doc := []byte(`{"currency": "EUR", "items": [{"name": "milk"}]}`)
	require.Error(t, ValidateJSONAgainstSchema(BuildItemsJSONSchema(), doc))
}

func TestSummarySchemaEnforcesCategoryEnum(t *testing.T) {
	schema := BuildSummaryJSONSchema([]string{"groceries", "household"})

	good := []byte(`{
		"categories": [{"name": "groceries", "items": [{"name": "milk", "total": "2.50"}]}],
		"total_amount": "2.50",
		"currency": "EUR"
	}`)
	require.NoError(t, ValidateJSONAgainstSchema(schema, good))

	bad := []byte(`{
		"categories": [{"name": "vices", "items": [{"name": "milk", "total": "2.50"}]}],
		"total_amount": "2.50",
		"currency": "EUR"
	}`)
	require.Error(t, ValidateJSONAgainstSchema(schema, bad))
}

func TestSummarySchemaAcceptsEchoedItemIDs(t *testing.T) {
	// The model is told to keep item_id with each item; the schema must not
	// trip over it.
	doc := []byte(`{
		"categories": [{"name": "groceries", "items": [{"item_id": 3, "name": "milk", "total": "2.50"}]}],
		"total_amount": "2.50",
		"currency": "EUR"
	}`)
	require.NoError(t, ValidateJSONAgainstSchema(BuildSummaryJSONSchema(nil), doc))
}
