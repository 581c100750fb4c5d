package tools

import "github.com/nutrilog/nutrilog/internal/ai"

// Name enumerates the supported tools. Dispatch is an exhaustive switch in
// Execute; adding a tool means adding a constant, a schema and a handler.
type Name string

const (
	NameCreateFood      Name = "create_food"
	NameUpdateFood      Name = "update_food"
	NameDeleteFood      Name = "delete_food"
	NameAddFoodEntry    Name = "add_food_entry"
	NameEditFoodEntry   Name = "edit_food_entry"
	NameDeleteFoodEntry Name = "delete_food_entry"
	NameSearchNutrition Name = "search_nutrition"
)

func numberProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Declarations returns the JSON-schema function declarations sent to the
// model alongside every request.
func Declarations() []ai.Tool {
	return []ai.Tool{
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameCreateFood),
				Description: "Create a food in the user's catalog. Nutrition values are per 100g.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":          stringProp("Food name, e.g. 'Apple'"),
						"calories":      numberProp("kcal per 100g"),
						"protein":       numberProp("Protein grams per 100g"),
						"carbs":         numberProp("Carbohydrate grams per 100g"),
						"fat":           numberProp("Fat grams per 100g"),
						"defaultAmount": numberProp("Optional typical portion size in grams"),
					},
					"required": []string{"name", "calories", "protein", "carbs", "fat"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameUpdateFood),
				Description: "Update fields of an existing catalog food. Only supplied fields change.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"foodId":        numberProp("Id of the food to update"),
						"name":          stringProp("New name"),
						"calories":      numberProp("kcal per 100g"),
						"protein":       numberProp("Protein grams per 100g"),
						"carbs":         numberProp("Carbohydrate grams per 100g"),
						"fat":           numberProp("Fat grams per 100g"),
						"defaultAmount": numberProp("Typical portion size in grams"),
					},
					"required": []string{"foodId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameDeleteFood),
				Description: "Delete a food from the user's catalog.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"foodId": numberProp("Id of the food to delete"),
					},
					"required": []string{"foodId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameAddFoodEntry),
				Description: "Log a consumed amount of a catalog food for the current day.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"foodId": numberProp("Id of the catalog food that was eaten"),
						"amount": numberProp("Consumed grams; omit to use the food's default portion"),
					},
					"required": []string{"foodId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameEditFoodEntry),
				Description: "Edit a logged entry: change the consumed grams and/or the underlying food's per-100g nutrition.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"entryId":  numberProp("Id of the log entry to edit"),
						"amount":   numberProp("New consumed grams"),
						"calories": numberProp("New kcal per 100g"),
						"protein":  numberProp("New protein grams per 100g"),
						"carbs":    numberProp("New carbohydrate grams per 100g"),
						"fat":      numberProp("New fat grams per 100g"),
					},
					"required": []string{"entryId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameDeleteFoodEntry),
				Description: "Delete a logged entry.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"entryId": numberProp("Id of the log entry to delete"),
					},
					"required": []string{"entryId"},
				},
			},
		},
		{
			Type: "function",
			Function: ai.ToolFunction{
				Name:        string(NameSearchNutrition),
				Description: "Look up nutrition facts for a food by name. Read-only; use before logging unfamiliar foods.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": stringProp("Food or brand name to search for"),
					},
					"required": []string{"query"},
				},
			},
		},
	}
}
