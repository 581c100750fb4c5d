// Package tools executes the domain mutations the model requests. Every
// branch folds its own failures into the result text: a broken tool call
// is reported back to the model as a tool result, never as an error that
// escapes into the conversation driver.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog/internal/food"
	"github.com/nutrilog/nutrilog/internal/search"
)

// DataChange describes a catalog/log mutation for data_changed events.
type DataChange struct {
	FoodAdded       any `json:"foodAdded,omitempty"`
	FoodUpdated     any `json:"foodUpdated,omitempty"`
	FoodDeleted     any `json:"foodDeleted,omitempty"`
	UserFoodCreated any `json:"userFoodCreated,omitempty"`
}

// Result is what one tool invocation hands back to the driver. Change is
// nil for read-only tools and for failed calls.
type Result struct {
	Text   string
	Change *DataChange
}

type Executor struct {
	foods    *food.Repo
	searcher search.Searcher
}

func NewExecutor(foods *food.Repo, searcher search.Searcher) *Executor {
	return &Executor{foods: foods, searcher: searcher}
}

func failure(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf("Error: "+format, args...)}
}

// Execute runs one tool call for the given user against the given day.
func (e *Executor) Execute(ctx context.Context, name Name, argsJSON string, userID uint64, day string) Result {
	switch name {
	case NameCreateFood:
		return e.createFood(ctx, argsJSON, userID)
	case NameUpdateFood:
		return e.updateFood(ctx, argsJSON, userID)
	case NameDeleteFood:
		return e.deleteFood(ctx, argsJSON, userID)
	case NameAddFoodEntry:
		return e.addFoodEntry(ctx, argsJSON, userID, day)
	case NameEditFoodEntry:
		return e.editFoodEntry(ctx, argsJSON, userID)
	case NameDeleteFoodEntry:
		return e.deleteFoodEntry(ctx, argsJSON, userID)
	case NameSearchNutrition:
		return e.searchNutrition(ctx, argsJSON)
	default:
		return failure("unknown tool %q.", string(name))
	}
}

type createFoodArgs struct {
	Name          string   `json:"name"`
	Calories      float64  `json:"calories"`
	Protein       float64  `json:"protein"`
	Carbs         float64  `json:"carbs"`
	Fat           float64  `json:"fat"`
	DefaultAmount *float64 `json:"defaultAmount"`
}

func (e *Executor) createFood(ctx context.Context, argsJSON string, userID uint64) Result {
	var args createFoodArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for create_food: %v.", err)
	}
	if args.Name == "" {
		return failure("create_food requires a name.")
	}

	f := &food.Food{
		UserID:        userID,
		Name:          args.Name,
		Calories:      args.Calories,
		Protein:       args.Protein,
		Carbs:         args.Carbs,
		Fat:           args.Fat,
		DefaultAmount: args.DefaultAmount,
	}
	if err := e.foods.CreateFood(ctx, f); err != nil {
		return failure("could not create food: %v.", err)
	}

	return Result{
		Text:   fmt.Sprintf("Successfully created food %q (id %d, %.0f kcal per 100g).", f.Name, f.ID, f.Calories),
		Change: &DataChange{UserFoodCreated: f},
	}
}

type updateFoodArgs struct {
	FoodID        uint64   `json:"foodId"`
	Name          *string  `json:"name"`
	Calories      *float64 `json:"calories"`
	Protein       *float64 `json:"protein"`
	Carbs         *float64 `json:"carbs"`
	Fat           *float64 `json:"fat"`
	DefaultAmount *float64 `json:"defaultAmount"`
}

func (a *updateFoodArgs) fields() map[string]any {
	fields := map[string]any{}
	if a.Name != nil {
		fields["name"] = *a.Name
	}
	if a.Calories != nil {
		fields["calories"] = *a.Calories
	}
	if a.Protein != nil {
		fields["protein"] = *a.Protein
	}
	if a.Carbs != nil {
		fields["carbs"] = *a.Carbs
	}
	if a.Fat != nil {
		fields["fat"] = *a.Fat
	}
	if a.DefaultAmount != nil {
		fields["default_amount"] = *a.DefaultAmount
	}
	return fields
}

func (e *Executor) updateFood(ctx context.Context, argsJSON string, userID uint64) Result {
	var args updateFoodArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for update_food: %v.", err)
	}

	fields := args.fields()
	if len(fields) == 0 {
		return failure("update_food needs at least one field to change.")
	}

	f, err := e.foods.UpdateFoodFields(ctx, userID, args.FoodID, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure("Food not found.")
		}
		return failure("could not update food: %v.", err)
	}

	return Result{
		Text:   fmt.Sprintf("Successfully updated food %q (id %d).", f.Name, f.ID),
		Change: &DataChange{FoodUpdated: f},
	}
}

type deleteFoodArgs struct {
	FoodID uint64 `json:"foodId"`
}

func (e *Executor) deleteFood(ctx context.Context, argsJSON string, userID uint64) Result {
	var args deleteFoodArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for delete_food: %v.", err)
	}

	if err := e.foods.DeleteFood(ctx, userID, args.FoodID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure("Food not found.")
		}
		return failure("could not delete food: %v.", err)
	}

	return Result{
		Text:   fmt.Sprintf("Successfully deleted food %d.", args.FoodID),
		Change: &DataChange{FoodDeleted: args.FoodID},
	}
}

type addFoodEntryArgs struct {
	FoodID uint64  `json:"foodId"`
	Amount float64 `json:"amount"`
}

func (e *Executor) addFoodEntry(ctx context.Context, argsJSON string, userID uint64, day string) Result {
	var args addFoodEntryArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for add_food_entry: %v.", err)
	}

	// Ownership check before insert: a foreign food id must not leak
	// into this user's log.
	f, err := e.foods.GetFood(ctx, userID, args.FoodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure("Food not found.")
		}
		return failure("could not look up food: %v.", err)
	}

	amount := args.Amount
	if amount <= 0 {
		if f.DefaultAmount == nil || *f.DefaultAmount <= 0 {
			return failure("add_food_entry requires an amount; food %q has no default portion.", f.Name)
		}
		amount = *f.DefaultAmount
	}

	entry := &food.Entry{
		UserID: userID,
		FoodID: f.ID,
		Amount: amount,
		Day:    day,
	}
	if err := e.foods.CreateEntry(ctx, entry); err != nil {
		return failure("could not add food entry: %v.", err)
	}
	entry.Food = *f

	kcal := f.Calories * amount / 100
	return Result{
		Text:   fmt.Sprintf("Successfully added %.0fg of %s (~%.0f kcal).", amount, f.Name, kcal),
		Change: &DataChange{FoodAdded: entry},
	}
}

type editFoodEntryArgs struct {
	EntryID  uint64   `json:"entryId"`
	Amount   *float64 `json:"amount"`
	Calories *float64 `json:"calories"`
	Protein  *float64 `json:"protein"`
	Carbs    *float64 `json:"carbs"`
	Fat      *float64 `json:"fat"`
}

func (a *editFoodEntryArgs) nutritionFields() map[string]any {
	fields := map[string]any{}
	if a.Calories != nil {
		fields["calories"] = *a.Calories
	}
	if a.Protein != nil {
		fields["protein"] = *a.Protein
	}
	if a.Carbs != nil {
		fields["carbs"] = *a.Carbs
	}
	if a.Fat != nil {
		fields["fat"] = *a.Fat
	}
	return fields
}

// editFoodEntry changes the consumed amount and/or the underlying food's
// per-100g nutrition, independently.
func (e *Executor) editFoodEntry(ctx context.Context, argsJSON string, userID uint64) Result {
	var args editFoodEntryArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for edit_food_entry: %v.", err)
	}

	entry, err := e.foods.GetEntry(ctx, userID, args.EntryID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure("Food entry not found.")
		}
		return failure("could not look up food entry: %v.", err)
	}

	nutrition := args.nutritionFields()
	if args.Amount == nil && len(nutrition) == 0 {
		return failure("edit_food_entry needs an amount or a nutrition field to change.")
	}

	amountChanged := false
	if args.Amount != nil {
		if err := e.foods.UpdateEntryAmount(ctx, userID, entry.ID, *args.Amount); err != nil {
			return failure("could not update entry amount: %v.", err)
		}
		amountChanged = true
	}

	nutritionChanged := false
	if len(nutrition) > 0 {
		if _, err := e.foods.UpdateFoodFields(ctx, userID, entry.FoodID, nutrition); err != nil {
			return failure("could not update food nutrition: %v.", err)
		}
		nutritionChanged = true
	}

	updated, err := e.foods.GetEntry(ctx, userID, entry.ID)
	if err != nil {
		return failure("could not reload food entry: %v.", err)
	}

	var text string
	switch {
	case amountChanged && nutritionChanged:
		text = fmt.Sprintf("Successfully updated entry %d: amount is now %.0fg and %s nutrition values were changed.",
			updated.ID, updated.Amount, updated.Food.Name)
	case amountChanged:
		text = fmt.Sprintf("Successfully updated entry %d: amount is now %.0fg of %s.",
			updated.ID, updated.Amount, updated.Food.Name)
	default:
		text = fmt.Sprintf("Successfully updated nutrition values of %s for entry %d.",
			updated.Food.Name, updated.ID)
	}

	return Result{
		Text:   text,
		Change: &DataChange{FoodUpdated: updated},
	}
}

type deleteFoodEntryArgs struct {
	EntryID uint64 `json:"entryId"`
}

func (e *Executor) deleteFoodEntry(ctx context.Context, argsJSON string, userID uint64) Result {
	var args deleteFoodEntryArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for delete_food_entry: %v.", err)
	}

	if err := e.foods.DeleteEntry(ctx, userID, args.EntryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return failure("Food entry not found.")
		}
		return failure("could not delete food entry: %v.", err)
	}

	return Result{
		Text:   fmt.Sprintf("Successfully deleted entry %d.", args.EntryID),
		Change: &DataChange{FoodDeleted: args.EntryID},
	}
}

type searchNutritionArgs struct {
	Query string `json:"query"`
}

func (e *Executor) searchNutrition(ctx context.Context, argsJSON string) Result {
	var args searchNutritionArgs
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return failure("invalid arguments for search_nutrition: %v.", err)
	}
	if args.Query == "" {
		return failure("search_nutrition requires a query.")
	}

	out, err := e.searcher.Search(ctx, args.Query)
	if err != nil {
		return failure("nutrition lookup failed: %v.", err)
	}
	return Result{Text: out}
}
