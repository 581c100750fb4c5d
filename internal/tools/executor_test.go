package tools

import (
	"context"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog/internal/food"
)

type fakeSearcher struct {
	result string
	err    error
	calls  []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string) (string, error) {
	_ = ctx
	s.calls = append(s.calls, query)
	return s.result, s.err
}

func newTestExecutor(t *testing.T) (*Executor, *food.Repo, *fakeSearcher) {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&food.Food{}, &food.Entry{}))

	foods := food.NewRepo(db)
	searcher := &fakeSearcher{result: "Nutrition results for \"oats\" (per 100g):\n- Rolled Oats: 380 kcal, 13.0g protein, 68.0g carbs, 7.0g fat"}
	return NewExecutor(foods, searcher), foods, searcher
}

var execTestUserSeq uint64 = 1000

func nextExecUser() uint64 {
	execTestUserSeq++
	return execTestUserSeq
}

func seedFood(t *testing.T, foods *food.Repo, userID uint64, name string, calories float64, defaultAmount *float64) *food.Food {
	t.Helper()
	f := &food.Food{
		UserID:        userID,
		Name:          name,
		Calories:      calories,
		Protein:       10,
		Carbs:         20,
		Fat:           5,
		DefaultAmount: defaultAmount,
	}
	require.NoError(t, foods.CreateFood(context.Background(), f))
	return f
}

func TestExecuteCreateFood(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()

	out := exec.Execute(context.Background(), NameCreateFood,
		`{"name":"Oatmeal","calories":380,"protein":13,"carbs":68,"fat":7}`, uid, "2025-06-01")

	assert.Contains(t, out.Text, `Successfully created food "Oatmeal"`)
	require.NotNil(t, out.Change)
	assert.NotNil(t, out.Change.UserFoodCreated)
	assert.Nil(t, out.Change.FoodAdded)

	list, err := foods.ListFoods(context.Background(), uid)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Oatmeal", list[0].Name)
	assert.Equal(t, 380.0, list[0].Calories)
}

func TestExecuteCreateFoodRequiresName(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	out := exec.Execute(context.Background(), NameCreateFood, `{"calories":100}`, nextExecUser(), "2025-06-01")

	assert.Contains(t, out.Text, "Error:")
	assert.Nil(t, out.Change)
}

func TestExecuteAddFoodEntry(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()
	f := seedFood(t, foods, uid, "Banana", 89, nil)

	out := exec.Execute(context.Background(), NameAddFoodEntry,
		fmt.Sprintf(`{"foodId":%d,"amount":120}`, f.ID), uid, "2025-06-01")

	assert.Equal(t, "Successfully added 120g of Banana (~107 kcal).", out.Text)
	require.NotNil(t, out.Change)
	assert.NotNil(t, out.Change.FoodAdded)

	entries, err := foods.ListEntries(context.Background(), uid, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 120.0, entries[0].Amount)
}

func TestExecuteAddFoodEntryUnknownFood(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()

	out := exec.Execute(context.Background(), NameAddFoodEntry, `{"foodId":424242,"amount":100}`, uid, "2025-06-01")

	assert.Equal(t, "Error: Food not found.", out.Text)
	assert.Nil(t, out.Change)

	entries, err := foods.ListEntries(context.Background(), uid, "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteAddFoodEntryForeignFoodHidden(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	owner := nextExecUser()
	intruder := nextExecUser()
	f := seedFood(t, foods, owner, "Yogurt", 60, nil)

	out := exec.Execute(context.Background(), NameAddFoodEntry,
		fmt.Sprintf(`{"foodId":%d,"amount":100}`, f.ID), intruder, "2025-06-01")

	assert.Equal(t, "Error: Food not found.", out.Text)
	assert.Nil(t, out.Change)
}

func TestExecuteAddFoodEntryDefaultPortion(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()
	portion := 30.0
	f := seedFood(t, foods, uid, "Granola", 450, &portion)

	out := exec.Execute(context.Background(), NameAddFoodEntry,
		fmt.Sprintf(`{"foodId":%d}`, f.ID), uid, "2025-06-01")

	assert.Equal(t, "Successfully added 30g of Granola (~135 kcal).", out.Text)
	require.NotNil(t, out.Change)
}

func TestExecuteUpdateFoodPartial(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()
	f := seedFood(t, foods, uid, "Bread", 250, nil)

	out := exec.Execute(context.Background(), NameUpdateFood,
		fmt.Sprintf(`{"foodId":%d,"calories":265}`, f.ID), uid, "2025-06-01")

	assert.Contains(t, out.Text, "Successfully updated food")
	require.NotNil(t, out.Change)
	assert.NotNil(t, out.Change.FoodUpdated)

	reloaded, err := foods.GetFood(context.Background(), uid, f.ID)
	require.NoError(t, err)
	assert.Equal(t, 265.0, reloaded.Calories)
	assert.Equal(t, "Bread", reloaded.Name, "untouched fields must survive")
}

func TestExecuteEditFoodEntryAmountAndNutrition(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()
	f := seedFood(t, foods, uid, "Rice", 130, nil)

	add := exec.Execute(context.Background(), NameAddFoodEntry,
		fmt.Sprintf(`{"foodId":%d,"amount":100}`, f.ID), uid, "2025-06-01")
	require.NotNil(t, add.Change)

	entries, err := foods.ListEntries(context.Background(), uid, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out := exec.Execute(context.Background(), NameEditFoodEntry,
		fmt.Sprintf(`{"entryId":%d,"amount":200,"calories":140}`, entries[0].ID), uid, "2025-06-01")

	assert.Contains(t, out.Text, "amount is now 200g")
	assert.Contains(t, out.Text, "nutrition values were changed")
	require.NotNil(t, out.Change)
	assert.NotNil(t, out.Change.FoodUpdated)

	updated, err := foods.GetEntry(context.Background(), uid, entries[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, updated.Amount)
	assert.Equal(t, 140.0, updated.Food.Calories)
}

func TestExecuteEditFoodEntryNotFound(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	out := exec.Execute(context.Background(), NameEditFoodEntry,
		`{"entryId":999999,"amount":50}`, nextExecUser(), "2025-06-01")

	assert.Equal(t, "Error: Food entry not found.", out.Text)
	assert.Nil(t, out.Change)
}

func TestExecuteDeleteFoodEntry(t *testing.T) {
	exec, foods, _ := newTestExecutor(t)
	uid := nextExecUser()
	f := seedFood(t, foods, uid, "Cheese", 400, nil)

	exec.Execute(context.Background(), NameAddFoodEntry,
		fmt.Sprintf(`{"foodId":%d,"amount":50}`, f.ID), uid, "2025-06-01")
	entries, err := foods.ListEntries(context.Background(), uid, "2025-06-01")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	out := exec.Execute(context.Background(), NameDeleteFoodEntry,
		fmt.Sprintf(`{"entryId":%d}`, entries[0].ID), uid, "2025-06-01")

	assert.Contains(t, out.Text, "Successfully deleted entry")
	require.NotNil(t, out.Change)
	assert.NotNil(t, out.Change.FoodDeleted)

	entries, err = foods.ListEntries(context.Background(), uid, "2025-06-01")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecuteSearchNutritionReadOnly(t *testing.T) {
	exec, _, searcher := newTestExecutor(t)

	out := exec.Execute(context.Background(), NameSearchNutrition, `{"query":"oats"}`, nextExecUser(), "2025-06-01")

	assert.Equal(t, searcher.result, out.Text)
	assert.Nil(t, out.Change, "lookups must not emit data changes")
	assert.Equal(t, []string{"oats"}, searcher.calls)
}

func TestExecuteUnknownTool(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	out := exec.Execute(context.Background(), Name("launch_rocket"), `{}`, nextExecUser(), "2025-06-01")

	assert.Contains(t, out.Text, "Error:")
	assert.Contains(t, out.Text, "launch_rocket")
	assert.Nil(t, out.Change)
}

func TestExecuteMalformedArguments(t *testing.T) {
	exec, _, _ := newTestExecutor(t)

	out := exec.Execute(context.Background(), NameAddFoodEntry, `{"foodId":`, nextExecUser(), "2025-06-01")

	assert.Contains(t, out.Text, "Error:")
	assert.Nil(t, out.Change)
}
