package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nutrilog/nutrilog/internal/food"
)

func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

type createFoodReq struct {
	Name          string   `json:"name" binding:"required"`
	Calories      float64  `json:"calories"`
	Protein       float64  `json:"protein"`
	Carbs         float64  `json:"carbs"`
	Fat           float64  `json:"fat"`
	DefaultAmount *float64 `json:"defaultAmount"`
}

func (h *Handler) CreateFood(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	var req createFoodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	f := &food.Food{
		UserID:        uid,
		Name:          req.Name,
		Calories:      req.Calories,
		Protein:       req.Protein,
		Carbs:         req.Carbs,
		Fat:           req.Fat,
		DefaultAmount: req.DefaultAmount,
	}
	if err := h.Foods.CreateFood(c.Request.Context(), f); err != nil {
		fail(c, http.StatusInternalServerError, 50001, "failed to create food")
		return
	}
	ok(c, f)
}

func (h *Handler) ListFoods(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	foods, err := h.Foods.ListFoods(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50002, "failed to list foods")
		return
	}
	ok(c, gin.H{"foods": foods})
}

type updateFoodReq struct {
	Name          *string  `json:"name"`
	Calories      *float64 `json:"calories"`
	Protein       *float64 `json:"protein"`
	Carbs         *float64 `json:"carbs"`
	Fat           *float64 `json:"fat"`
	DefaultAmount *float64 `json:"defaultAmount"`
}

func (h *Handler) UpdateFood(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}
	id, okk := idParam(c, "id")
	if !okk {
		fail(c, http.StatusBadRequest, 10004, "invalid food id")
		return
	}

	var req updateFoodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	fields := map[string]any{}
	if req.Name != nil {
		fields["name"] = *req.Name
	}
	if req.Calories != nil {
		fields["calories"] = *req.Calories
	}
	if req.Protein != nil {
		fields["protein"] = *req.Protein
	}
	if req.Carbs != nil {
		fields["carbs"] = *req.Carbs
	}
	if req.Fat != nil {
		fields["fat"] = *req.Fat
	}
	if req.DefaultAmount != nil {
		fields["default_amount"] = *req.DefaultAmount
	}
	if len(fields) == 0 {
		fail(c, http.StatusBadRequest, 10005, "no fields to update")
		return
	}

	f, err := h.Foods.UpdateFoodFields(c.Request.Context(), uid, id, fields)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40403, "food not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50003, "failed to update food")
		return
	}
	ok(c, f)
}

func (h *Handler) DeleteFood(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}
	id, okk := idParam(c, "id")
	if !okk {
		fail(c, http.StatusBadRequest, 10004, "invalid food id")
		return
	}

	if err := h.Foods.DeleteFood(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40403, "food not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50004, "failed to delete food")
		return
	}
	ok(c, gin.H{"deleted": id})
}

type createEntryReq struct {
	FoodID uint64  `json:"foodId" binding:"required"`
	Amount float64 `json:"amount" binding:"required"`
	Date   string  `json:"date" binding:"required"`
}

func (h *Handler) CreateEntry(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	var req createEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if !validDate(req.Date) {
		fail(c, http.StatusBadRequest, 10002, "date must be YYYY-MM-DD")
		return
	}

	f, err := h.Foods.GetFood(c.Request.Context(), uid, req.FoodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40403, "food not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50005, "failed to look up food")
		return
	}

	entry := &food.Entry{
		UserID: uid,
		FoodID: f.ID,
		Amount: req.Amount,
		Day:    req.Date,
	}
	if err := h.Foods.CreateEntry(c.Request.Context(), entry); err != nil {
		fail(c, http.StatusInternalServerError, 50006, "failed to create entry")
		return
	}
	entry.Food = *f
	ok(c, entry)
}

func (h *Handler) ListEntries(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}

	day := c.Query("date")
	if day != "" && !validDate(day) {
		fail(c, http.StatusBadRequest, 10002, "date must be YYYY-MM-DD")
		return
	}

	entries, err := h.Foods.ListEntries(c.Request.Context(), uid, day)
	if err != nil {
		fail(c, http.StatusInternalServerError, 50007, "failed to list entries")
		return
	}
	ok(c, gin.H{"entries": entries})
}

func (h *Handler) DeleteEntry(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		unauthorized(c)
		return
	}
	id, okk := idParam(c, "id")
	if !okk {
		fail(c, http.StatusBadRequest, 10004, "invalid entry id")
		return
	}

	if err := h.Foods.DeleteEntry(c.Request.Context(), uid, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			fail(c, http.StatusNotFound, 40404, "entry not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50008, "failed to delete entry")
		return
	}
	ok(c, gin.H{"deleted": id})
}
