package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teamboard/teamboard/internal/models"
	"github.com/teamboard/teamboard/internal/store"
)

type TodoHandler struct {
	store *store.Store
}

func NewTodoHandler(st *store.Store) *TodoHandler {
	return &TodoHandler{store: st}
}

type CreateTodoRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"due_date"`
	Priority    string     `json:"priority" binding:"omitempty,oneof=low medium high"`
	Tags        []string   `json:"tags"`
}

// GetTodos lists the caller's own todos; other users' todos are never
// visible.
func (h *TodoHandler) GetTodos(c *gin.Context) {
	userID := c.GetString("user_id")

	todos, err := h.store.ListTodosForOwner(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch todos"})
		return
	}
	c.JSON(http.StatusOK, todos)
}

func (h *TodoHandler) CreateTodo(c *gin.Context) {
	userID := c.GetString("user_id")

	var req CreateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	todo := &models.Todo{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Completed:   false,
		UserID:      userID,
		Priority:    req.Priority,
		Tags:        req.Tags,
	}
	if todo.Tags == nil {
		todo.Tags = []string{}
	}

	if err := h.store.InsertTodo(todo); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create todo"})
		return
	}

	c.JSON(http.StatusCreated, todo)
}

// PatchTodo merges a partial update into the caller's todo. An id owned
// by a different user resolves to 404 and leaves the target unmodified.
func (h *TodoHandler) PatchTodo(c *gin.Context) {
	userID := c.GetString("user_id")

	var patch store.TodoPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	todo, err := h.store.PatchTodo(userID, c.Param("id"), patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update todo"})
		return
	}

	c.JSON(http.StatusOK, todo)
}

func (h *TodoHandler) DeleteTodo(c *gin.Context) {
	userID := c.GetString("user_id")

	if err := h.store.DeleteTodo(userID, c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "todo not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete todo"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
