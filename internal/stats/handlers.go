package stats

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) ClientStats(c *fiber.Ctx) error {
	s, err := CollectClientStats(h.db, time.Now())
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(s)
}

func (h *Handler) SystemStats(c *fiber.Ctx) error {
	s, err := CollectSystemStats(h.db, time.Now())
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(s)
}
