package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"seshtrack/internal/models"
	"seshtrack/internal/services"
)

// SeshHandler handles HTTP requests for the sesh lifecycle and history
type SeshHandler struct {
	registry *services.LifecycleRegistry
	seshes   *services.SeshService
	sync     *services.SyncService
}

// NewSeshHandler creates a new sesh handler
func NewSeshHandler(registry *services.LifecycleRegistry, seshes *services.SeshService, sync *services.SyncService) *SeshHandler {
	return &SeshHandler{
		registry: registry,
		seshes:   seshes,
		sync:     sync,
	}
}

// identity pulls the authenticated caller out of request locals
func identity(c *fiber.Ctx) (userID, profileID string, ok bool) {
	userID, _ = c.Locals("user_id").(string)
	profileID, _ = c.Locals("profile_id").(string)
	return userID, profileID, userID != ""
}

// Start opens a new sesh for the caller
// POST /api/seshes/start
func (h *SeshHandler) Start(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	var req models.StartSeshRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	sesh, err := h.registry.For(userID, profileID).Start(c.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrRateLimited):
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "You can only make one poop sesh every 5 minutes",
			})
		case errors.Is(err, services.ErrActiveSeshExists):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A poop sesh is already active",
			})
		default:
			log.Printf("❌ Failed to start sesh for user %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "We had trouble starting the poop sesh",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(sesh)
}

// Active returns the caller's open sesh, reconciled with the remote store
// GET /api/seshes/active
func (h *SeshHandler) Active(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	sesh, err := h.registry.For(userID, profileID).Refresh(c.Context())
	if err != nil {
		log.Printf("❌ Failed to fetch active sesh for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble fetching the poop sesh",
		})
	}
	if sesh == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No active poop sesh"})
	}

	return c.JSON(sesh)
}

// Update merges partial fields into the caller's open sesh
// PATCH /api/seshes/active
func (h *SeshHandler) Update(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	var update models.SeshUpdate
	if err := c.BodyParser(&update); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	// Closing happens through the end transition only
	update.Ended = nil

	if err := update.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	ctrl := h.registry.For(userID, profileID)
	if err := ctrl.Update(c.Context(), update); err != nil {
		if errors.Is(err, services.ErrNoActiveSesh) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No active poop sesh"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble updating the poop sesh",
		})
	}

	return c.JSON(ctrl.Active())
}

// End closes the caller's open sesh
// POST /api/seshes/active/end
func (h *SeshHandler) End(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	var final models.SeshUpdate
	if err := c.BodyParser(&final); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := final.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	sesh, err := h.registry.For(userID, profileID).End(c.Context(), final)
	if err != nil {
		if errors.Is(err, services.ErrNoActiveSesh) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No active poop sesh"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble ending the poop sesh",
		})
	}

	return c.JSON(sesh)
}

// Cancel discards the caller's open sesh
// DELETE /api/seshes/active
func (h *SeshHandler) Cancel(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	if err := h.registry.For(userID, profileID).Cancel(c.Context()); err != nil {
		if errors.Is(err, services.ErrNoActiveSesh) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No active poop sesh"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble canceling the poop sesh",
		})
	}

	return c.JSON(fiber.Map{"message": "Poop sesh canceled successfully"})
}

// History lists finished seshes, the caller's own or the public feed
// GET /api/seshes/history?public=true&limit=50
func (h *SeshHandler) History(c *fiber.Ctx) error {
	userID, _, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	public := c.QueryBool("public", false)
	limit := c.QueryInt("limit", 100)

	seshes, err := h.seshes.History(c.Context(), userID, public, limit)
	if err != nil {
		log.Printf("❌ Failed to list seshes for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble loading sesh history",
		})
	}

	return c.JSON(models.SeshHistoryResponse{Seshes: seshes, TotalCount: len(seshes)})
}

// Sync drains the caller's offline queue into the remote store
// POST /api/seshes/sync
func (h *SeshHandler) Sync(c *fiber.Ctx) error {
	userID, profileID, ok := identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Authentication required"})
	}

	result, err := h.sync.SyncAll(c.Context(), userID, profileID)
	if err != nil {
		if errors.Is(err, services.ErrSyncInFlight) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "A sync is already in progress",
			})
		}
		log.Printf("❌ Sync failed for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "We had trouble syncing offline poop seshes",
		})
	}

	return c.JSON(result)
}
