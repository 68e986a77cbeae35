package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/gateway"
	"github.com/peerloop/peerloop/internal/settings"
)

type SettingsHandler struct {
	store    *settings.Store
	registry *gateway.Registry
}

func NewSettingsHandler(store *settings.Store, registry *gateway.Registry) *SettingsHandler {
	return &SettingsHandler{
		store:    store,
		registry: registry,
	}
}

type settingsResponse struct {
	Version  uint              `json:"version"`
	Settings settings.Settings `json:"settings"`
}

type settingsUpdateRequest struct {
	BaseVersion uint           `json:"baseVersion"`
	Patch       settings.Patch `json:"patch"`
}

func (h *SettingsHandler) GetSettings(ctx *fiber.Ctx) error {
	current, version, err := h.store.ReadCurrent(ctx.Context(), CurrentUserID(ctx))
	if err != nil {
		return writeError(ctx, err)
	}
	return ctx.JSON(NewDataResponse(settingsResponse{Version: version, Settings: current}))
}

func (h *SettingsHandler) PutSettings(ctx *fiber.Ctx) error {
	var req settingsUpdateRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.ErrBadRequest
	}
	userID := CurrentUserID(ctx)
	merged, newVersion, err := h.store.Write(ctx.Context(), userID, req.Patch, req.BaseVersion)
	if err != nil {
		return writeError(ctx, err)
	}
	// Other live sessions of the same user see the change without polling.
	h.registry.PublishToUser(userID, "settings_updated", settingsResponse{
		Version:  newVersion,
		Settings: merged,
	})
	return ctx.JSON(NewDataResponse(settingsResponse{Version: newVersion, Settings: merged}))
}
