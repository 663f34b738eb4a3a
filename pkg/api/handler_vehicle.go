package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// VehicleHandler serves the vehicle reads backing fleet views.
type VehicleHandler struct {
	vehicles VehicleOperations
}

func NewVehicleHandler(vehicles VehicleOperations) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles}
}

func (h *VehicleHandler) Register(g *echo.Group) {
	g.GET("/vehicles", h.List)
	g.GET("/vehicles/:id", h.Get)
}

func (h *VehicleHandler) List(c echo.Context) error {
	if _, err := callerIdentity(c); err != nil {
		return err
	}
	vehicles, err := h.vehicles.List(c.Request().Context())
	if err != nil {
		return mapDomainError(err, CodeVehicleNotFound)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"vehicles": vehicles,
		"count":    len(vehicles),
	})
}

func (h *VehicleHandler) Get(c echo.Context) error {
	if _, err := callerIdentity(c); err != nil {
		return err
	}
	vehicleID := c.Param("id")
	if !validUUID(vehicleID) {
		return apiError(http.StatusNotFound, CodeVehicleNotFound, "Vehicle not found")
	}
	vehicle, err := h.vehicles.Get(c.Request().Context(), vehicleID)
	if err != nil {
		return mapDomainError(err, CodeVehicleNotFound)
	}
	return c.JSON(http.StatusOK, vehicle)
}
