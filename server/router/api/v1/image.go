package v1

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// thumbnailMaxSize bounds thumbnail dimensions in pixels.
const thumbnailMaxSize = 512

// GetImage streams a stored image by ref: room photos, styled outputs and
// region crops all live in the same store. ?thumbnail=true serves a
// downscaled variant rendered under the store's concurrency bound. Refs are
// immutable, so responses cache aggressively.
func (s *APIV1Service) GetImage(c echo.Context) error {
	ref := c.Param("ref")

	path, err := s.Images.Path(ref)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := s.Images.Stat(ref); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("image %s not found", ref))
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=31536000, immutable")

	if c.QueryParam("thumbnail") == "true" {
		data, err := s.Images.Thumbnail(c.Request().Context(), ref, thumbnailMaxSize)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render thumbnail").SetInternal(err)
		}
		return c.Blob(http.StatusOK, http.DetectContentType(data), data)
	}

	return c.File(path)
}
