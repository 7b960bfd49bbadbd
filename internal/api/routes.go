package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/tweetscout/tweetscout/api/types"
	"github.com/tweetscout/tweetscout/internal/jobs"
	"github.com/tweetscout/tweetscout/internal/stats"
	"github.com/tweetscout/tweetscout/internal/store"
)

type errorBody struct {
	Error string `json:"error"`
}

// httpStatusFor maps the error taxonomy onto HTTP status codes. Worker
// infrastructure failures surface as gateway errors so callers can tell them
// apart from their own bad input.
func httpStatusFor(err error) int {
	var validationErr *types.ValidationError
	var authErr *types.AuthError
	var unsupported *types.UnsupportedCapabilityError
	var bridgeErr *types.BridgeProcessError
	var upstream *types.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &unsupported):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &bridgeErr):
		if bridgeErr.Kind == types.BridgeErrorTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func jsonError(c echo.Context, err error) error {
	return c.JSON(httpStatusFor(err), errorBody{Error: err.Error()})
}

// invoke runs one operation to completion. The request blocks until the
// operation finishes or times out.
func invoke(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		job := types.Job{}
		if err := c.Bind(&job); err != nil {
			return err
		}
		job.UUID = uuid.New().String()

		result, err := enhanced.ExecuteJob(c.Request().Context(), job)
		if err != nil {
			logrus.WithError(err).WithField("job_uuid", job.UUID).Debugf("Operation %s failed", job.Type)
			return jsonError(c, err)
		}
		result.UUID = job.UUID
		return c.JSON(http.StatusOK, result)
	}
}

// setCredential validates and stores a user credential for the identity.
func setCredential(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		var body struct {
			ApiKey string `json:"api_key"`
		}
		if err := c.Bind(&body); err != nil {
			return err
		}

		username := c.Param("username")
		if err := enhanced.Auth().SetApiKey(c.Request().Context(), username, body.ApiKey); err != nil {
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "credential stored", "username": username})
	}
}

func removeCredential(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		username := c.Param("username")
		if err := enhanced.Auth().RemoveApiKey(c.Request().Context(), username); err != nil {
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "credential removed", "username": username})
	}
}

func invalidateGuest(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		username := c.Param("username")
		if err := enhanced.Auth().InvalidateGuest(c.Request().Context(), username); err != nil {
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "guest key invalidated", "username": username})
	}
}

func getCapabilities(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		caps, err := enhanced.GetEnhancedCapabilities(c.Request().Context(), c.Param("username"))
		if err != nil {
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, caps)
	}
}

// validateAll re-probes every stored user credential and reports the sweep.
func validateAll(enhanced *jobs.EnhancedAPI) func(c echo.Context) error {
	return func(c echo.Context) error {
		results, err := enhanced.Auth().ValidateAll(c.Request().Context())
		if err != nil {
			return jsonError(c, err)
		}

		valid := 0
		for _, r := range results {
			if r.Valid {
				valid++
			}
		}
		return c.JSON(http.StatusOK, map[string]any{
			"checked": len(results),
			"valid":   valid,
			"invalid": len(results) - valid,
			"results": results,
		})
	}
}

func statsHandler(collector *stats.StatsCollector) func(c echo.Context) error {
	return func(c echo.Context) error {
		if collector == nil {
			return c.JSON(http.StatusOK, map[string]any{})
		}
		data, err := collector.Json()
		if err != nil {
			return jsonError(c, err)
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}
