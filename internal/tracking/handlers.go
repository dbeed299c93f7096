package tracking

import (
	"errors"

	"github.com/RUNSTR-LLC/runstr-engine/internal/activity"
	"github.com/RUNSTR-LLC/runstr-engine/internal/recovery"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

type startRequest struct {
	ActivityType activity.Type `json:"activity_type"`
}

type batteryRequest struct {
	Level    int  `json:"level"`
	Charging bool `json:"charging"`
}

type foregroundRequest struct {
	Fixes []activity.Fix `json:"fixes"`
}

// RegisterRoutes exposes the engine to its collaborators: lifecycle calls,
// snapshot polling, fix/battery ingestion and checkpoint recovery.
func RegisterRoutes(r fiber.Router, svc *Service, source *PushSource) {
	r.Post("/sessions", func(c *fiber.Ctx) error {
		var req startRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sess, err := svc.Start(c.Context(), req.ActivityType)
		if err != nil {
			return startError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(sess)
	})

	r.Post("/sessions/pause", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": svc.Pause(c.Context())})
	})

	r.Post("/sessions/resume", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": svc.Resume(c.Context())})
	})

	r.Post("/sessions/stop", func(c *fiber.Ctx) error {
		sess := svc.Stop(c.Context())
		if sess == nil {
			return fiber.NewError(fiber.StatusNotFound, "no active session")
		}
		return c.JSON(sess)
	})

	r.Get("/sessions/current", func(c *fiber.Ctx) error {
		sess := svc.Current()
		if sess == nil {
			return fiber.NewError(fiber.StatusNotFound, "no active session")
		}
		return c.JSON(sess)
	})

	r.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"state":      svc.TrackingState(),
			"gps_signal": svc.GPSSignal(),
		})
	})

	r.Post("/fixes", func(c *fiber.Ctx) error {
		var fix activity.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := source.Push(fix); err != nil {
			return fiber.NewError(fiber.StatusConflict, "no active session")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Get("/profile", func(c *fiber.Ctx) error {
		profile, active := source.Profile()
		if !active {
			return fiber.NewError(fiber.StatusNotFound, "no active session")
		}
		return c.JSON(profile)
	})

	r.Post("/battery", func(c *fiber.Ctx) error {
		var req batteryRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		svc.UpdateBattery(c.Context(), req.Level, req.Charging)
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/background", func(c *fiber.Ctx) error {
		svc.EnterBackground()
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/foreground", func(c *fiber.Ctx) error {
		var req foregroundRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		svc.EnterForeground(c.Context(), req.Fixes)
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/recoverable", func(c *fiber.Ctx) error {
		cps, err := svc.Recoverable(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(cps)
	})

	r.Post("/sessions/:id/recover", func(c *fiber.Ctx) error {
		sess, err := svc.Recover(c.Context(), c.Params("id"))
		if err != nil {
			return recoverError(err)
		}
		return c.JSON(sess)
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		sess, err := svc.Finished(c.Context(), c.Params("id"))
		if errors.Is(err, pgx.ErrNoRows) {
			return fiber.NewError(fiber.StatusNotFound, "unknown session")
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(sess)
	})
}

func startError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidActivity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrSessionActive):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrInitializationFailed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}

func recoverError(err error) error {
	switch {
	case errors.Is(err, ErrRecoveryUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	case errors.Is(err, recovery.ErrNoCheckpoint):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return startError(err)
}
