package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

func register(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		user, err := timed(c, func(ctx context.Context) (domain.User, error) {
			return svc.Users.Register(ctx, req.Name, req.Email, req.Password)
		})
		if err != nil {
			return writeError(c, "register", err)
		}
		log.WithField("user_id", user.ID).Info("user registered")
		return c.JSON(http.StatusCreated, registerResponse{
			Message: "user registered",
			User:    userPayload{ID: user.ID, Name: user.Name, Email: user.Email},
		})
	}
}

func login(svc Services) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !svc.Users.CanIssueTokens() {
			metricsFrom(c).SetErrorStage("login_disabled")
			return c.JSON(http.StatusNotImplemented, errorResponse{Error: "login is handled by the external identity provider"})
		}
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return writeError(c, "decode", err)
		}
		token, err := timed(c, func(ctx context.Context) (string, error) {
			return svc.Users.Login(ctx, req.Email, req.Password)
		})
		if err != nil {
			return writeError(c, "login", err)
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token})
	}
}
