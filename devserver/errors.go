package devserver

import (
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

func errValidation(fields map[string]string) error {
	return goerrors.New(goerrors.CategoryValidation, "One or more fields are invalid").
		WithCode(fiber.StatusUnprocessableEntity).
		WithMetadata(map[string]any{"field_errors": fields})
}

func errInvalidCredentials() error {
	return goerrors.New(goerrors.CategoryAuth, "Invalid credentials").
		WithCode(fiber.StatusUnauthorized)
}

func errInvalidAuthToken() error {
	return goerrors.New(goerrors.CategoryAuth, "Invalid or expired authentication token").
		WithCode(fiber.StatusUnauthorized)
}

func errBadRequest(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, "Unable to parse request body").
		WithCode(fiber.StatusBadRequest)
}

func errServer(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, "The server encountered a problem").
		WithCode(fiber.StatusInternalServerError)
}
