package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// decodeBody strictly decodes a JSON request body of at most maxBodySize bytes.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, maxBodySize+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return fmt.Errorf("%w: unreadable body", domain.ErrInvalidInput)
	}
	if len(data) > maxBodySize {
		return fmt.Errorf("%w: body exceeds %d bytes", domain.ErrInvalidInput, maxBodySize)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
	}

	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
		}
		return fmt.Errorf("%w: invalid body", domain.ErrInvalidInput)
	}
	return nil
}
