package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

const timeoutMessage = "request processing exceeded the allowed time limit"

// RequestTimeout sets a deadline on each request context. The handler runs
// on the request goroutine; when it fails because the deadline passed, the
// client gets 504. A handler that ignores its context runs to completion
// and its own response stands.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return echomw.ContextTimeoutWithConfig(echomw.ContextTimeoutConfig{
		Timeout:      timeout,
		ErrorHandler: timeoutErrorHandler,
	})
}

func timeoutErrorHandler(err error, c echo.Context) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(http.StatusGatewayTimeout, timeoutMessage).SetInternal(err)
	}
	return err
}
