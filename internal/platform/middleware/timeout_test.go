package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/apperr"
)

func TestRequestTimeout_CompletesInTime(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/doctors", nil), rec)

	if err := RequestTimeout(time.Second)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequestTimeout_Exceeded(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/messages/x", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		<-c.Request().Context().Done()
		return apperr.HTTP(apperr.Persistence(fmt.Errorf("query messages: %w", c.Request().Context().Err())))
	}

	err := RequestTimeout(20*time.Millisecond)(handler)(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d", he.Code)
	}
	if he.Message != timeoutMessage {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestRequestTimeout_ExceededRendersOnce(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	e.Use(RequestTimeout(10 * time.Millisecond))
	e.GET("/api/messages/:doctorId", func(c echo.Context) error {
		<-c.Request().Context().Done()
		return c.Request().Context().Err()
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/messages/x", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected a single JSON body, got %q", rec.Body.String())
	}
	if body["message"] != timeoutMessage {
		t.Errorf("unexpected message %q", body["message"])
	}
}

// A handler that ignores its context must not race a timeout response
// onto the same writer; run with -race.
func TestRequestTimeout_SlowHandlerIgnoringContext(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = apperr.ErrorHandler(zerolog.Nop())
	e.Use(RequestTimeout(10 * time.Millisecond))
	e.GET("/api/doctors", func(c echo.Context) error {
		time.Sleep(50 * time.Millisecond)
		return c.JSON(http.StatusOK, map[string]string{"late": "write"})
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/doctors", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected handler's own 200, got %d", rec.Code)
		}
		if n := strings.Count(rec.Body.String(), "\n"); n != 1 {
			t.Errorf("expected exactly one response body, got %q", rec.Body.String())
		}
		if strings.Contains(rec.Body.String(), timeoutMessage) {
			t.Errorf("timeout body written alongside handler body: %q", rec.Body.String())
		}
	}
}

func TestRequestTimeout_SetsDeadline(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected deadline on request context")
		}
		return nil
	}
	RequestTimeout(time.Second)(handler)(c)
}

func TestRequestTimeout_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	boom := errors.New("boom")
	handler := func(c echo.Context) error { return boom }

	if err := RequestTimeout(time.Second)(handler)(c); !errors.Is(err, boom) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRequestTimeout_ClientCancelIsNotTimeout(t *testing.T) {
	e := echo.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx), httptest.NewRecorder())

	handler := func(c echo.Context) error { return c.Request().Context().Err() }

	if err := RequestTimeout(time.Second)(handler)(c); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
