package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
	"github.com/medconsult/medconsult/internal/platform/httpx"
	"github.com/medconsult/medconsult/pkg/pagination"
)

const totalCountHeader = "X-Total-Count"

type Handler struct {
	svc     *Service
	blobs   blobstore.BlobStore
	baseURL string
}

// NewHandler builds the identity handler. baseURL prefixes stored picture
// paths when an absolute URL is requested.
func NewHandler(svc *Service, blobs blobstore.BlobStore, baseURL string) *Handler {
	return &Handler{svc: svc, blobs: blobs, baseURL: baseURL}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Public
	api.POST("/register", h.RegisterPatient)
	api.POST("/login", h.LoginPatient)
	api.POST("/doctors/register", h.RegisterDoctor)
	api.POST("/doctors/login", h.LoginDoctor)
	api.POST("/admin/login", h.LoginAdmin)

	// Any signed-in role
	readGroup := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	readGroup.GET("/doctors", h.ListDoctors)
	readGroup.GET("/doctors/:id", h.GetDoctor)

	// Patient self or admin; ownership is checked in the handler
	patientGroup := api.Group("", auth.RequireRole(auth.RolePatient))
	patientGroup.GET("/patients/:id", h.GetPatient)
	patientGroup.GET("/patients/:id/profilePicture", h.GetProfilePicture)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.PUT("/doctors/:id", h.UpdateDoctor)
	adminGroup.DELETE("/doctors/:id", h.DeleteDoctor)
	adminGroup.GET("/patients", h.ListPatients)
	adminGroup.PUT("/patients/:id", h.UpdatePatient)
	adminGroup.DELETE("/patients/:id", h.DeletePatient)
	adminGroup.GET("/admin/doctors/export", h.ExportDoctors)
	adminGroup.GET("/admin/patients/export", h.ExportPatients)
}

// -- Registration --

type patientRegisterRequest struct {
	Name             string `json:"name"`
	Age              int    `json:"age"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	HistoryOfSurgery string `json:"historyOfSurgery"`
	HistoryOfIllness string `json:"historyOfIllness"`
	Password         string `json:"password"`
}

type doctorRegisterRequest struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Specialty         string `json:"specialty"`
	YearsOfExperience int    `json:"yearsOfExperience"`
	Password          string `json:"password"`
	ProfilePictureURL string `json:"profilePictureURL"`
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in PatientRegistration
	if httpx.IsMultipart(c) {
		age, err := httpx.FormInt(c, "age")
		if err != nil {
			return apperr.HTTP(err)
		}
		in = PatientRegistration{
			Name:             c.FormValue("name"),
			Age:              age,
			Email:            c.FormValue("email"),
			Phone:            c.FormValue("phone"),
			HistoryOfSurgery: c.FormValue("historyOfSurgery"),
			HistoryOfIllness: c.FormValue("historyOfIllness"),
			Password:         c.FormValue("password"),
		}
		if in.ProfilePicture, err = h.savePicture(c); err != nil {
			return apperr.HTTP(err)
		}
	} else {
		var req patientRegisterRequest
		if err := httpx.DecodeJSON(c, &req); err != nil {
			return apperr.HTTP(err)
		}
		in = PatientRegistration{
			Name:             req.Name,
			Age:              req.Age,
			Email:            req.Email,
			Phone:            req.Phone,
			HistoryOfSurgery: req.HistoryOfSurgery,
			HistoryOfIllness: req.HistoryOfIllness,
			Password:         req.Password,
		}
	}

	ctx := c.Request().Context()
	if _, err := h.svc.RegisterPatient(ctx, in); err != nil {
		h.discardPicture(ctx, in.ProfilePicture)
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "Patient registered successfully"})
}

func (h *Handler) RegisterDoctor(c echo.Context) error {
	var in DoctorRegistration
	uploaded := false
	if httpx.IsMultipart(c) {
		years, err := httpx.FormInt(c, "yearsOfExperience")
		if err != nil {
			return apperr.HTTP(err)
		}
		in = DoctorRegistration{
			Name:              c.FormValue("name"),
			Email:             c.FormValue("email"),
			Phone:             c.FormValue("phone"),
			Specialty:         c.FormValue("specialty"),
			YearsOfExperience: years,
			Password:          c.FormValue("password"),
		}
		if in.ProfilePicture, err = h.savePicture(c); err != nil {
			return apperr.HTTP(err)
		}
		uploaded = in.ProfilePicture != ""
		if !uploaded {
			in.ProfilePicture = c.FormValue("profilePictureURL")
		}
	} else {
		var req doctorRegisterRequest
		if err := httpx.DecodeJSON(c, &req); err != nil {
			return apperr.HTTP(err)
		}
		in = DoctorRegistration{
			Name:              req.Name,
			Email:             req.Email,
			Phone:             req.Phone,
			Specialty:         req.Specialty,
			YearsOfExperience: req.YearsOfExperience,
			Password:          req.Password,
			ProfilePicture:    req.ProfilePictureURL,
		}
	}

	ctx := c.Request().Context()
	d, err := h.svc.RegisterDoctor(ctx, in)
	if err != nil {
		if uploaded {
			h.discardPicture(ctx, in.ProfilePicture)
		}
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message": "Doctor added successfully",
		"doctor":  d,
	})
}

// savePicture stores the optional profilePicture file and returns its URL,
// or "" when no file was sent.
func (h *Handler) savePicture(c echo.Context) (string, error) {
	fh, err := c.FormFile("profilePicture")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return "", he
		}
		return "", apperr.Validation("invalid multipart form: %v", err)
	}
	f, err := fh.Open()
	if err != nil {
		return "", apperr.Persistence(fmt.Errorf("open upload: %w", err))
	}
	defer f.Close()

	meta, err := h.blobs.Save(c.Request().Context(), fh.Filename, fh.Header.Get(echo.HeaderContentType), f)
	switch {
	case errors.Is(err, blobstore.ErrFileTooLarge),
		errors.Is(err, blobstore.ErrInvalidContentType),
		errors.Is(err, blobstore.ErrEmptyFile):
		return "", apperr.Validation("profilePicture: %v", err)
	case err != nil:
		return "", apperr.Persistence(err)
	}
	return meta.URL, nil
}

// discardPicture removes a picture saved for a registration that failed.
func (h *Handler) discardPicture(ctx context.Context, url string) {
	if name := blobstore.NameFromURL(url); name != "" {
		_ = h.blobs.Delete(ctx, name)
	}
}

// -- Authentication --

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Doctor    *Summary  `json:"doctor,omitempty"`
	Patient   *Summary  `json:"patient,omitempty"`
	Admin     *Summary  `json:"admin,omitempty"`
}

func newLoginResponse(tok auth.Token) loginResponse {
	return loginResponse{Message: "Login successful", Token: tok.Value, ExpiresAt: tok.ExpiresAt}
}

func (h *Handler) LoginDoctor(c echo.Context) error {
	var req credentials
	if err := httpx.DecodeJSON(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, tok, err := h.svc.LoginDoctor(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTP(err)
	}
	resp := newLoginResponse(tok)
	sum := d.Summary()
	resp.Doctor = &sum
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) LoginPatient(c echo.Context) error {
	var req credentials
	if err := httpx.DecodeJSON(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	p, tok, err := h.svc.LoginPatient(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTP(err)
	}
	resp := newLoginResponse(tok)
	sum := p.Summary()
	resp.Patient = &sum
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) LoginAdmin(c echo.Context) error {
	var req credentials
	if err := httpx.DecodeJSON(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	a, tok, err := h.svc.LoginAdmin(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTP(err)
	}
	resp := newLoginResponse(tok)
	sum := a.Summary()
	resp.Admin = &sum
	return c.JSON(http.StatusOK, resp)
}

// -- Doctor Handlers --

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(totalCountHeader, strconv.Itoa(total))
	return c.JSON(http.StatusOK, doctors)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var u DoctorUpdate
	if err := httpx.DecodeJSON(c, &u); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), id, u)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Doctor deleted successfully"})
}

// -- Patient Handlers --

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	if _, err := auth.RequireSelfOrAdmin(ctx, auth.RolePatient, id); err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetProfilePicture(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	if _, err := auth.RequireSelfOrAdmin(ctx, auth.RolePatient, id); err != nil {
		return apperr.HTTP(err)
	}
	url, err := h.svc.ProfilePictureURL(ctx, id, h.publicBase(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"profilePictureUrl": url})
}

// publicBase falls back to the request's own scheme and host when no
// public base URL is configured.
func (h *Handler) publicBase(c echo.Context) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	return c.Scheme() + "://" + c.Request().Host
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var u PatientUpdate
	if err := httpx.DecodeJSON(c, &u); err != nil {
		return apperr.HTTP(err)
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, u)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := httpx.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}

// -- Exports --

func (h *Handler) ExportDoctors(c echo.Context) error {
	data, err := h.svc.ExportDoctors(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return sendWorkbook(c, "doctors", data)
}

func (h *Handler) ExportPatients(c echo.Context) error {
	data, err := h.svc.ExportPatients(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err)
	}
	return sendWorkbook(c, "patients", data)
}

func sendWorkbook(c echo.Context, name string, data []byte) error {
	filename := fmt.Sprintf("%s_%s.xlsx", name, time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
