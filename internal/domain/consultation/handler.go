package consultation

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/apperr"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/httpx"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/messages")

	patientGroup := g.Group("", auth.RequireRole(auth.RolePatient))
	patientGroup.POST("/:doctorId", h.SubmitConsultation)
	patientGroup.GET("/replies/patient/:patientId", h.ListRepliesForPatient)

	doctorGroup := g.Group("", auth.RequireRole(auth.RoleDoctor))
	doctorGroup.GET("/:doctorId", h.ListMessagesForDoctor)
	doctorGroup.POST("/reply/:messageId", h.SubmitReply)

	// Ownership is checked by the service.
	readGroup := g.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	readGroup.GET("/reply/:messageId/pdf", h.PrescriptionPDF)
}

type consultationRequest struct {
	PatientID      *uuid.UUID `json:"patientId"`
	IllnessHistory string     `json:"illnessHistory"`
	RecentSurgery  string     `json:"recentSurgery"`
	IsDiabetic     string     `json:"isDiabetic"`
	Allergies      string     `json:"allergies"`
	Others         string     `json:"others"`
}

type replyRequest struct {
	PatientID     *uuid.UUID `json:"patientId"`
	CareToBeTaken string     `json:"careToBeTaken"`
	Medicines     string     `json:"medicines"`
	DoctorID      *uuid.UUID `json:"doctorId"`
	DoctorName    string     `json:"doctorName"`
	ReplyDate     *time.Time `json:"replyDate"`
}

// SubmitConsultation stores a consultation from the signed-in patient. A
// patientId in the body must name that patient.
func (h *Handler) SubmitConsultation(c echo.Context) error {
	doctorID, err := httpx.ParamID(c, "doctorId")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return apperr.HTTP(err)
	}
	if sess.Role != auth.RolePatient {
		return apperr.HTTP(apperr.Forbidden("only patients can submit consultations"))
	}

	var req consultationRequest
	if err := httpx.DecodeJSON(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	if req.PatientID != nil && *req.PatientID != sess.UserID {
		return apperr.HTTP(apperr.Forbidden("patientId does not match the signed-in patient"))
	}

	m, err := h.svc.SubmitConsultation(ctx, doctorID, sess.UserID, Intake{
		IllnessHistory: req.IllnessHistory,
		RecentSurgery:  req.RecentSurgery,
		IsDiabetic:     req.IsDiabetic,
		Allergies:      req.Allergies,
		Others:         req.Others,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":   "Message sent successfully!",
		"messageId": m.ID,
	})
}

func (h *Handler) ListMessagesForDoctor(c echo.Context) error {
	doctorID, err := httpx.ParamID(c, "doctorId")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	if _, err := auth.RequireSelfOrAdmin(ctx, auth.RoleDoctor, doctorID); err != nil {
		return apperr.HTTP(err)
	}

	views, err := h.svc.ListMessagesForDoctor(ctx, doctorID, Status(c.QueryParam("status")))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, views)
}

// SubmitReply answers a message as the signed-in doctor. A doctorId in the
// body must name that doctor.
func (h *Handler) SubmitReply(c echo.Context) error {
	messageID, err := httpx.ParamID(c, "messageId")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return apperr.HTTP(err)
	}
	if sess.Role != auth.RoleDoctor {
		return apperr.HTTP(apperr.Forbidden("only doctors can reply"))
	}

	var req replyRequest
	if err := httpx.DecodeJSON(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	if req.DoctorID != nil && *req.DoctorID != sess.UserID {
		return apperr.HTTP(apperr.Forbidden("doctorId does not match the signed-in doctor"))
	}

	m, err := h.svc.SubmitReply(ctx, sess.UserID, messageID, ReplyInput{
		PatientID:     req.PatientID,
		CareToBeTaken: req.CareToBeTaken,
		Medicines:     req.Medicines,
		DoctorName:    req.DoctorName,
		ReplyDate:     req.ReplyDate,
	})
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Reply sent and saved to patient record successfully",
		"reply":   m.Reply,
	})
}

func (h *Handler) ListRepliesForPatient(c echo.Context) error {
	patientID, err := httpx.ParamID(c, "patientId")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	if _, err := auth.RequireSelfOrAdmin(ctx, auth.RolePatient, patientID); err != nil {
		return apperr.HTTP(err)
	}

	replies, err := h.svc.ListRepliesForPatient(ctx, patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, replies)
}

func (h *Handler) PrescriptionPDF(c echo.Context) error {
	messageID, err := httpx.ParamID(c, "messageId")
	if err != nil {
		return apperr.HTTP(err)
	}
	ctx := c.Request().Context()
	sess, err := auth.RequireSession(ctx)
	if err != nil {
		return apperr.HTTP(err)
	}

	data, err := h.svc.PrescriptionPDF(ctx, sess, messageID)
	if err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "prescription_"+messageID.String()+".pdf"))
	return c.Blob(http.StatusOK, "application/pdf", data)
}
