package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/CorrelAid/registration_uploader/metrics"
	"github.com/CorrelAid/registration_uploader/middleware"
	"github.com/CorrelAid/registration_uploader/models"
	"github.com/CorrelAid/registration_uploader/registration"
	"github.com/CorrelAid/registration_uploader/validators"
	"github.com/gin-gonic/gin"
)

const (
	loginLinkPath   = "/register/login"
	turnstileField  = "cf-turnstile-response"
	turnstileHeader = "CF-Turnstile-Response"
	statusOK        = "ok"
	statusSkipped   = "skipped"
	statusFailed    = "error"
)

// Response is the body of every form mutation.
type Response struct {
	Status        string                `json:"status"`
	Notifications []models.Notification `json:"notifications"`
	Redirect      string                `json:"redirect,omitempty"`
}

// FormView is the client-visible state of a form session.
type FormView struct {
	Form      models.FormDetails `json:"form"`
	ImageURL  string             `json:"image_url"`
	Loading   bool               `json:"loading"`
	LoginLink string             `json:"login_url"`
}

type Handler struct {
	svc       *registration.Service
	turnstile *validators.TurnstileValidator
	metrics   *metrics.Metrics
	cookie    string
	loginURL  string
}

func NewHandler(svc *registration.Service, turnstile *validators.TurnstileValidator, m *metrics.Metrics, cookie, loginURL string) *Handler {
	return &Handler{
		svc:       svc,
		turnstile: turnstile,
		metrics:   m,
		cookie:    cookie,
		loginURL:  loginURL,
	}
}

func (h *Handler) form(c *gin.Context) (*registration.Form, *registration.Recorder) {
	rec := &registration.Recorder{}
	return h.svc.Form(c.GetString(middleware.SessionKey), rec, rec), rec
}

func (h *Handler) Show(c *gin.Context) {
	form, _ := h.form(c)
	session, err := form.Details()
	if err != nil {
		slog.Error("load form", "error", err)
		c.JSON(http.StatusInternalServerError, Response{Status: statusFailed, Notifications: []models.Notification{}})
		return
	}

	c.JSON(http.StatusOK, FormView{
		Form:      session.Form.Masked(),
		ImageURL:  session.ImageURL,
		Loading:   session.Loading,
		LoginLink: loginLinkPath,
	})
}

func (h *Handler) Fields(c *gin.Context) {
	var fields map[string]string
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Status:        statusFailed,
			Notifications: []models.Notification{{Kind: models.NotifyError, Message: "Invalid form data"}},
		})
		return
	}

	form, _ := h.form(c)
	if err := form.SetFields(fields); err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, Response{Status: statusOK, Notifications: []models.Notification{}})
}

func (h *Handler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Status:        statusFailed,
			Notifications: []models.Notification{{Kind: models.NotifyError, Message: "Please select a file to upload"}},
		})
		return
	}

	file := models.ImageFile{
		Name:        fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Open: func() (io.ReadCloser, error) {
			return fileHeader.Open()
		},
	}

	form, rec := h.form(c)
	err = form.Upload(c.Request.Context(), file)
	h.metrics.ObserveUpload(err)
	if err != nil {
		h.respondError(c, err, rec)
		return
	}

	c.JSON(http.StatusOK, Response{Status: statusOK, Notifications: rec.Notifications()})
}

func (h *Handler) Submit(c *gin.Context) {
	if h.turnstile != nil {
		token := c.GetHeader(turnstileHeader)
		if token == "" {
			token = c.PostForm(turnstileField)
		}
		if err := h.turnstile.Validate(c.Request.Context(), token, c.ClientIP()); err != nil {
			status := http.StatusForbidden
			if errors.Is(err, validators.ErrTokenCheck) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, Response{
				Status:        statusFailed,
				Notifications: []models.Notification{{Kind: models.NotifyError, Message: "Bot check failed, please try again"}},
			})
			return
		}
	}

	form, rec := h.form(c)
	result, err := form.Submit(c.Request.Context())
	h.metrics.ObserveSubmit(result.Submitted, err)
	if err != nil {
		h.respondError(c, err, rec)
		return
	}

	if !result.Submitted {
		c.JSON(http.StatusOK, Response{Status: statusSkipped, Notifications: rec.Notifications()})
		return
	}

	// The session is gone once the user is sent to the login page.
	c.SetCookie(h.cookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, Response{
		Status:        statusOK,
		Notifications: rec.Notifications(),
		Redirect:      rec.Redirect(),
	})
}

// Login is the manual "already a user?" link.
func (h *Handler) Login(c *gin.Context) {
	c.Redirect(http.StatusFound, h.loginURL)
}

func (h *Handler) respondError(c *gin.Context, err error, rec *registration.Recorder) {
	notifications := []models.Notification{}
	if rec != nil {
		notifications = rec.Notifications()
	}

	status := http.StatusInternalServerError
	var fe *models.FormError
	switch {
	case errors.Is(err, models.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, models.ErrUnknownField):
		status = http.StatusBadRequest
		notifications = append(notifications, models.Notification{Kind: models.NotifyError, Message: err.Error()})
	case errors.Is(err, models.ErrSessionNotFound):
		status = http.StatusGone
	case errors.As(err, &fe):
		status = formErrorStatus(fe)
	default:
		slog.Error("form action failed", "path", c.FullPath(), "error", err)
	}

	c.JSON(status, Response{Status: statusFailed, Notifications: notifications})
}

func formErrorStatus(fe *models.FormError) int {
	switch fe.Kind {
	case models.KindValidation:
		return http.StatusUnprocessableEntity
	case models.KindUpload:
		switch fe.Rule {
		case validators.RuleImageType:
			return http.StatusUnsupportedMediaType
		case validators.RuleImageSize:
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusBadGateway
	case models.KindRegistration:
		if fe.Status >= 400 && fe.Status < 500 {
			return fe.Status
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
