// Package registration implements the sign-up form: field input, profile
// picture upload to the image host, and submission to the user backend.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/CorrelAid/registration_uploader/models"
	"github.com/CorrelAid/registration_uploader/operations"
	"github.com/CorrelAid/registration_uploader/validators"
)

const (
	msgUploadFailed   = "Error uploading image. Please try again."
	msgRegistered     = "User registered successfully"
	msgRegisterPrefix = "Registration failed: "
	msgUnknownError   = "Unknown error"
)

type Uploader interface {
	Upload(ctx context.Context, file models.ImageFile) (string, error)
}

type Registrar interface {
	Register(ctx context.Context, payload models.RegisterPayload) error
}

// Store holds form sessions. Update must run fn atomically with respect to
// other updates of the same session.
type Store interface {
	Get(id string) (*models.Session, error)
	Update(id string, fn func(*models.Session) error) (*models.Session, error)
	Delete(id string) error
}

// Service carries the collaborators shared by every form session.
type Service struct {
	Store      Store
	Uploader   Uploader
	Registrar  Registrar
	LoginRoute string
	Logger     *slog.Logger
}

// Form binds one session to the notifier and navigator of the current
// interaction.
type Form struct {
	id        string
	svc       *Service
	notifier  Notifier
	navigator Navigator
	log       *slog.Logger
}

func (s *Service) Form(sessionID string, notifier Notifier, navigator Navigator) *Form {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Form{
		id:        sessionID,
		svc:       s,
		notifier:  notifier,
		navigator: navigator,
		log:       logger.With("session", sessionID),
	}
}

// Result describes what a submit attempt did.
type Result struct {
	Submitted bool   `json:"submitted"`
	Redirect  string `json:"redirect,omitempty"`
}

// Details returns the current session state.
func (f *Form) Details() (*models.Session, error) {
	return f.svc.Store.Get(f.id)
}

// InputChange sets a single named field.
func (f *Form) InputChange(name, value string) error {
	return f.SetFields(map[string]string{name: value})
}

// SetFields sets several fields at once. Nothing is written if any name is
// unknown.
func (f *Form) SetFields(fields map[string]string) error {
	_, err := f.svc.Store.Update(f.id, func(s *models.Session) error {
		for name, value := range fields {
			if err := setField(&s.Form, name, value); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

func setField(form *models.FormDetails, name, value string) error {
	switch name {
	case "firstname":
		form.Firstname = value
	case "lastname":
		form.Lastname = value
	case "email":
		form.Email = value
	case "password":
		form.Password = value
	case "confpassword":
		form.Confpassword = value
	default:
		return fmt.Errorf("%w: %q", models.ErrUnknownField, name)
	}
	return nil
}

// Upload validates the picture and sends it to the image host. On success
// the hosted URL replaces the session's image reference. The loading flag is
// held for the whole call and released on every path.
func (f *Form) Upload(ctx context.Context, file models.ImageFile) error {
	_, err := f.svc.Store.Update(f.id, func(s *models.Session) error {
		if s.Loading {
			return models.ErrBusy
		}
		s.Loading = true
		return nil
	})
	if err != nil {
		return err
	}

	var hostedURL string
	defer func() {
		_, err := f.svc.Store.Update(f.id, func(s *models.Session) error {
			s.Loading = false
			if hostedURL != "" {
				s.ImageURL = hostedURL
			}
			return nil
		})
		if err != nil {
			f.log.Warn("release upload flag", "error", err)
		}
	}()

	if err := validators.ValidateImage(file); err != nil {
		f.fail(err)
		return err
	}

	hostedURL, err = f.svc.Uploader.Upload(ctx, file)
	if err != nil {
		hostedURL = ""
		f.log.Error("upload error", "file", file.Name, "error", err)
		fe := models.NewFormError(
			models.WithKind(models.KindUpload),
			models.WithMessage(msgUploadFailed),
			models.WithCause(err),
		)
		f.fail(fe)
		return fe
	}

	f.log.Info("image uploaded", "file", file.Name, "size", file.Size)
	return nil
}

// Submit validates the fields and posts the registration. It does nothing
// while an upload is running or before a picture has been uploaded.
func (f *Form) Submit(ctx context.Context) (Result, error) {
	s, err := f.svc.Store.Get(f.id)
	if err != nil {
		return Result{}, err
	}

	if s.Loading {
		f.log.Debug("submit ignored: upload in progress")
		return Result{}, nil
	}
	if s.ImageURL == "" {
		f.log.Debug("submit ignored: no picture uploaded")
		return Result{}, nil
	}

	if err := validators.ValidateFormDetails(s.Form); err != nil {
		f.fail(err)
		return Result{}, err
	}

	payload := models.RegisterPayload{
		Firstname: s.Form.Firstname,
		Lastname:  s.Form.Lastname,
		Email:     s.Form.Email,
		Password:  s.Form.Password,
		Pic:       s.ImageURL,
	}

	if err := f.svc.Registrar.Register(ctx, payload); err != nil {
		msg := msgUnknownError
		var status int
		var berr *operations.BackendError
		if errors.As(err, &berr) {
			status = berr.Status
			if berr.Message != "" {
				msg = berr.Message
			}
		}
		f.log.Error("registration error", "status", status, "error", err)

		fe := models.NewFormError(
			models.WithKind(models.KindRegistration),
			models.WithMessage(msgRegisterPrefix+msg),
			models.WithStatus(status),
			models.WithCause(err),
		)
		f.fail(fe)
		return Result{}, fe
	}

	f.notifier.Notify(models.Notification{Kind: models.NotifySuccess, Message: msgRegistered})
	f.navigator.Navigate(f.svc.LoginRoute)

	// Leaving the form discards its state.
	if err := f.svc.Store.Delete(f.id); err != nil {
		f.log.Warn("drop session after registration", "error", err)
	}

	f.log.Info("user registered")
	return Result{Submitted: true, Redirect: f.svc.LoginRoute}, nil
}

func (f *Form) fail(err error) {
	msg := err.Error()
	var fe *models.FormError
	if errors.As(err, &fe) {
		msg = fe.Msg
	}
	f.notifier.Notify(models.Notification{Kind: models.NotifyError, Message: msg})
}
