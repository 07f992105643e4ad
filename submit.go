package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"github.com/CorrelAid/registration_uploader/models"
	"github.com/CorrelAid/registration_uploader/registration"
	"github.com/spf13/cobra"
)

var errSubmitSkipped = errors.New("registration was not submitted")

func submitCmd(flags *globalFlags) *cobra.Command {
	var (
		form    models.FormDetails
		picture string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Upload a picture and register one user",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := app.conf.Validate(); err != nil {
				return err
			}
			return submitOnce(cmd, app.svc, app.sessions, form, picture)
		},
	}

	cmd.Flags().StringVar(&form.Firstname, "firstname", "", "First name")
	cmd.Flags().StringVar(&form.Lastname, "lastname", "", "Last name")
	cmd.Flags().StringVar(&form.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&form.Password, "password", "", "Password")
	cmd.Flags().StringVar(&form.Confpassword, "confirm", "", "Password confirmation")
	cmd.Flags().StringVar(&picture, "picture", "", "Profile picture (jpeg or png)")
	_ = cmd.MarkFlagRequired("picture")

	return cmd
}

type sessionCreator interface {
	Create() (*models.Session, error)
}

func submitOnce(cmd *cobra.Command, svc *registration.Service, sessions sessionCreator, details models.FormDetails, picture string) error {
	session, err := sessions.Create()
	if err != nil {
		return err
	}

	out := registration.WriterNotifier{W: cmd.OutOrStdout()}
	form := svc.Form(session.ID, out, out)

	if err := form.SetFields(map[string]string{
		"firstname":    details.Firstname,
		"lastname":     details.Lastname,
		"email":        details.Email,
		"password":     details.Password,
		"confpassword": details.Confpassword,
	}); err != nil {
		return err
	}

	file, err := localImage(picture)
	if err != nil {
		return err
	}
	if err := form.Upload(cmd.Context(), file); err != nil {
		return err
	}

	result, err := form.Submit(cmd.Context())
	if err != nil {
		return err
	}
	if !result.Submitted {
		return errSubmitSkipped
	}
	return nil
}

// localImage describes a file on disk the way a browser file input would,
// with the MIME type taken from the extension.
func localImage(path string) (models.ImageFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.ImageFile{}, fmt.Errorf("picture: %w", err)
	}
	if info.IsDir() {
		return models.ImageFile{}, fmt.Errorf("picture: %s is a directory", path)
	}

	return models.ImageFile{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}
