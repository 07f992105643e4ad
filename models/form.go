package models

import (
	"io"
)

// FormDetails holds the text fields of the registration form.
type FormDetails struct {
	Firstname    string `json:"firstname" validate:"required,min=3"`
	Lastname     string `json:"lastname" validate:"required,min=3"`
	Email        string `json:"email" validate:"required"`
	Password     string `json:"password" validate:"required,min=5"`
	Confpassword string `json:"confpassword" validate:"required,eqfield=Password"`
}

// Masked returns a copy safe to echo back to a client.
func (f FormDetails) Masked() FormDetails {
	if f.Password != "" {
		f.Password = "********"
	}
	if f.Confpassword != "" {
		f.Confpassword = "********"
	}
	return f
}

// ImageFile is a handle to a locally selected picture.
type ImageFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// RegisterPayload is the body sent to the backend registration endpoint.
type RegisterPayload struct {
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Pic       string `json:"pic"`
}
