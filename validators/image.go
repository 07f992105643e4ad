package validators

import (
	"github.com/CorrelAid/registration_uploader/models"
)

const (
	MaxImageSize = 5 * 1024 * 1024 // 5 MiB

	RuleImageType = "image_type"
	RuleImageSize = "image_size"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidateImage accepts jpeg and png files up to MaxImageSize bytes.
func ValidateImage(file models.ImageFile) error {
	if !allowedImageTypes[file.ContentType] {
		return models.NewFormError(
			models.WithKind(models.KindUpload),
			models.WithRule(RuleImageType),
			models.WithMessage("Please select an image in jpeg or png format"),
		)
	}

	if file.Size > MaxImageSize {
		return models.NewFormError(
			models.WithKind(models.KindUpload),
			models.WithRule(RuleImageSize),
			models.WithMessage("File size must be less than 5MB"),
		)
	}

	return nil
}
