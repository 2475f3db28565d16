package compose

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/stillcast/internal/mediatype"
)

// Request is one conversion: a still image, a soundtrack and a target file.
// Fields are validated in declaration order, so an image problem is always
// reported before an audio or output problem.
type Request struct {
	ImagePath  string `validate:"required,image_ext"`
	AudioPath  string `validate:"required,audio_ext"`
	OutputPath string `validate:"required,output_ext"`
	// Publish uploads the finished video to S3 when storage supports it.
	Publish bool
}

// OutputPathFor returns "<dir>/<audio base name>.mp4".
func OutputPathFor(audioPath, dir string) string {
	base := filepath.Base(audioPath)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".mp4")
}

var fieldKinds = map[string]mediatype.Kind{
	"ImagePath":  mediatype.KindImage,
	"AudioPath":  mediatype.KindAudio,
	"OutputPath": mediatype.KindOutput,
}

// newValidator returns a validator with the media extension tags registered.
func newValidator() *validator.Validate {
	v := validator.New()
	for tag, kind := range map[string]mediatype.Kind{
		"image_ext":  mediatype.KindImage,
		"audio_ext":  mediatype.KindAudio,
		"output_ext": mediatype.KindOutput,
	} {
		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return mediatype.Accepts(kind, fl.Field().String())
		})
	}
	return v
}

// validateRequest maps the first validator failure to a typed error.
func validateRequest(v *validator.Validate, req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	kind := fieldKinds[fe.StructField()]
	if fe.Tag() == "required" {
		return &MissingPathError{Kind: kind}
	}
	return &UnsupportedFormatError{
		Kind:    kind,
		Path:    fe.Value().(string),
		Allowed: mediatype.Allowed(kind),
	}
}
