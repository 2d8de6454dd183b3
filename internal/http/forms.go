package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
)

// bindForm maps the posted form onto dst and validates it. On failure it
// sends a 400 with the rejected fields and returns false.
func bindForm(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil {
		respondFormErrors(c, []ValidationDetail{{Type: "form_invalid", Location: "body", Message: err.Error()}})
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			respondInternalError(c, err, "validate form")
			return false
		}
		// Forms are flat, embedded forms included.
		respondFormErrors(c, mapSlice(fieldErrs, func(fe validator.FieldError) ValidationDetail {
			detail := fieldDetail(fe)
			detail.Location = fe.Field()
			return detail
		}))
		return false
	}
	return true
}

func respondFormErrors(c *gin.Context, details []ValidationDetail) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Validation Error", Details: details})
}

func respondFormError(c *gin.Context, field, message string) {
	respondFormErrors(c, []ValidationDetail{{Type: "value_error", Location: field, Message: message}})
}

// checked reports whether a checkbox value is set.
func checked(v string) bool {
	switch strings.ToLower(v) {
	case "", "0", "false", "off", "n", "no":
		return false
	}
	return true
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// bookForm is the add and edit form of a book. The cover file is read separately.
type bookForm struct {
	Title       string `form:"title" validate:"required"`
	Authors     []uint `form:"authors" validate:"required,min=1"`
	Series      string `form:"series" validate:"omitempty,number"`
	VolumeNr    string `form:"volume_nr" validate:"omitempty,numeric"`
	ReleaseDate string `form:"release_date" validate:"required,datetime=2006-01-02"`
	Synopsis    string `form:"synopsis"`
	ReadStatus  string `form:"read_status"`
	AddNext     string `form:"add_next"`
}

func (f *bookForm) input() library.BookInput {
	in := library.BookInput{
		Title:      strings.TrimSpace(f.Title),
		AuthorIDs:  f.Authors,
		ReadStatus: checked(f.ReadStatus),
		Synopsis:   optionalString(f.Synopsis),
	}
	if id, err := strconv.ParseUint(f.Series, 10, 32); err == nil && id > 0 {
		seriesID := uint(id)
		in.SeriesID = &seriesID
	}
	if v, err := strconv.ParseFloat(f.VolumeNr, 64); err == nil {
		in.VolumeNr = &v
	}
	// Validated by the datetime tag.
	in.ReleaseDate, _ = entities.ParseDate(f.ReleaseDate)
	return in
}

type seriesForm struct {
	Title   string `form:"title" validate:"required"`
	AddNext string `form:"add_next"`
}

type authorForm struct {
	FirstName string `form:"first_name"`
	LastName  string `form:"last_name" validate:"required"`
	AddNext   string `form:"add_next"`
}

// importForm is the book form of an import confirmation.
type importForm struct {
	bookForm
	CoverURL  string `form:"cover_url" validate:"omitempty,url"`
	ImportURL string `form:"import_url" validate:"required,url"`
}

type previewForm struct {
	ImportURL string `form:"import_url" validate:"required,url"`
}
