package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
)

// ValidationDetail describes one rejected input field.
type ValidationDetail struct {
	Type     string `json:"type"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "" {
			tag = fld.Tag.Get("form")
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var sliceIndex = regexp.MustCompile(`\[(\d+)\]`)

// --- Request DTOs ---

type seriesRef struct {
	SeriesID *uint `json:"series_id" validate:"required"`
}

type authorRef struct {
	AuthorID *uint `json:"author_id" validate:"required"`
}

type bookRef struct {
	BookID *uint `json:"book_id" validate:"required"`
}

type bookRequest struct {
	Title       *string        `json:"title" validate:"required"`
	Series      *seriesRef     `json:"series"`
	Authors     []authorRef    `json:"authors" validate:"required,min=1,dive"`
	VolumeNr    *float64       `json:"volume_nr"`
	ReadStatus  bool           `json:"read_status"`
	ReleaseDate *entities.Date `json:"release_date"`
	Synopsis    *string        `json:"synopsis"`
	Cover       *string        `json:"cover"`
}

func (r *bookRequest) input() library.BookInput {
	in := library.BookInput{
		Title:      *r.Title,
		AuthorIDs:  mapSlice(r.Authors, func(a authorRef) uint { return *a.AuthorID }),
		VolumeNr:   r.VolumeNr,
		ReadStatus: r.ReadStatus,
		Synopsis:   r.Synopsis,
		Cover:      r.Cover,
	}
	if r.Series != nil {
		in.SeriesID = r.Series.SeriesID
	}
	if r.ReleaseDate != nil {
		in.ReleaseDate = *r.ReleaseDate
	} else {
		in.ReleaseDate = entities.Today()
	}
	return in
}

type seriesRequest struct {
	Title *string   `json:"title" validate:"required"`
	Books []bookRef `json:"books" validate:"omitempty,dive"`
}

type authorRequest struct {
	FirstName *string   `json:"first_name"`
	LastName  *string   `json:"last_name" validate:"required"`
	Books     []bookRef `json:"books" validate:"omitempty,dive"`
}

func bookIDs(refs []bookRef) []uint {
	return mapSlice(refs, func(b bookRef) uint { return *b.BookID })
}

// --- Binding ---

// bindJSON decodes the request body into dst and validates it. On failure
// it sends a 400 Validation Error envelope and returns false.
func bindJSON(c *gin.Context, dst any) bool {
	details := decodeAndValidate(c, dst)
	if len(details) == 0 {
		return true
	}
	respondAPIError(c, http.StatusBadRequest, "Validation Error", details)
	return false
}

func decodeAndValidate(c *gin.Context, dst any) []ValidationDetail {
	if c.Request.Body == nil {
		return []ValidationDetail{jsonInvalid(errors.New("empty body"))}
	}
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return []ValidationDetail{{
				Type:     typeErr.Type.Kind().String() + "_type",
				Location: jsonPointer(typeErr.Field),
				Message:  fmt.Sprintf("Input should be a valid %s", typeErr.Type.Kind()),
			}}
		}
		return []ValidationDetail{jsonInvalid(err)}
	}

	var details []ValidationDetail
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []ValidationDetail{jsonInvalid(err)}
		}
		for _, fe := range fieldErrs {
			details = append(details, fieldDetail(fe))
		}
	}
	return append(details, emptyListDetails(dst)...)
}

func jsonInvalid(err error) ValidationDetail {
	return ValidationDetail{
		Type:     "json_invalid",
		Location: "body",
		Message:  "Invalid JSON: " + err.Error(),
	}
}

// emptyListDetails rejects book lists that are present but empty.
func emptyListDetails(dst any) []ValidationDetail {
	var books []bookRef
	switch req := dst.(type) {
	case *seriesRequest:
		books = req.Books
	case *authorRequest:
		books = req.Books
	default:
		return nil
	}
	if books != nil && len(books) == 0 {
		return []ValidationDetail{{
			Type:     "too_short",
			Location: "books",
			Message:  "List should have at least 1 item after validation, not 0",
		}}
	}
	return nil
}

func fieldDetail(fe validator.FieldError) ValidationDetail {
	_, location, _ := strings.Cut(fe.Namespace(), ".")
	location = jsonPointer(location)

	switch fe.Tag() {
	case "required":
		return ValidationDetail{Type: "missing", Location: location, Message: "Field required"}
	case "min":
		return ValidationDetail{
			Type:     "too_short",
			Location: location,
			Message:  fmt.Sprintf("List should have at least %s item after validation, not %d", fe.Param(), reflect.ValueOf(fe.Value()).Len()),
		}
	default:
		return ValidationDetail{Type: fe.Tag(), Location: location, Message: fe.Error()}
	}
}

// jsonPointer turns "authors[0].author_id" into "authors/0/author_id".
func jsonPointer(namespace string) string {
	s := sliceIndex.ReplaceAllString(namespace, ".$1")
	return strings.ReplaceAll(s, ".", "/")
}
