package http

import (
	"errors"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/apperr"
	"github.com/fjod/storefront/internal/media"
)

const multipartMemory = 8 << 20

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.InvalidInput("request body too large")
		}
		return apperr.InvalidInput("invalid multipart form")
	}
	return nil
}

// formFiles opens every file sent under field. The returned func closes them.
func formFiles(r *http.Request, field string) ([]media.File, func(), error) {
	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File[field]
	}

	files := make([]media.File, 0, len(headers))
	var opened []multipart.File
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, apperr.InvalidInput("could not read " + field)
		}
		opened = append(opened, f)
		files = append(files, media.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return files, closeAll, nil
}

// formString returns the value of field, or nil when the form omits it.
func formString(r *http.Request, field string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	values, ok := r.MultipartForm.Value[field]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

// formFile is formFiles for a single optional file.
func formFile(r *http.Request, field string) (*media.File, func(), error) {
	files, closeAll, err := formFiles(r, field)
	if err != nil || len(files) == 0 {
		return nil, closeAll, err
	}
	return &files[0], closeAll, nil
}

func parseFloat(field, value string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, apperr.InvalidInput(field + " must be a number")
	}
	return f, nil
}

func parseInt(field, value string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, apperr.InvalidInput(field + " must be an integer")
	}
	return n, nil
}

func optionalFloat(field, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	f, err := parseFloat(field, value)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func optionalInt(field, value string) (int, error) {
	if value == "" {
		return 0, nil
	}
	return parseInt(field, value)
}
