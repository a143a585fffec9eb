package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/brightline-electric/servicesite/internal/catalog"
	"github.com/brightline-electric/servicesite/pkg/types"
)

const maxFormMemory = 32 << 20

// serviceForm is the parsed multipart body of the add and update routes.
type serviceForm struct {
	name         *string
	description  *string
	cover        string
	deleteImages []string
	uploads      []catalog.Upload

	closers []io.Closer
	form    *multipart.Form
}

// parseServiceForm reads the request body. URL-encoded bodies are accepted
// too and simply carry no files. Callers must Close the result.
func (s *Server) parseServiceForm(r *http.Request) (*serviceForm, error) {
	memory := int64(maxFormMemory)
	if s.cfg.MaxUploadBytes > 0 && s.cfg.MaxUploadBytes < memory {
		memory = s.cfg.MaxUploadBytes
	}
	if err := r.ParseMultipartForm(memory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &formError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("upload exceeds the %s limit", humanize.IBytes(uint64(tooLarge.Limit))),
			}
		}
		return nil, &formError{status: http.StatusBadRequest, msg: "malformed form body: " + err.Error()}
	}

	f := &serviceForm{
		name:         optionalValue(r, types.FieldName),
		description:  optionalValue(r, types.FieldDescription),
		cover:        strings.TrimSpace(r.PostForm.Get(types.FieldCoverPhoto)),
		deleteImages: nonBlank(slices.Concat(r.PostForm[types.FieldImagesToDelete], r.PostForm[types.FieldImagesToDelete+"[]"])),
		form:         r.MultipartForm,
	}
	if r.MultipartForm == nil {
		return f, nil
	}

	headers := slices.Concat(r.MultipartForm.File[types.FieldImages], r.MultipartForm.File[types.FieldImages+"[]"])
	for _, fh := range headers {
		// Browsers send an empty part when no file was picked.
		if fh.Filename == "" && fh.Size == 0 {
			continue
		}
		file, err := fh.Open()
		if err != nil {
			f.Close()
			return nil, &formError{status: http.StatusBadRequest, msg: fmt.Sprintf("reading upload %q: %v", fh.Filename, err)}
		}
		f.closers = append(f.closers, file)
		f.uploads = append(f.uploads, catalog.Upload{Name: fh.Filename, Content: file})
	}
	return f, nil
}

// Close releases open upload files and multipart temp files.
func (f *serviceForm) Close() {
	for _, c := range f.closers {
		_ = c.Close()
	}
	f.closers = nil
	if f.form != nil {
		_ = f.form.RemoveAll()
	}
}

type formError struct {
	status int
	msg    string
}

func (e *formError) Error() string {
	return e.msg
}

func optionalValue(r *http.Request, key string) *string {
	values, ok := r.PostForm[key]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
