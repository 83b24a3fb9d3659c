package testutil

import (
	"bytes"
	"mime"
	"mime/multipart"
	"testing"
)

// MultipartBody builds a form with one file field, returning the body and
// its content type header.
func MultipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return body, w.FormDataContentType()
}

// FileHeader parses a one-file form so services can be tested without HTTP
func FileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body, contentType := MultipartBody(t, "image", filename, content)
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("Failed to parse content type: %v", err)
	}
	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(32 << 20)
	if err != nil {
		t.Fatalf("Failed to parse multipart form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["image"][0]
}
