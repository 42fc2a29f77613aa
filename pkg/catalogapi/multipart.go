package catalogapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"
)

// jsonPart is the JSON document sent alongside files.
type jsonPart struct {
	Field string
	Value interface{}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// sendMultipart streams parts through a pipe so large zips are never held in memory.
func (c *Client) sendMultipart(ctx context.Context, method, path string, doc *jsonPart, files []FilePart, out interface{}) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeParts(mw, doc, files))
	}()

	body, err := c.doRequest(ctx, method, path, url.Values(nil), pr, mw.FormDataContentType())
	// Unblock the writer if the request ended before the body was consumed.
	_ = pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		return err
	}
	return decode(body, out)
}

func writeParts(mw *multipart.Writer, doc *jsonPart, files []FilePart) error {
	if doc != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(doc.Field)))
		h.Set("Content-Type", "application/json")
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(doc.Value); err != nil {
			return fmt.Errorf("failed to encode %s part: %w", doc.Field, err)
		}
	}

	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			quoteEscaper.Replace(f.Field), quoteEscaper.Replace(f.Filename)))
		h.Set("Content-Type", contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(w, f.Body); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Filename, err)
		}
	}

	return mw.Close()
}
