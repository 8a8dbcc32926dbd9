package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"planner/internal/api"
)

var uploadFieldNames = map[string]struct{}{
	"images": {},
	"files":  {},
	"file":   {},
}

func (s *Server) handleUploadImages(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if s.uploads == nil {
		s.writeServiceError(w, r, internalError(fmt.Errorf("uploads are not configured")))
		return
	}

	if s.maxRequestBytes > 0 {
		if r.ContentLength > s.maxRequestBytes {
			err := payloadTooLarge(fmt.Errorf("request body exceeds %s limit", humanize.IBytes(uint64(s.maxRequestBytes))))
			s.writeErrorReq(w, r, http.StatusRequestEntityTooLarge, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxRequestBytes)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		payloads   []UploadPayload
		uploadedBy = strings.TrimSpace(r.Header.Get("X-Uploaded-By"))
		err        error
	)
	switch mediaType {
	case "multipart/form-data":
		payloads, err = readMultipartPayloads(r, s.uploads.MaxFileBytes())
		err = classifyMultipartError(err)
	case "application/json":
		var req api.ImageUploadRequest
		if err = json.NewDecoder(r.Body).Decode(&req); err == nil {
			payloads = decodeImagePayloads(req.Images, s.uploads.MaxFileBytes())
			uploadedBy = firstNonEmpty(uploadedBy, req.UploadedBy)
		}
		err = classifyDecodeJSONError(err)
	default:
		err = badRequestCode(fmt.Errorf("unsupported content type %q", mediaType), ErrCodeInvalidArgument)
	}
	if err != nil {
		s.writeErrorReq(w, r, httpStatusFromError(err), err)
		return
	}

	result, err := s.uploads.Upload(r.Context(), taskID, payloads, uploadedBy)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	status, resp := result.Response()
	fields := []any{"task_id", taskID, "stored", len(resp.Files), "failed", len(resp.Errors), "status", status}
	switch {
	case status >= 500:
		s.log().Error("upload failed", fields...)
	case len(resp.Errors) > 0:
		s.log().Warn("upload completed with failures", fields...)
	default:
		s.log().Info("upload completed", fields...)
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.pathTaskIDOrBadRequest(w, r)
	if !ok {
		return
	}

	images, err := s.images.ListImages(r.Context(), taskID)
	if err != nil {
		s.writeServiceError(w, r, internalError(err))
		return
	}
	if images == nil {
		images = []api.ImageDescriptor{}
	}
	s.writeJSON(w, http.StatusOK, api.ImageListResponse{Files: images})
}

// readMultipartPayloads streams the parts of a multipart body. Each file is
// buffered up to maxFileBytes+1 so an oversize part costs no more memory
// than the limit; the rest of it is skipped.
func readMultipartPayloads(r *http.Request, maxFileBytes int64) ([]UploadPayload, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest(err)
	}

	var payloads []UploadPayload
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if _, ok := uploadFieldNames[part.FormName()]; !ok || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		src := io.Reader(part)
		if maxFileBytes > 0 {
			src = io.LimitReader(part, maxFileBytes+1)
		}
		data, err := io.ReadAll(src)
		if err != nil {
			_ = part.Close()
			return nil, err
		}
		payload := UploadPayload{
			Name:      part.FileName(),
			MediaType: part.Header.Get("Content-Type"),
			Data:      data,
		}
		if maxFileBytes > 0 && int64(len(data)) > maxFileBytes {
			payload.Data = nil
			payload.Err = payloadTooLarge(fmt.Errorf("file exceeds %s limit", humanize.IBytes(uint64(maxFileBytes))))
		}
		_ = part.Close()
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

func decodeImagePayloads(images []api.ImageUpload, maxFileBytes int64) []UploadPayload {
	payloads := make([]UploadPayload, 0, len(images))
	for _, image := range images {
		payloads = append(payloads, DecodeImagePayload(image, maxFileBytes))
	}
	return payloads
}

// DecodeImagePayload turns a JSON image descriptor into a payload. Data may
// be plain base64 or a "data:<type>;base64," URL. Oversize content is
// rejected from its encoded length before decoding.
func DecodeImagePayload(image api.ImageUpload, maxFileBytes int64) UploadPayload {
	payload := UploadPayload{Name: strings.TrimSpace(image.Name), MediaType: strings.TrimSpace(image.Type)}

	data := strings.TrimSpace(image.Data)
	if data == "" {
		payload.Err = badRequestCode(fmt.Errorf("image data is required"), ErrCodeMissingRequired)
		return payload
	}
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, encoded, found := strings.Cut(rest, ",")
		if !found {
			payload.Err = badRequestCode(fmt.Errorf("malformed data URL"), ErrCodeInvalidEncoding)
			return payload
		}
		declared, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			payload.Err = badRequestCode(fmt.Errorf("data URL must be base64 encoded"), ErrCodeInvalidEncoding)
			return payload
		}
		if payload.MediaType == "" {
			payload.MediaType = declared
		}
		data = encoded
	}

	if maxFileBytes > 0 && base64DecodedLen(data) > maxFileBytes {
		payload.Err = payloadTooLarge(fmt.Errorf("file exceeds %s limit", humanize.IBytes(uint64(maxFileBytes))))
		return payload
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(data)
	}
	if err != nil {
		payload.Err = badRequestCode(fmt.Errorf("invalid base64 data"), ErrCodeInvalidEncoding)
		return payload
	}
	payload.Data = decoded
	return payload
}

var base64LineBreaks = strings.NewReplacer("\r", "", "\n", "")

// base64DecodedLen is the exact decoded size of canonical base64 input.
// Line breaks are skipped, as the decoder skips them.
func base64DecodedLen(encoded string) int64 {
	trimmed := strings.TrimRight(base64LineBreaks.Replace(encoded), "=")
	return int64(len(trimmed)) * 6 / 8
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return payloadTooLarge(fmt.Errorf("request body exceeds %s limit", humanize.IBytes(uint64(maxBytesErr.Limit))))
	}
	return badRequest(err)
}
