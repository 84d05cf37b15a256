package http

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/kiloOhm/kilo-zone/internal/api/service"
	"github.com/kiloOhm/kilo-zone/pkg/capability"
	"github.com/kiloOhm/kilo-zone/pkg/errx"
	"github.com/kiloOhm/kilo-zone/pkg/httpx"
	"github.com/kiloOhm/kilo-zone/pkg/slogx"
)

const (
	// multipartOverhead is allowed on top of the file for boundaries and headers.
	multipartOverhead = 1 << 20
	maxMemory         = 32 << 20
)

type ObjectsHandler struct {
	Objects *service.ObjectService
}

// HandleDownload streams an object.
//
//	@Summary		Download object
//	@Description	Streams the object stored under key. The signature must be a download capability for that key.
//	@Tags			Objects
//	@Produce		octet-stream
//	@Param			key			path	string	true	"Object key"
//	@Param			signature	query	string	true	"Download capability token"
//	@Success		200
//	@Failure		400	{object}	httpx.ErrorBody	"No signature provided"
//	@Failure		401	{object}	httpx.ErrorBody	"Invalid signature"
//	@Failure		403	{object}	httpx.ErrorBody	"Key or type mismatch"
//	@Failure		404	{object}	httpx.ErrorBody	"Object not found"
//	@Router			/objects/{key} [get].
func (h *ObjectsHandler) HandleDownload(w http.ResponseWriter, r *http.Request) error {
	key, sig, err := objectRequest(r)
	if err != nil {
		return err
	}

	obj, err := h.Objects.Download(r.Context(), key, sig)
	if err != nil {
		return err
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.Meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if obj.Meta.ContentDisposition != "" {
		w.Header().Set("Content-Disposition", obj.Meta.ContentDisposition)
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, obj.Body); err != nil {
		slogx.FromContext(r.Context()).Warn("object stream interrupted", "key", key, "err", err)
	}
	return nil
}

// HandleUpload stores the multipart "file" part.
//
//	@Summary		Upload object
//	@Description	Stores the "file" part under key. The signature must be an upload capability for that key.
//	@Tags			Objects
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			key			path		string	true	"Object key"
//	@Param			signature	query		string	true	"Upload capability token"
//	@Param			file		formData	file	true	"File contents"
//	@Success		200			{object}	UploadResponse
//	@Failure		400			{object}	httpx.ErrorBody	"Invalid content type, missing file or file too large"
//	@Failure		401			{object}	httpx.ErrorBody	"Invalid signature"
//	@Failure		403			{object}	httpx.ErrorBody	"Key or type mismatch"
//	@Router			/objects/{key} [post].
func (h *ObjectsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) error {
	key, sig, err := objectRequest(r)
	if err != nil {
		return err
	}
	if err := h.Objects.Authorize(key, sig, capability.OpUpload); err != nil {
		return err
	}

	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/form-data" {
		return errx.BadRequest("Invalid content type, expected multipart/form-data")
	}

	if h.Objects.MaxFileSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.Objects.MaxFileSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errx.BadRequest("File too large")
		}
		return errx.BadRequest("Invalid multipart body").Wrap(err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return errx.BadRequest("No file provided").Wrap(err)
	}
	defer file.Close()

	uploaded, err := h.Objects.Upload(r.Context(), key, sig, service.Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		return err
	}

	httpx.WriteJSON(w, http.StatusOK, UploadResponse{Uploaded: *uploaded})
	return nil
}

// HandleLinks signs upload and download URLs.
//
//	@Summary		Sign object links
//	@Description	Returns short-lived upload and download URLs for key. Requires scope use:pages.
//	@Tags			Objects
//	@Security		BearerAuth
//	@Produce		json
//	@Param			key	path		string	true	"Object key"
//	@Success		200	{object}	service.Links
//	@Failure		401	{object}	httpx.ErrorBody	"Invalid or missing access token"
//	@Failure		403	{object}	httpx.ErrorBody	"Missing scopes"
//	@Router			/v1/objects/{key}/links [post].
func (h *ObjectsHandler) HandleLinks(w http.ResponseWriter, r *http.Request) error {
	key := r.PathValue("key")
	if key == "" {
		return errx.BadRequest("No key provided")
	}
	links, err := h.Objects.Links(key)
	if err != nil {
		return err
	}
	httpx.WriteJSON(w, http.StatusOK, links)
	return nil
}

// HandleDelete removes an object.
//
//	@Summary	Delete object
//	@Tags		Objects
//	@Security	BearerAuth
//	@Param		key	path	string	true	"Object key"
//	@Success	204
//	@Failure	401	{object}	httpx.ErrorBody	"Invalid or missing access token"
//	@Failure	403	{object}	httpx.ErrorBody	"Missing scopes"
//	@Router		/v1/objects/{key} [delete].
func (h *ObjectsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) error {
	key := r.PathValue("key")
	if key == "" {
		return errx.BadRequest("No key provided")
	}
	if err := h.Objects.Remove(r.Context(), key); err != nil {
		return err
	}
	slogx.FromContext(r.Context()).Info("object deleted", "key", key)
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func objectRequest(r *http.Request) (key, signature string, err error) {
	key = r.PathValue("key")
	if key == "" {
		return "", "", errx.BadRequest("No key provided")
	}
	signature = r.URL.Query().Get("signature")
	if signature == "" {
		return "", "", errx.BadRequest("No signature provided")
	}
	return key, signature, nil
}
