package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"streamgate/internal/stream"
)

// exposedUploadHeaders is the exact Access-Control-Expose-Headers value the
// upload endpoint always returns so browser clients can read the negotiation
// result.
const exposedUploadHeaders = "Location, Tus-Resumable, stream-media-id"

const creatorIDHeader = "X-Creator-Id"

// UploadURL negotiates a direct upload with the streaming backend. The
// response carries the upload instructions in headers and no body.
func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST", r.Method)
		return
	}
	if !h.featureEnabled(r) {
		writeErrors(w, http.StatusNotFound, "not found")
		return
	}

	req := stream.UploadRequest{
		UploadLength:      r.Header.Get(stream.HeaderUploadLength),
		UploadDeferLength: r.Header.Get(stream.HeaderUploadDeferLength),
		UploadMetadata:    r.Header.Get(stream.HeaderUploadMetadata),
		ProtocolVersion:   r.Header.Get(stream.HeaderTusResumable),
	}
	if raw := strings.TrimSpace(r.Header.Get(creatorIDHeader)); raw != "" {
		creator, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErrors(w, http.StatusUnprocessableEntity, "creator id must be an integer")
			return
		}
		req.CreatorID = &creator
	}

	start := time.Now()
	details, err := h.Gateway.Negotiate(r.Context(), req)
	h.recorder().ObserveUpstream("direct_upload", time.Since(start))
	if err != nil {
		h.recorder().ObserveNegotiation(outcomeForError(err))
		h.writeGatewayError(w, r, err)
		return
	}
	h.recorder().ObserveNegotiation("success")

	w.Header().Set("Location", details.UploadURL)
	w.Header().Set(stream.HeaderTusResumable, details.ProtocolVersion)
	if details.StreamMediaID != "" {
		w.Header().Set(stream.HeaderStreamMediaID, details.StreamMediaID)
	}
	w.Header().Set("Access-Control-Expose-Headers", exposedUploadHeaders)
	w.WriteHeader(http.StatusCreated)
}

type createLiveStreamRequest struct {
	Name string `json:"name"`
}

type liveStreamResponse struct {
	UID            string `json:"uid"`
	RtmpsURL       string `json:"rtmps_url,omitempty"`
	RtmpsStreamKey string `json:"rtmps_stream_key,omitempty"`
	Created        string `json:"created,omitempty"`
}

// CreateLiveStream provisions a live input and returns its connection
// credentials.
func (h *Handler) CreateLiveStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, "POST", r.Method)
		return
	}
	if !h.featureEnabled(r) {
		writeErrors(w, http.StatusNotFound, "not found")
		return
	}

	name, ok := h.liveStreamName(w, r)
	if !ok {
		return
	}

	start := time.Now()
	details, err := h.Gateway.Provision(r.Context(), name)
	h.recorder().ObserveUpstream("live_input", time.Since(start))
	if err != nil {
		h.recorder().ObserveLiveInput(outcomeForError(err))
		h.writeGatewayError(w, r, err)
		return
	}
	h.recorder().ObserveLiveInput("success")

	writeJSON(w, http.StatusOK, liveStreamResponse{
		UID:            details.ID,
		RtmpsURL:       details.IngestURL,
		RtmpsStreamKey: details.StreamKey,
		Created:        details.CreatedAt,
	})
}

// liveStreamName extracts the display name from a JSON body or form value.
// An absent name is fine; the service applies the default.
func (h *Handler) liveStreamName(w http.ResponseWriter, r *http.Request) (string, bool) {
	contentType := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Type")))
	if strings.HasPrefix(contentType, "application/json") {
		var req createLiveStreamRequest
		if err := decodeJSON(r, &req); err != nil {
			if errors.Is(err, io.EOF) {
				return "", true
			}
			writeErrors(w, http.StatusBadRequest, "invalid request body")
			return "", false
		}
		return req.Name, true
	}
	return r.FormValue("name"), true
}

func (h *Handler) writeGatewayError(w http.ResponseWriter, r *http.Request, err error) {
	ge, ok := stream.AsGatewayError(err)
	if !ok {
		h.logger(r).Error("unexpected gateway failure", "error", err)
		writeErrors(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeErrors(w, ge.HTTPStatus, ge.Message)
}
