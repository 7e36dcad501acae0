package stream

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"streamgate/internal/tusmeta"
)

// maxDurationKey is the metadata entry the gateway guarantees on every
// outbound upload request.
const maxDurationKey = "maxDurationSeconds"

// UploadRequest carries the inbound resumable-upload negotiation fields.
// Exactly one of UploadLength and UploadDeferLength must be present; when the
// caller supplies both, both are forwarded and the upstream backend resolves
// the conflict.
type UploadRequest struct {
	UploadLength      string
	UploadDeferLength string
	UploadMetadata    string
	ProtocolVersion   string
	CreatorID         *int64
}

// UploadDetails are the normalized upload instructions returned to the
// caller. The value is constructed once per successful negotiation and has no
// identity beyond that call.
type UploadDetails struct {
	UploadURL       string
	StreamMediaID   string
	ProtocolVersion string
}

// Negotiate validates the request, builds the backend's direct-upload
// creation call, and maps the response into UploadDetails. Any returned error
// is a *GatewayError.
func (s *Service) Negotiate(ctx context.Context, req UploadRequest) (UploadDetails, error) {
	length := strings.TrimSpace(req.UploadLength)
	deferLength := strings.TrimSpace(req.UploadDeferLength)
	if length == "" && deferLength == "" {
		return UploadDetails{}, newGatewayError(KindValidation, msgLengthRequired)
	}

	values, gerr := s.credentials(ctx)
	if gerr != nil {
		return UploadDetails{}, gerr
	}

	meta := tusmeta.Parse(req.UploadMetadata)
	meta.SetDefault(maxDurationKey, strconv.Itoa(values.MaxDuration()))

	version := strings.TrimSpace(req.ProtocolVersion)
	if version == "" {
		version = DefaultProtocolVersion
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+values.APIToken)
	header.Set(HeaderTusResumable, version)
	header.Set(HeaderUploadMetadata, meta.Encode())
	// Absent fields must not be sent as empty headers: the upstream treats
	// presence as intent-bearing.
	if length != "" {
		header.Set(HeaderUploadLength, length)
	}
	if deferLength != "" {
		header.Set(HeaderUploadDeferLength, deferLength)
	}
	if req.CreatorID != nil {
		header.Set(HeaderUploadCreator, strconv.FormatInt(*req.CreatorID, 10))
	}

	url := fmt.Sprintf("%s/accounts/%s/stream?direct_user=true", s.apiBase, values.AccountID)
	resp, err := s.caller.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: header})
	if err != nil {
		s.logger.Error("direct upload request failed", "error", err)
		return UploadDetails{}, newGatewayError(KindTransportFailure, msgUploadFailed).withCause(err)
	}
	if resp.Status >= 400 {
		s.logger.Error("direct upload rejected", "status", resp.Status, "body", string(resp.Body))
		return UploadDetails{}, newGatewayError(KindUpstreamRejected, msgUploadFailed)
	}
	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		s.logger.Error("direct upload response missing location header", "status", resp.Status)
		return UploadDetails{}, newGatewayError(KindUpstreamMalformed, msgUploadFailed)
	}

	details := UploadDetails{
		UploadURL:       location,
		StreamMediaID:   strings.TrimSpace(resp.Header.Get(HeaderStreamMediaID)),
		ProtocolVersion: strings.TrimSpace(resp.Header.Get(HeaderTusResumable)),
	}
	if details.ProtocolVersion == "" {
		details.ProtocolVersion = version
	}
	return details, nil
}
