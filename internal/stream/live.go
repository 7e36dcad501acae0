package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultLiveInputName is used when the caller does not supply a display name.
const DefaultLiveInputName = "Live Stream"

// LiveInputDetails are the connection credentials for a provisioned live
// ingest endpoint. Only ID is guaranteed; the backend may omit the rest.
type LiveInputDetails struct {
	ID        string
	IngestURL string
	StreamKey string
	CreatedAt string
}

type liveInputPayload struct {
	Meta struct {
		Name string `json:"name"`
	} `json:"meta"`
	Recording struct {
		Mode string `json:"mode"`
	} `json:"recording"`
}

type liveInputEnvelope struct {
	Result struct {
		UID   string `json:"uid"`
		Rtmps struct {
			URL       string `json:"url"`
			StreamKey string `json:"streamKey"`
		} `json:"rtmps"`
		Created string `json:"created"`
	} `json:"result"`
}

// Provision creates a live input on the streaming backend and maps the
// response into LiveInputDetails. Any returned error is a *GatewayError.
func (s *Service) Provision(ctx context.Context, displayName string) (LiveInputDetails, error) {
	values, gerr := s.credentials(ctx)
	if gerr != nil {
		return LiveInputDetails{}, gerr
	}

	name := norm.NFC.String(strings.TrimSpace(displayName))
	if name == "" {
		name = DefaultLiveInputName
	}

	var payload liveInputPayload
	payload.Meta.Name = name
	payload.Recording.Mode = "automatic"
	body, err := json.Marshal(payload)
	if err != nil {
		return LiveInputDetails{}, newGatewayError(KindTransportFailure, msgLiveInputFailed).withCause(err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+values.APIToken)
	header.Set("Content-Type", "application/json")

	url := fmt.Sprintf("%s/accounts/%s/stream/live_inputs", s.apiBase, values.AccountID)
	resp, err := s.caller.Do(ctx, Request{Method: http.MethodPost, URL: url, Header: header, Body: body})
	if err != nil {
		s.logger.Error("live input request failed", "error", err)
		return LiveInputDetails{}, newGatewayError(KindTransportFailure, msgLiveInputFailed).withCause(err)
	}
	if resp.Status >= 400 {
		s.logger.Error("live input rejected", "status", resp.Status, "body", string(resp.Body))
		return LiveInputDetails{}, newGatewayError(KindUpstreamRejected, msgLiveInputFailed)
	}

	var envelope liveInputEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		s.logger.Error("live input response unparseable", "status", resp.Status, "error", err)
		return LiveInputDetails{}, newGatewayError(KindTransportFailure, msgLiveInputFailed).withCause(err)
	}
	// A 2xx status alone is not proof of success; the identifier must be
	// present.
	if strings.TrimSpace(envelope.Result.UID) == "" {
		s.logger.Error("live input response missing uid", "status", resp.Status, "body", string(resp.Body))
		return LiveInputDetails{}, newGatewayError(KindUpstreamMalformed, msgLiveInputFailed)
	}

	return LiveInputDetails{
		ID:        envelope.Result.UID,
		IngestURL: envelope.Result.Rtmps.URL,
		StreamKey: envelope.Result.Rtmps.StreamKey,
		CreatedAt: envelope.Result.Created,
	}, nil
}
