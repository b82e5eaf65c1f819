package linkproc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Processing service names as registered on the router.
const (
	ServicePDFClean       = "pdf_clean"
	ServiceVideoTranscode = "video_transcode"
	ServiceFileCopy       = "file_copy"
)

// ServiceRequest is the JSON payload sent to every processing service.
type ServiceRequest struct {
	FileID       string       `json:"file_id"`
	Name         string       `json:"name,omitempty"`
	Category     FileCategory `json:"category"`
	Course       string       `json:"course,omitempty"`
	DestFolderID string       `json:"dest_folder_id,omitempty"`
	SourceURL    string       `json:"source_url,omitempty"`
}

// ServiceResponse is the JSON answer of a processing service. Skipped means
// the file needed no transformation; NewURL or OriginalURL then carries the
// link to keep.
type ServiceResponse struct {
	Success     bool   `json:"success"`
	Skipped     bool   `json:"skipped,omitempty"`
	NewURL      string `json:"new_url,omitempty"`
	NewFileID   string `json:"new_file_id,omitempty"`
	OriginalURL string `json:"original_url,omitempty"`
	Error       string `json:"error,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

var errServiceDisabled = errors.New("processing service disabled")

func callService(ctx context.Context, caller ServiceCaller, service string, req ServiceRequest) (*ServiceResponse, error) {
	if caller == nil {
		return nil, fmt.Errorf("%s: no service caller configured", service)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", service, err)
	}
	raw, err := caller.Call(ctx, service, payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", service, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", service, errServiceDisabled)
	}
	var resp ServiceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", service, err)
	}
	return &resp, nil
}

var textPolicy = bluemonday.StrictPolicy()

const maxErrorText = 300

// cleanError renders an error for the report. Remote processors often fail
// with an HTML page; markup is stripped and the text shortened.
func cleanError(msg string) string {
	if strings.ContainsAny(msg, "<>") {
		msg = html.UnescapeString(textPolicy.Sanitize(msg))
	}
	msg = strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(msg) > maxErrorText {
		r := []rune(msg)
		msg = string(r[:maxErrorText]) + "…"
	}
	return msg
}
