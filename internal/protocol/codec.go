package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// EncodeRequest serializes a Request to JSON and writes it to w.
func EncodeRequest(w io.Writer, req *Request) error {
	if req.Protocol != Version {
		return fmt.Errorf("unsupported protocol version: %d", req.Protocol)
	}

	if err := json.NewEncoder(w).Encode(req); err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return nil
}

// DecodeResponse strictly decodes a Response, rejecting unknown fields.
func DecodeResponse(r io.Reader) (*Response, error) {
	var resp Response

	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecodeResponseLenient reads all of r and decodes it, tolerating unknown
// fields. The raw bytes are returned so callers can log unparseable output.
func DecodeResponseLenient(r io.Reader) (*Response, []byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil, data, fmt.Errorf("plugin produced no output on stdout")
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, data, fmt.Errorf("plugin output is not valid JSON: %w", err)
	}
	if err := resp.validate(); err != nil {
		return nil, data, err
	}
	return &resp, data, nil
}

func (r *Response) validate() error {
	switch r.Status {
	case "":
		return fmt.Errorf("response missing required field: status")
	case "ok":
	case "error":
		if r.Error == "" {
			return fmt.Errorf("response has status=error but no error message")
		}
	default:
		return fmt.Errorf("invalid status value: %q (must be 'ok' or 'error')", r.Status)
	}
	for i, reply := range r.Replies {
		if reply.Text == "" {
			return fmt.Errorf("replies[%d]: empty text", i)
		}
	}
	return nil
}
