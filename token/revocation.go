package token

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RevocationClient checks whether a token has been revoked. The lookup
// is deliberately uncached: revocation must be prompt, and the table
// behind the endpoint is small and indexed by token ID.
type RevocationClient struct {
	// The endpoint base; the token ID is appended as a path segment.
	Endpoint string
	// The client used for the lookup.
	Client *http.Client
}

// NewRevocationClient creates a client for the revocation endpoint. A
// nil client falls back to http.DefaultClient.
func NewRevocationClient(endpoint string, client *http.Client) *RevocationClient {
	if client == nil {
		client = http.DefaultClient
	}

	return &RevocationClient{Endpoint: endpoint, Client: client}
}

// IsRevoked looks up the token ID against the revocation endpoint.
// A 404 means the token is not revoked, a 200 means it is; any other
// status is an operational failure.
func (c *RevocationClient) IsRevoked(ctx context.Context, tid string) (bool, error) {
	target := strings.TrimSuffix(c.Endpoint, "/") + "/" + url.PathEscape(tid)

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, &RevocationError{Err: err}
	}

	response, err := c.Client.Do(request)
	if err != nil {
		return false, &RevocationError{Err: err}
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusNotFound:
		return false, nil
	case http.StatusOK:
		return true, nil
	default:
		return false, &RevocationError{Status: response.StatusCode}
	}
}

// RevocationError reports a failed revocation lookup.
type RevocationError struct {
	// The unexpected response status, when the endpoint responded.
	Status int
	// The source of the failure, if any.
	Err error
}

func (e *RevocationError) Error() string {
	if e.Err != nil {
		return "failed to query the revocation endpoint"
	}
	return fmt.Sprintf("revocation endpoint responded with status %d", e.Status)
}

func (e *RevocationError) Unwrap() error {
	return e.Err
}
