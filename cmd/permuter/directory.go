package main

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpDirectoryService is the CLI's concrete identity.DirectoryService:
// it POSTs this client's public key to the configured directory
// service's /vouch endpoint and returns the signed grant bytes from the
// response body. The directory service's own protocol and authenticated
// discovery are out of scope (spec.md §1 Non-goals); this is just
// enough transport to drive the --vouch flow end to end against a real
// HTTP endpoint an operator stands up.
type httpDirectoryService struct {
	addr   string
	client *http.Client
}

func newHTTPDirectoryService(addr string) *httpDirectoryService {
	return &httpDirectoryService{addr: addr, client: &http.Client{Timeout: 10 * time.Second}}
}

func (d *httpDirectoryService) RequestGrant(publicKey []byte) ([]byte, error) {
	body := bytes.NewBufferString(base64.StdEncoding.EncodeToString(publicKey))
	resp, err := d.client.Post(d.addr+"/vouch", "text/plain", body)
	if err != nil {
		return nil, fmt.Errorf("directory: requesting grant from %s: %w", d.addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory: %s returned status %d", d.addr, resp.StatusCode)
	}
	grant, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("directory: reading grant response: %w", err)
	}
	return grant, nil
}
