package main

import (
	"fmt"
	"strings"

	htmlfwd "github.com/htmlfwd/go-client"
)

// parseEndpoints turns label=host pairs into specs. A bare host is its
// own label.
func parseEndpoints(values []string) ([]htmlfwd.EndpointSpec, error) {
	specs := make([]htmlfwd.EndpointSpec, 0, len(values))
	for _, v := range values {
		label, host, found := strings.Cut(v, "=")
		if !found {
			host = label
		}
		label, host = strings.TrimSpace(label), strings.TrimSpace(host)
		if host == "" {
			return nil, fmt.Errorf("--endpoint %q: missing host", v)
		}
		specs = append(specs, htmlfwd.EndpointSpec{Label: label, Host: host})
	}
	return specs, nil
}
