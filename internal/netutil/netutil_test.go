package netutil

import (
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOutboundIP_AlwaysParseable(t *testing.T) {
	ip := OutboundIP()
	require.NotNil(t, net.ParseIP(ip), "got %q", ip)
}

func TestBasicAuthHeader(t *testing.T) {
	// RFC 7617 example pair.
	require.Equal(t, "Basic QWxhZGRpbjpvcGVuIHNlc2FtZQ==", BasicAuthHeader("Aladdin", "open sesame"))
	require.Empty(t, BasicAuthHeader("", "secret"))
}

func TestApplyBasicAuth(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://10.0.0.5:8080/BeoDevice", nil)
	require.NoError(t, err)

	ApplyBasicAuth(req, "admin", "admin")
	require.NotEmpty(t, req.Header.Get("Authorization"))

	req2, err := http.NewRequest(http.MethodGet, "http://10.0.0.5:8080/BeoDevice", nil)
	require.NoError(t, err)
	ApplyBasicAuth(req2, "", "")
	require.Empty(t, req2.Header.Get("Authorization"))
}
