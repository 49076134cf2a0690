package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/psiproto/ddh-psi-sum/config"
	"github.com/psiproto/ddh-psi-sum/paillier"
	"github.com/psiproto/ddh-psi-sum/psi"
)

// newTestServer builds a Server with no Postgres ledger: the in-memory
// session cache alone is enough to drive the HTTP reference transport.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.SecurityBits = paillier.MinModulusBits
	cfg.RoundConcurrency = 2
	logger := zerolog.Nop()
	s, err := New(context.Background(), cfg, &logger)
	require.NoError(t, err)
	return s
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

// TestHTTPRoundTrip drives one full three-round exchange through the chi
// router's JSON-enveloped, base64-encoded bodies, the shape SPEC_FULL.md §6
// describes for the HTTP reference transport.
func TestHTTPRoundTrip(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	require.Equal(t, float64(0), testutil.ToFloat64(s.metrics.LiveSessionsGauge))

	resp := postJSON(t, ts, "/v1/psi/sessions/", createSessionRequest{
		Values:       map[string]int64{"a": 10, "b": 20},
		VMax:         100,
		SecurityBits: paillier.MinModulusBits,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var createResp createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&createResp))
	require.NotEmpty(t, createResp.SessionID)
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.LiveSessionsGauge))

	setupBytes, err := base64.StdEncoding.DecodeString(createResp.Payload)
	require.NoError(t, err)
	var setup psi.SetupMsg
	require.NoError(t, setup.UnmarshalBinary(setupBytes))

	p1, err := psi.NewParty1([][]byte{[]byte("a"), []byte("c")})
	require.NoError(t, err)
	defer p1.Close()
	require.NoError(t, p1.AcceptSetup(&setup))

	r1, err := p1.Round1(context.Background())
	require.NoError(t, err)
	r1Bytes, err := r1.MarshalBinary()
	require.NoError(t, err)

	resp = postJSON(t, ts, "/v1/psi/sessions/"+createResp.SessionID+"/round1", envelope{
		Payload: base64.StdEncoding.EncodeToString(r1Bytes),
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	r2Bytes, err := base64.StdEncoding.DecodeString(env.Payload)
	require.NoError(t, err)
	var r2 psi.Round2Msg
	require.NoError(t, r2.UnmarshalBinary(r2Bytes))

	r3, err := p1.Round3(context.Background(), &r2)
	require.NoError(t, err)
	r3Bytes, err := r3.MarshalBinary()
	require.NoError(t, err)

	resp = postJSON(t, ts, "/v1/psi/sessions/"+createResp.SessionID+"/round2", envelope{
		Payload: base64.StdEncoding.EncodeToString(r3Bytes),
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var final finalizeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&final))
	require.Equal(t, uint64(1), final.Cardinality)
	require.Equal(t, "10", final.Sum)

	require.Equal(t, float64(0), testutil.ToFloat64(s.metrics.LiveSessionsGauge))
}
