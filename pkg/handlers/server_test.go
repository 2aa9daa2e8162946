package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-rx/pkg/adapters/storage/memory"
	"github.com/ekaya-inc/ekaya-rx/pkg/auth"
	"github.com/ekaya-inc/ekaya-rx/pkg/llm"
	"github.com/ekaya-inc/ekaya-rx/pkg/services"
	"github.com/ekaya-inc/ekaya-rx/pkg/testhelpers"
)

// pngHeader is enough for http.DetectContentType to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0x0d}

type testServer struct {
	mux    *http.ServeMux
	store  *memory.Store
	vision *llm.MockVisionClient
}

// newTestServer wires the API over the memory engine with a mocked vision
// client. required toggles mandatory authentication.
func newTestServer(t *testing.T, reply any, required bool) *testServer {
	t.Helper()
	logger := zap.NewNop()

	jwks, err := auth.NewJWKSClient(context.Background(), &auth.JWKSConfig{})
	require.NoError(t, err)
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwks, logger), required, logger)

	store := memory.New(logger)
	vision := llm.NewMockVisionClient(reply)

	mux := http.NewServeMux()
	NewPatientsHandler(services.NewPatientService(store, logger), logger).RegisterRoutes(mux, authMiddleware)
	NewPrescriptionsHandler(
		services.NewPrescriptionService(store, vision, services.PrescriptionConfig{DefaultDoctorID: services.DefaultDoctorID}, nil, logger),
		1<<10,
		logger,
	).RegisterRoutes(mux, authMiddleware)
	NewStatsHandler(services.NewStatsService(store, nil, logger), logger).RegisterRoutes(mux, authMiddleware)

	return &testServer{mux: mux, store: store, vision: vision}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

// addPatient stores a patient and returns its id.
func (s *testServer) addPatient(t *testing.T, name string) string {
	t.Helper()
	p := testhelpers.NewTestPatient(name, 0)
	require.NoError(t, s.store.InsertPatient(context.Background(), p))
	return p.ID
}

// uploadRequest builds a multipart upload with one file part. An empty
// contentType leaves the part header unset.
func uploadRequest(t *testing.T, patientID, field, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="rx.png"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/prescriptions/upload/"+patientID, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}
