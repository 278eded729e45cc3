package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vetbook/appointments/pkg/auth"
	"github.com/vetbook/appointments/pkg/config"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/services/appointment/application/handlers"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
	"github.com/vetbook/appointments/services/appointment/domain/events"
	"github.com/vetbook/appointments/services/appointment/infrastructure/persistence/memory"
)

type testServer struct {
	router http.Handler
	rec    *memory.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rec := memory.NewRecorder()
	log := logger.New(&config.Config{LogLevel: "error"})
	svcs := &appsvcs.Services{
		Appointment: appsvcs.NewAppointmentService(memory.NewAppointmentRepository(rec), nil, log),
	}
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		Register(r, svcs, false)
	})
	return &testServer{router: r, rec: rec}
}

func (s *testServer) do(t *testing.T, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(auth.ActorHeader, actor)
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode %T: %v", v, err)
	}
	return v
}

func slot(offset time.Duration) time.Time {
	return time.Now().UTC().Add(72 * time.Hour).Truncate(time.Hour).Add(offset)
}

func createBody(vet string, start time.Time, duration int) string {
	return fmt.Sprintf(`{"client_id":"client-1","patient_id":"patient-1","veterinarian_id":%q,"appointment_date":%q,"duration":%d,"reason":"checkup"}`,
		vet, start.Format(time.RFC3339), duration)
}

func TestAppointmentLifecycle(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/appointments", "staff-1", createBody("V1", slot(0), 30))
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[handlers.AppointmentResponse](t, rr)
	if created.ID == "" || created.Status != "SCHEDULED" {
		t.Fatalf("unexpected created appointment %+v", created)
	}
	if !created.EndsAt.Equal(slot(30 * time.Minute)) {
		t.Fatalf("ends_at = %s", created.EndsAt)
	}

	rr = s.do(t, http.MethodPost, "/api/appointments", "staff-1", createBody("V1", slot(15*time.Minute), 30))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("overlap: expected 400, got %d: %s", rr.Code, rr.Body.String())
	}

	base := "/api/appointments/" + created.ID
	steps := []struct {
		path   string
		body   string
		status string
	}{
		{base + "/confirm", "", "CONFIRMED"},
		{base + "/start", "", "IN_PROGRESS"},
		{base + "/complete", `{"notes":"healthy"}`, "COMPLETED"},
	}
	for _, step := range steps {
		rr = s.do(t, http.MethodPost, step.path, "vet-1", step.body)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", step.path, rr.Code, rr.Body.String())
		}
		if got := decode[handlers.AppointmentResponse](t, rr); got.Status != step.status {
			t.Fatalf("%s: status = %s, want %s", step.path, got.Status, step.status)
		}
	}

	rr = s.do(t, http.MethodPost, base+"/cancel", "staff-1", `{"reason":"late"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("cancel completed: expected 400, got %d", rr.Code)
	}

	rr = s.do(t, http.MethodGet, base, "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rr.Code)
	}
	got := decode[handlers.AppointmentResponse](t, rr)
	if got.CompletedNotes != "healthy" || got.ConfirmedBy != "vet-1" || got.CompletedBy != "vet-1" {
		t.Fatalf("unexpected appointment %+v", got)
	}

	var types []events.Type
	for _, e := range s.rec.Events() {
		types = append(types, e.Type)
	}
	want := []events.Type{
		events.TypeAppointmentCreated,
		events.TypeAppointmentConfirmed,
		events.TypeAppointmentStarted,
		events.TypeAppointmentCompleted,
	}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
}

func TestMutationsRequireActor(t *testing.T) {
	s := newTestServer(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/appointments"},
		{http.MethodPost, "/api/appointments/x/confirm"},
		{http.MethodPost, "/api/appointments/x/start"},
		{http.MethodPost, "/api/appointments/x/complete"},
		{http.MethodPost, "/api/appointments/x/cancel"},
		{http.MethodPost, "/api/appointments/x/no-show"},
		{http.MethodPut, "/api/appointments/x/notes"},
	}
	for _, p := range paths {
		rr := s.do(t, p.method, p.path, "", "")
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, rr.Code)
		}
	}
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)

	if rr := s.do(t, http.MethodGet, "/api/appointments/missing", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("get: expected 404, got %d", rr.Code)
	}
	if rr := s.do(t, http.MethodPost, "/api/appointments/missing/confirm", "staff-1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("confirm: expected 404, got %d", rr.Code)
	}
}

func TestQueries(t *testing.T) {
	s := newTestServer(t)
	for _, offset := range []time.Duration{0, 2 * time.Hour} {
		if rr := s.do(t, http.MethodPost, "/api/appointments", "staff-1", createBody("V1", slot(offset), 30)); rr.Code != http.StatusCreated {
			t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
		}
	}

	rr := s.do(t, http.MethodGet, "/api/appointments?veterinarian_id=V1", "", "")
	list := decode[handlers.AppointmentListResponse](t, rr)
	if list.Count != 2 || !list.Appointments[0].AppointmentDate.After(list.Appointments[1].AppointmentDate) {
		t.Fatalf("veterinarian history should be newest first: %+v", list)
	}

	rr = s.do(t, http.MethodGet, "/api/appointments/upcoming?days=7", "", "")
	list = decode[handlers.AppointmentListResponse](t, rr)
	if list.Count != 2 || !list.Appointments[0].AppointmentDate.Before(list.Appointments[1].AppointmentDate) {
		t.Fatalf("upcoming should be oldest first: %+v", list)
	}

	rr = s.do(t, http.MethodGet, "/api/appointments/availability?veterinarian_id=V1&start="+slot(30*time.Minute).Format(time.RFC3339)+"&duration=30", "", "")
	avail := decode[handlers.AvailabilityResponse](t, rr)
	if !avail.Available || len(avail.Conflicts) != 0 {
		t.Fatalf("adjacent slot should be free: %+v", avail)
	}

	if rr := s.do(t, http.MethodGet, "/api/appointments", "", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("list without selector: expected 400, got %d", rr.Code)
	}
}
