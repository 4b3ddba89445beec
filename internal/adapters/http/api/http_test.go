package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/okian/studypulse/internal/adapters/http/api"
	"github.com/okian/studypulse/internal/adapters/repository"
	service "github.com/okian/studypulse/internal/app"
	"github.com/okian/studypulse/internal/domain/analytics"
	"github.com/okian/studypulse/internal/domain/model"
	"github.com/okian/studypulse/internal/fixtures"
	"github.com/okian/studypulse/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// mockDependencies implements api.Dependencies with canned results.
type mockDependencies struct {
	analytics    *analytics.Response
	analyticsErr error
	panicMsg     string
	gotQuery     analytics.Query

	studies    []model.StudyRef
	studiesErr error

	submitResult service.SubmitResult
	submitErr    error
	submitted    []service.RatingInput

	completedAt string
	completeErr error

	stats service.Stats
}

func (m *mockDependencies) StudyAnalytics(_ context.Context, _ string, q analytics.Query) (*analytics.Response, error) {
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	m.gotQuery = q
	return m.analytics, m.analyticsErr
}

func (m *mockDependencies) ListStudies(context.Context) ([]model.StudyRef, error) {
	return m.studies, m.studiesErr
}

func (m *mockDependencies) SubmitRating(_ context.Context, _ string, in service.RatingInput) (service.SubmitResult, error) {
	m.submitted = append(m.submitted, in)
	return m.submitResult, m.submitErr
}

func (m *mockDependencies) MarkCompleted(_ context.Context, _, _, completedAt string) (string, error) {
	if m.completeErr != nil {
		return "", m.completeErr
	}
	if completedAt == "" {
		return m.completedAt, nil
	}
	return completedAt, nil
}

func (m *mockDependencies) GetStats(context.Context) service.Stats {
	return m.stats
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return out
}

func TestStudyAnalyticsRoute(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{}
		router := api.NewServer(deps).Router(context.Background())

		Convey("When the study builds successfully", func() {
			deps.analytics = &analytics.Response{
				Study:   analytics.StudyInfo{ID: "s-1", Title: "Checkout"},
				Summary: analytics.Summary{SubmissionsCount: 3, RefreshIntervalSeconds: 30},
			}
			w := serve(router, http.MethodGet, "/study/s-1?from=2025-03-01&to=2025-03-09&participantId=p-1", "")

			Convey("Then the payload is returned with the query forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				body := decodeBody(w)
				So(body["study"].(map[string]any)["id"], ShouldEqual, "s-1")
				So(body["summary"].(map[string]any)["submissionsCount"], ShouldEqual, 3.0)
				So(deps.gotQuery, ShouldResemble, analytics.Query{From: "2025-03-01", To: "2025-03-09", ParticipantID: "p-1"})
			})
		})

		Convey("When errors occur they map to status and message", func() {
			cases := []struct {
				err     error
				status  int
				message string
			}{
				{fmt.Errorf("study %q: %w", "s-1", repository.ErrNotFound), http.StatusNotFound, "Study s-1 was not found"},
				{fmt.Errorf("analytics.resolve_window: %w", analytics.ErrInvalidFilter), http.StatusBadRequest, "Invalid date filter provided"},
				{fmt.Errorf("analytics.resolve_window: %w", analytics.ErrInvertedRange), http.StatusBadRequest, "The start date must be before the end date"},
				{errors.New("connection reset by peer"), http.StatusInternalServerError, "Unable to build study analytics right now"},
			}
			for _, tc := range cases {
				deps.analyticsErr = tc.err
				w := serve(router, http.MethodGet, "/study/s-1", "")
				So(w.Code, ShouldEqual, tc.status)
				So(decodeBody(w)["message"], ShouldEqual, tc.message)
			}
		})

		Convey("When the build panics", func() {
			deps.panicMsg = "nil map write in aggregator"
			w := serve(router, http.MethodGet, "/study/s-1", "")

			Convey("Then a generic 500 is returned without internals", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(decodeBody(w)["message"], ShouldEqual, "Unable to build study analytics right now")
				So(w.Body.String(), ShouldNotContainSubstring, "nil map")
			})
		})
	})
}

func TestStudiesRoute(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{}
		router := api.NewServer(deps).Router(context.Background())

		Convey("When no studies exist", func() {
			w := serve(router, http.MethodGet, "/studies", "")

			Convey("Then an empty list is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, `{"studies":[]}`)
			})
		})

		Convey("When studies exist", func() {
			deps.studies = []model.StudyRef{{ID: "a", Title: "A", Code: "A-1"}, {ID: "b", Title: "B", Code: "B-1"}}
			w := serve(router, http.MethodGet, "/studies", "")

			Convey("Then they are listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decodeBody(w)["studies"], ShouldHaveLength, 2)
			})
		})

		Convey("When the store fails", func() {
			deps.studiesErr = errors.New("redis: connection refused")
			w := serve(router, http.MethodGet, "/studies", "")
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			So(w.Body.String(), ShouldNotContainSubstring, "redis")
		})
	})
}

func TestRatingsRoute(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{}
		router := api.NewServer(deps).Router(context.Background())
		const body = `{"eventId":"e-1","participantId":"p-1","artifactId":"a-1","rating":4}`

		Convey("When a new rating is accepted", func() {
			deps.submitResult = service.SubmitResult{EventID: "e-1"}
			w := serve(router, http.MethodPost, "/study/s-1/ratings", body)

			Convey("Then 202 is returned and the input is forwarded", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decodeBody(w)["status"], ShouldEqual, "accepted")
				So(deps.submitted, ShouldHaveLength, 1)
				So(deps.submitted[0].Rating, ShouldEqual, 4.0)
				So(deps.submitted[0].ParticipantID, ShouldEqual, "p-1")
			})
		})

		Convey("When the rating is a duplicate", func() {
			deps.submitResult = service.SubmitResult{EventID: "e-1", Duplicate: true}
			w := serve(router, http.MethodPost, "/study/s-1/ratings", body)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["duplicate"], ShouldEqual, true)
		})

		Convey("When the body is malformed", func() {
			for _, bad := range []string{
				`{"participantId":`,
				`{"participantId":"p-1","artifactId":"a-1"}`,
				`{"participantId":"p-1","artifactId":"a-1","rating":4,"score":9}`,
			} {
				w := serve(router, http.MethodPost, "/study/s-1/ratings", bad)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			}
			So(deps.submitted, ShouldBeEmpty)
		})

		Convey("When the service rejects or cannot take the rating", func() {
			cases := []struct {
				err    error
				status int
			}{
				{fmt.Errorf("%w: rating must be between 1 and 5", service.ErrInvalidSubmission), http.StatusBadRequest},
				{service.ErrQueueFull, http.StatusTooManyRequests},
				{service.ErrUnavailable, http.StatusServiceUnavailable},
				{errors.New("unexpected"), http.StatusInternalServerError},
			}
			for _, tc := range cases {
				deps.submitErr = tc.err
				w := serve(router, http.MethodPost, "/study/s-1/ratings", body)
				So(w.Code, ShouldEqual, tc.status)
			}
		})
	})
}

func TestCompleteRoute(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{completedAt: "2025-03-10T12:00:00Z"}
		router := api.NewServer(deps).Router(context.Background())
		const target = "/study/s-1/participants/p-1/complete"

		Convey("When completing without a body", func() {
			w := serve(router, http.MethodPost, target, "")

			Convey("Then the server time is used", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["participantId"], ShouldEqual, "p-1")
				So(body["completedAt"], ShouldEqual, "2025-03-10T12:00:00Z")
			})
		})

		Convey("When completing with an explicit time", func() {
			w := serve(router, http.MethodPost, target, `{"completedAt":"2025-03-09T08:00:00Z"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["completedAt"], ShouldEqual, "2025-03-09T08:00:00Z")
		})

		Convey("When the participant is unknown", func() {
			deps.completeErr = fmt.Errorf("participant %q: %w", "p-1", repository.ErrNotFound)
			w := serve(router, http.MethodPost, target, "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the time is malformed", func() {
			deps.completeErr = fmt.Errorf("%w: completedAt must be an RFC 3339 timestamp", service.ErrInvalidSubmission)
			w := serve(router, http.MethodPost, target, `{"completedAt":"soon"}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestOperationalRoutes(t *testing.T) {
	Convey("Given an API server over mocked dependencies", t, func() {
		deps := &mockDependencies{stats: service.Stats{Started: true, QueueCapacity: 10}}
		router := api.NewServer(deps, api.WithAllowedOrigins([]string{"https://monitor.example"})).Router(context.Background())

		Convey("Then /healthz exposes Prometheus metrics", func() {
			serve(router, http.MethodGet, "/studies", "")
			w := serve(router, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "http_requests_total")
		})

		Convey("And /stats returns the service stats", func() {
			w := serve(router, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decodeBody(w)["started"], ShouldEqual, true)
		})

		Convey("And the docs are mounted", func() {
			So(serve(router, http.MethodGet, "/openapi.yaml", "").Code, ShouldEqual, http.StatusOK)
			So(serve(router, http.MethodGet, "/api-docs", "").Code, ShouldEqual, http.StatusOK)
		})

		Convey("And CORS preflight honours the configured origins", func() {
			req := httptest.NewRequest(http.MethodOptions, "/study/s-1", http.NoBody)
			req.Header.Set("Origin", "https://monitor.example")
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "https://monitor.example")
		})

		Convey("And unknown routes are 404", func() {
			So(serve(router, http.MethodGet, "/scoreboard", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestServerWithService(t *testing.T) {
	Convey("Given the API over a running service with the demo study", t, func() {
		ctx := context.Background()
		now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
		svc := service.New(
			service.WithSeed(fixtures.Demo()),
			service.WithClock(func() time.Time { return now }),
			service.WithWorkerCount(2),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)
		router := api.NewServer(svc).Router(ctx)

		Convey("When fetching analytics for the demo study", func() {
			w := serve(router, http.MethodGet, "/study/study-aurora", "")

			Convey("Then the summary reflects the seeded roster", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				summary := decodeBody(w)["summary"].(map[string]any)
				So(summary["activeParticipants"], ShouldEqual, 5.0)
				So(summary["submissionsCount"], ShouldEqual, 9.0)
			})
		})

		Convey("When filtering to a participant that does not exist", func() {
			w := serve(router, http.MethodGet, "/study/study-aurora?participantId=nobody", "")

			Convey("Then a zeroed but complete payload is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decodeBody(w)
				So(body["summary"].(map[string]any)["activeParticipants"], ShouldEqual, 0.0)
				So(body["participants"], ShouldBeEmpty)
				So(body["participantOptions"], ShouldHaveLength, 5)
				So(body["exportable"], ShouldEqual, true)
			})
		})

		Convey("When the range is inverted", func() {
			w := serve(router, http.MethodGet, "/study/study-aurora?from=2025-03-10&to=2025-03-01", "")
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeBody(w)["message"], ShouldEqual, "The start date must be before the end date")
		})

		Convey("When a rating is posted twice", func() {
			body := `{"eventId":"api-e1","participantId":"p-005","artifactId":"art-wallet","rating":5,"submittedAt":"2025-03-10T09:00:00Z"}`
			first := serve(router, http.MethodPost, "/study/study-aurora/ratings", body)
			second := serve(router, http.MethodPost, "/study/study-aurora/ratings", body)

			Convey("Then the first is accepted and the second is a duplicate", func() {
				So(first.Code, ShouldEqual, http.StatusAccepted)
				So(second.Code, ShouldEqual, http.StatusOK)
			})
		})
	})
}
