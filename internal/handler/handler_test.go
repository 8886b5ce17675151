package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ehr-gateway/internal/backend"
	"github.com/angeloszaimis/ehr-gateway/internal/handler"
	"github.com/angeloszaimis/ehr-gateway/internal/metrics"
	"github.com/angeloszaimis/ehr-gateway/internal/route"
)

type recordingSink struct {
	mutex  sync.Mutex
	events []metrics.MetricEvent
}

func (s *recordingSink) Record(event metrics.MetricEvent) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) Events() []metrics.MetricEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]metrics.MetricEvent(nil), s.events...)
}

type seenRequest struct {
	Method        string
	Path          string
	RawPath       string
	Authorization string
	Body          string
}

func closedURL() string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	addr := l.Addr().String()
	Expect(l.Close()).To(Succeed())
	return "http://" + addr
}

var _ = Describe("GatewayHandler", func() {
	var (
		h        *handler.GatewayHandler
		auth     *httptest.Server
		ehr      *httptest.Server
		seen     chan seenRequest
		sink     *recordingSink
		log      *slog.Logger
		entries  []route.Entry
		releaseA chan struct{}
	)

	newBackend := func(name, rawURL string, timeout time.Duration) *backend.Backend {
		return backend.New(name, mustParseURL(rawURL), backend.Options{
			Timeout: timeout,
			Logger:  log,
			Sink:    sink,
		})
	}

	recordingServer := func(delay time.Duration) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			seen <- seenRequest{
				Method:        r.Method,
				Path:          r.URL.Path,
				RawPath:       r.URL.RawPath,
				Authorization: r.Header.Get("Authorization"),
				Body:          string(body),
			}
			time.Sleep(delay)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		}))
	}

	BeforeEach(func() {
		log = slog.New(slog.DiscardHandler)
		sink = &recordingSink{}
		seen = make(chan seenRequest, 8)
		releaseA = make(chan struct{})

		auth = recordingServer(50 * time.Millisecond)
		ehr = recordingServer(0)

		entries = []route.Entry{
			{Prefix: "/api/auth", Backend: newBackend("AUTH", auth.URL, 2*time.Second)},
			{Prefix: "/api/ehr", Backend: newBackend("EHR", ehr.URL, 2*time.Second)},
		}
	})

	JustBeforeEach(func() {
		table, err := route.New(entries)
		Expect(err).NotTo(HaveOccurred())
		h = handler.NewGatewayHandler(log, table, sink)
	})

	AfterEach(func() {
		auth.Close()
		ehr.Close()
	})

	It("should forward login to the identity backend without the prefix", func() {
		payload := `{"email":"a@b.com","password":"x"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Origin", "https://not-listed.example")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		var got seenRequest
		Eventually(seen).Should(Receive(&got))
		Expect(got.Method).To(Equal(http.MethodPost))
		Expect(got.Path).To(Equal("/login"))
		Expect(got.Body).To(Equal(payload))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("should pass the bearer token through untouched", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/ehr/patients/42", nil)
		req.Header.Set("Authorization", "Bearer not-a-valid-token")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		var got seenRequest
		Eventually(seen).Should(Receive(&got))
		Expect(got.Path).To(Equal("/patients/42"))
		Expect(got.Authorization).To(Equal("Bearer not-a-valid-token"))
		Expect(rec.Code).To(Equal(http.StatusOK))
	})

	It("should keep escaped path segments escaped", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/ehr/patients/a%2Fb", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		var got seenRequest
		Eventually(seen).Should(Receive(&got))
		Expect(got.RawPath).To(Equal("/patients/a%2Fb"))
	})

	It("should answer 404 for unknown paths and record the miss", func() {
		req := httptest.NewRequest(http.MethodGet, "/unknown/path", nil)
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusNotFound))
		var body map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("error", "Route not found"))
		Expect(body).To(HaveKeyWithValue("path", "/unknown/path"))
		Expect(body).To(HaveKeyWithValue("method", "GET"))
		Expect(body).To(HaveKey("timestamp"))

		Expect(sink.Events()).To(ContainElement(HaveField("Type", metrics.EventRouteMissed)))
		Consistently(seen, 50*time.Millisecond).ShouldNot(Receive())
	})

	Context("when the identity backend is unreachable", func() {
		BeforeEach(func() {
			entries[0].Backend = newBackend("AUTH", closedURL(), time.Second)
		})

		It("should answer 502 naming the service", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			Expect(rec.Code).To(Equal(http.StatusBadGateway))
			Expect(rec.Body.String()).To(ContainSubstring(`"service":"AUTH"`))
			Expect(rec.Body.String()).NotTo(ContainSubstring("goroutine"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("dial tcp"))
		})
	})

	Context("with a slow triage backend", func() {
		var ai *httptest.Server

		BeforeEach(func() {
			ai = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-releaseA:
				case <-time.After(5 * time.Second):
				case <-r.Context().Done():
				}
				w.Write([]byte(`{"diagnosis":"pending"}`))
			}))
			entries = append(entries, route.Entry{Prefix: "/api/ai", Backend: newBackend("AI", ai.URL, 10*time.Second)})
		})

		AfterEach(func() {
			close(releaseA)
			ai.CloseClientConnections()
			ai.Close()
		})

		It("should not hold up requests to other backends", func() {
			slowDone := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(slowDone)
				req := httptest.NewRequest(http.MethodPost, "/api/ai/diagnose", strings.NewReader(`{"symptoms":["cough"]}`))
				h.ServeHTTP(httptest.NewRecorder(), req)
			}()

			start := time.Now()
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			elapsed := time.Since(start)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(elapsed).To(BeNumerically(">=", 50*time.Millisecond))
			Expect(elapsed).To(BeNumerically("<", time.Second))
			Consistently(slowDone, 100*time.Millisecond).ShouldNot(BeClosed())
		})
	})
})
