package handler_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ehr-gateway/internal/handler"
)

var _ = Describe("Middleware", func() {
	var (
		logs *bytes.Buffer
		log  *slog.Logger
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		log = slog.New(slog.NewJSONHandler(logs, nil))
	})

	Describe("RequestID", func() {
		var seenID string

		echo := handler.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = r.Header.Get("X-Request-ID")
		}))

		It("should generate an ID when the client sends none", func() {
			rec := httptest.NewRecorder()
			echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))

			Expect(seenID).To(MatchRegexp(`^[0-9a-f-]{36}$`))
			Expect(rec.Header().Get("X-Request-ID")).To(Equal(seenID))
		})

		It("should keep the client's ID", func() {
			req := httptest.NewRequest(http.MethodGet, "/api", nil)
			req.Header.Set("X-Request-ID", "trace-1")
			rec := httptest.NewRecorder()
			echo.ServeHTTP(rec, req)

			Expect(seenID).To(Equal("trace-1"))
			Expect(rec.Header().Get("X-Request-ID")).To(Equal("trace-1"))
		})
	})

	Describe("AccessLog", func() {
		It("should log method, path, origin and status", func() {
			h := handler.AccessLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
			}))

			req := httptest.NewRequest(http.MethodPatch, "/api/ehr/patients/1", nil)
			req.Header.Set("Origin", "http://localhost:5173")
			h.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			Expect(json.Unmarshal(logs.Bytes(), &line)).To(Succeed())
			Expect(line).To(HaveKeyWithValue("method", "PATCH"))
			Expect(line).To(HaveKeyWithValue("path", "/api/ehr/patients/1"))
			Expect(line).To(HaveKeyWithValue("origin", "http://localhost:5173"))
			Expect(line).To(HaveKeyWithValue("status", BeNumerically("==", http.StatusTeapot)))
			Expect(line).To(HaveKey("duration"))
		})
	})

	Describe("Recover", func() {
		It("should turn a panic into the internal error body", func() {
			h := handler.Chain(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }),
				handler.AccessLog(log),
				handler.Recover(log),
			)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ehr/patients", nil))

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(rec.Body.String()).To(ContainSubstring("Internal gateway error"))
			Expect(rec.Body.String()).NotTo(ContainSubstring("boom"))
			Expect(logs.String()).To(ContainSubstring("Recovered from panic"))
		})

		It("should not write twice when the response already started", func() {
			h := handler.Chain(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					w.Write([]byte("partial"))
					panic("late")
				}),
				handler.AccessLog(log),
				handler.Recover(log),
			)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ehr/patients", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(Equal("partial"))
		})

		It("should let http.ErrAbortHandler through", func() {
			h := handler.Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(http.ErrAbortHandler)
			}))

			Expect(func() {
				h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
			}).To(PanicWith(http.ErrAbortHandler))
		})
	})

	It("should run middlewares in the order given", func() {
		var order []string
		mark := func(name string) handler.Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		h := handler.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}), mark("a"), mark("b"), mark("c"))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

		Expect(order).To(Equal([]string{"a", "b", "c"}))
	})
})
