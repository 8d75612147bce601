package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/lmgate/gateway/header"
	"github.com/papercomputeco/lmgate/pkg/storage"
	"github.com/papercomputeco/lmgate/pkg/storage/inmemory"
	"github.com/papercomputeco/lmgate/pkg/stream"
)

var _ = Describe("Gateway", func() {
	var (
		g      *Gateway
		driver *inmemory.Driver
		up     *fakeUpstream
	)

	BeforeEach(func() {
		up = newFakeUpstream()
		g, driver = newTestGateway(up.URL)
	})

	AfterEach(func() {
		g.Close()
		up.Close()
	})

	Describe("POST /api/generate", func() {
		Context("in streaming mode", func() {
			It("relays fragments as plain text", func() {
				resp, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
				Expect(resp.Header.Get(header.RequestIDHeader)).NotTo(BeEmpty())
				Expect(readAll(resp.Body)).To(Equal("Hello"))
			})

			It("records counts but not the generated text", func() {
				resp, err := g.server.Test(generateRequest(`{"prompt":"hi","stream":true}`), -1)
				Expect(err).NotTo(HaveOccurred())
				readAll(resp.Body)
				resp.Body.Close()

				rec := storedRecord(driver)
				Expect(rec.ID).To(Equal(resp.Header.Get(header.RequestIDHeader)))
				Expect(rec.Streaming).To(BeTrue())
				Expect(rec.Status).To(Equal(storage.StatusCompleted))
				Expect(rec.Model).To(Equal("llama2"))
				Expect(rec.Prompt).To(Equal("hi"))
				Expect(rec.Fragments).To(Equal(2))
				Expect(rec.Bytes).To(Equal(5))
				Expect(rec.Response).To(BeEmpty())
			})

			It("skips malformed and field-less records", func() {
				up.handle("/api/generate", ndjsonHandler(
					`{"response":"a"}`,
					`not json`,
					`{"other":"x"}`,
					`{"response":null}`,
					`{"response":42}`,
					``,
					`{"response":"b"}`,
				))

				resp, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(readAll(resp.Body)).To(Equal("ab"))
			})

			It("returns an empty body for an empty upstream stream", func() {
				up.handle("/api/generate", rawHandler(http.StatusOK, ""))

				resp, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(readAll(resp.Body)).To(BeEmpty())
			})

			It("decodes a final record that lacks a trailing newline", func() {
				up.handle("/api/generate", rawHandler(http.StatusOK, `{"response":"x"}`+"\n"+`{"response":"y"}`))

				resp, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(readAll(resp.Body)).To(Equal("xy"))
			})
		})

		Context("in buffered mode", func() {
			It("returns the aggregated response as JSON", func() {
				resp, err := g.server.Test(generateRequest(`{"prompt":"hi","stream":false}`), -1)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var body GenerationResponse
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body.Response).To(Equal("Hello"))

				rec := storedRecord(driver)
				Expect(rec.Streaming).To(BeFalse())
				Expect(rec.Response).To(Equal("Hello"))
			})

			It("returns an empty response for an empty upstream stream", func() {
				up.handle("/api/generate", rawHandler(http.StatusOK, ""))

				resp, err := g.server.Test(generateRequest(`{"prompt":"hi","stream":false}`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(readAll(resp.Body)).To(MatchJSON(`{"response":""}`))
			})

			It("matches the streaming output for the same upstream", func() {
				up.handle("/api/generate", ndjsonHandler(
					`{"response":"Grüße, "}`,
					`{"response":"🌍"}`,
					`{"response":""}`,
					`{"response":"!"}`,
				))

				streamed, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				buffered, err := g.server.Test(generateRequest(`{"prompt":"hi","stream":false}`), -1)
				Expect(err).NotTo(HaveOccurred())

				var body GenerationResponse
				Expect(json.NewDecoder(buffered.Body).Decode(&body)).To(Succeed())
				Expect(readAll(streamed.Body)).To(Equal(body.Response))
				Expect(body.Response).To(Equal("Grüße, 🌍!"))
			})
		})

		Describe("upstream request", func() {
			It("applies the default model and forwards options and headers", func() {
				req := generateRequest(`{"prompt":"hi","options":{"temperature":0.2}}`)
				req.Header.Set("Authorization", "Bearer abc")

				resp, err := g.server.Test(req, -1)
				Expect(err).NotTo(HaveOccurred())
				readAll(resp.Body)

				body := up.LastBody()
				Expect(body).To(HaveKeyWithValue("model", "llama2"))
				Expect(body).To(HaveKeyWithValue("prompt", "hi"))
				Expect(body).To(HaveKeyWithValue("options", HaveKeyWithValue("temperature", 0.2)))
				Expect(body).NotTo(HaveKey("stream"))
				Expect(up.LastHeader().Get("Authorization")).To(Equal("Bearer abc"))
			})

			It("uses the requested model", func() {
				resp, err := g.server.Test(generateRequest(`{"prompt":"hi","model":"mistral"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				readAll(resp.Body)

				Expect(up.LastBody()).To(HaveKeyWithValue("model", "mistral"))
			})
		})

		Describe("client errors", func() {
			It("rejects an invalid body", func() {
				resp, err := g.server.Test(generateRequest(`{"prompt":`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readAll(resp.Body)).To(ContainSubstring("invalid request body"))
			})

			It("rejects a missing prompt", func() {
				resp, err := g.server.Test(generateRequest(`{"model":"llama2"}`), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(readAll(resp.Body)).To(MatchJSON(`{"error":"prompt is required"}`))
			})
		})

		DescribeTable("upstream rejection",
			func(body string) {
				up.handle("/api/generate", rawHandler(http.StatusInternalServerError, "boom"))

				resp, err := g.server.Test(generateRequest(body), -1)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))

				var errResp ErrorResponse
				Expect(json.NewDecoder(resp.Body).Decode(&errResp)).To(Succeed())
				Expect(errResp.Error).To(ContainSubstring("500"))
				Expect(errResp.Error).To(ContainSubstring("boom"))

				rec := storedRecord(driver)
				Expect(rec.Status).To(Equal(storage.StatusRejected))
				Expect(rec.UpstreamStatus).To(Equal(http.StatusInternalServerError))
				Expect(rec.Fragments).To(BeZero())
			},
			Entry("streaming", `{"prompt":"hi"}`),
			Entry("buffered", `{"prompt":"hi","stream":false}`),
		)

		It("passes a 404 from the upstream through", func() {
			up.handle("/api/generate", rawHandler(http.StatusNotFound, `{"error":"model 'nope' not found"}`))

			resp, err := g.server.Test(generateRequest(`{"prompt":"hi","model":"nope"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(readAll(resp.Body)).To(ContainSubstring("not found"))
		})

		It("returns 502 when the upstream is unreachable", func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			deadURL := "http://" + ln.Addr().String()
			ln.Close()

			dead, deadDriver := newTestGateway(deadURL)
			defer dead.Close()

			resp, err := dead.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(readAll(resp.Body)).To(ContainSubstring("upstream request failed"))
			Expect(storedRecord(deadDriver).Status).To(Equal(storage.StatusFailed))
		})

		It("returns 502 in buffered mode when the upstream stream breaks", func() {
			up.handle("/api/generate", brokenStreamHandler(`{"response":"partial"}`))

			resp, err := g.server.Test(generateRequest(`{"prompt":"hi","stream":false}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			Expect(storedRecord(driver).Status).To(Equal(storage.StatusFailed))
		})
	})

	Describe("configured framing", func() {
		It("splits on blank lines and reads a custom field", func() {
			blank, _ := newTestGateway(up.URL, func(c *Config) {
				c.Delimiter = stream.DelimiterBlankLine
				c.Field = "text"
				c.DefaultModel = "phi3"
			})
			defer blank.Close()

			up.handle("/api/generate", rawHandler(http.StatusOK,
				`{"text":"one "}`+"\n\n"+`{"text":"two"}`+"\n\n"))

			resp, err := blank.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(readAll(resp.Body)).To(Equal("one two"))
			Expect(up.LastBody()).To(HaveKeyWithValue("model", "phi3"))
		})
	})

	Describe("over a real connection", func() {
		var (
			baseURL string
			client  *http.Client
		)

		BeforeEach(func() {
			ln, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			go g.RunWithListener(ln)

			baseURL = "http://" + ln.Addr().String()
			client = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
		})

		It("stops pulling from upstream when the client disconnects", func() {
			upstreamGone := make(chan struct{})
			up.handle("/api/generate", func(w http.ResponseWriter, r *http.Request) {
				flusher := w.(http.Flusher)
				for i := 0; ; i++ {
					fmt.Fprintf(w, "{\"response\":\"tick %d \"}\n", i)
					flusher.Flush()
					select {
					case <-r.Context().Done():
						close(upstreamGone)
						return
					case <-time.After(10 * time.Millisecond):
					}
				}
			})

			resp, err := client.Post(baseURL+"/api/generate", "application/json", strings.NewReader(`{"prompt":"count"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			first := make([]byte, len("tick 0"))
			_, err = io.ReadFull(resp.Body, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(first)).To(Equal("tick 0"))
			resp.Body.Close()

			Eventually(upstreamGone, 5*time.Second).Should(BeClosed())
			Expect(storedRecord(driver).Status).To(Equal(storage.StatusCancelled))
		})

		It("ends the stream abruptly when the upstream fails after output began", func() {
			up.handle("/api/generate", brokenStreamHandler(`{"response":"partial"}`))

			resp, err := client.Post(baseURL+"/api/generate", "application/json", strings.NewReader(`{"prompt":"hi"}`))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			body, err := io.ReadAll(resp.Body)
			Expect(err).To(HaveOccurred())
			Expect(string(body)).To(Equal("partial"))

			rec := storedRecord(driver)
			Expect(rec.Status).To(Equal(storage.StatusFailed))
			Expect(rec.Fragments).To(Equal(1))
		})
	})
})

// brokenStreamHandler writes records then drops the connection without
// terminating the chunked body.
func brokenStreamHandler(records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		for _, rec := range records {
			fmt.Fprintln(w, rec)
		}
		flusher.Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		if err == nil {
			conn.Close()
		}
	}
}

var _ = Describe("Gateway shutdown", func() {
	It("returns from Close while a client has stopped reading a stream", func() {
		var written atomic.Int64
		upstreamGone := make(chan struct{})

		up := newFakeUpstream()
		defer up.Close()
		up.handle("/api/generate", func(w http.ResponseWriter, r *http.Request) {
			defer close(upstreamGone)
			flusher := w.(http.Flusher)
			record := `{"response":"` + strings.Repeat("x", 4096) + `"}` + "\n"
			for r.Context().Err() == nil {
				n, err := io.WriteString(w, record)
				if err != nil {
					return
				}
				written.Add(int64(n))
				flusher.Flush()
			}
		})

		g, driver := newTestGateway(up.URL, func(c *Config) {
			c.ShutdownTimeout = 200 * time.Millisecond
		})

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		go g.RunWithListener(ln)

		conn, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()

		body := `{"prompt":"never read"}`
		_, err = fmt.Fprintf(conn, "POST /api/generate HTTP/1.1\r\nHost: lmgate\r\n"+
			"Content-Type: application/json\r\nContent-Length: %d\r\n\r\n%s", len(body), body)
		Expect(err).NotTo(HaveOccurred())

		// The relay is stuck once every buffer between the upstream and the
		// client is full and the upstream stops making progress.
		Eventually(func() bool {
			before := written.Load()
			time.Sleep(200 * time.Millisecond)
			return before > 0 && written.Load() == before
		}, 20*time.Second).Should(BeTrue())

		closed := make(chan error, 1)
		go func() { closed <- g.Close() }()

		Eventually(closed, 5*time.Second).Should(Receive())
		Eventually(upstreamGone, 5*time.Second).Should(BeClosed())
		Expect(storedRecord(driver).Status).To(Equal(storage.StatusCancelled))
	})
})

var _ = Describe("Gateway model endpoints", func() {
	var (
		g  *Gateway
		up *fakeUpstream
	)

	BeforeEach(func() {
		up = newFakeUpstream()
		g, _ = newTestGateway(up.URL)
	})

	AfterEach(func() {
		g.Close()
		up.Close()
	})

	get := func(path string) *http.Response {
		resp, err := g.server.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	download := func(body string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/api/models/download", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := g.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("GET /api/models", func() {
		It("returns the upstream entries verbatim", func() {
			resp := get("/api/models")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readAll(resp.Body)).To(MatchJSON(
				`{"models":[{"name":"llama2:latest","size":3825819519},{"name":"mistral:7b"}]}`))
		})

		It("returns 500 when the upstream fails", func() {
			up.handle("/api/tags", rawHandler(http.StatusInternalServerError, "down"))

			resp := get("/api/models")
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(readAll(resp.Body)).To(ContainSubstring("down"))
		})
	})

	Describe("POST /api/models/download", func() {
		It("confirms a successful pull", func() {
			resp := download(`{"llm_name":"mistral"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readAll(resp.Body)).To(MatchJSON(`{"message":"Model mistral downloaded successfully"}`))
		})

		It("returns 500 when the upstream reports an error", func() {
			up.handle("/api/pull", ndjsonHandler(`{"status":"pulling manifest"}`, `{"error":"pull model manifest: file does not exist"}`))

			resp := download(`{"llm_name":"nope"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(readAll(resp.Body)).To(ContainSubstring("file does not exist"))
		})

		It("requires llm_name", func() {
			resp := download(`{}`)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("abandons the upstream pull when the request context ends", func() {
			pullEnded := make(chan struct{})
			up.handle("/api/pull", func(w http.ResponseWriter, r *http.Request) {
				defer close(pullEnded)
				w.(http.Flusher).Flush()
				<-r.Context().Done()
			})

			app := fiber.New()
			app.Use(func(c *fiber.Ctx) error {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()
				c.SetUserContext(ctx)
				return c.Next()
			})
			app.Post("/api/models/download", g.handleDownload)

			req := httptest.NewRequest(http.MethodPost, "/api/models/download", strings.NewReader(`{"llm_name":"llama3:70b"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Eventually(pullEnded, 5*time.Second).Should(BeClosed())
		})
	})

	Describe("GET /healthz", func() {
		It("reports the upstream version", func() {
			resp := get("/healthz")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health HealthResponse
			Expect(json.NewDecoder(resp.Body).Decode(&health)).To(Succeed())
			Expect(health.Status).To(Equal("ok"))
			Expect(health.Version).To(Equal("0.5.7"))
			Expect(health.Upstream).To(Equal(up.URL))
		})

		It("returns 503 when the upstream is down", func() {
			up.handle("/api/version", rawHandler(http.StatusBadGateway, ""))

			resp := get("/healthz")
			Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Describe("GET /metrics", func() {
		It("exposes gateway metrics", func() {
			resp, err := g.server.Test(generateRequest(`{"prompt":"hi"}`), -1)
			Expect(err).NotTo(HaveOccurred())
			readAll(resp.Body)

			metricsResp := get("/metrics")
			Expect(metricsResp.StatusCode).To(Equal(http.StatusOK))
			Expect(readAll(metricsResp.Body)).To(ContainSubstring("lmgate_generation_requests_total"))
		})
	})

	Describe("CORS", func() {
		It("allows any origin", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/generate", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			resp, err := g.server.Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})
})
