package scanning

import (
	"context"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		client *Ollama
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		var err error
		client, err = NewOllama(server.URL(), "llava", "llama3.1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Recognize", func() {
		var (
			recognition *Recognition
			progress    []int
			err         error
		)

		JustBeforeEach(func() {
			progress = nil
			recognition, err = client.Recognize(context.Background(), testPNG(), "image/png", func(p int) {
				progress = append(progress, p)
			})
		})

		When("the model streams text", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
					func(w http.ResponseWriter, r *http.Request) {
						var req ollamaChatRequest
						Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
						Expect(req.Model).To(Equal("llava"))
						Expect(req.Stream).To(BeTrue())
						Expect(req.Messages).To(HaveLen(2))
						Expect(req.Messages[1].Images).To(HaveLen(1))
					},
					ghttp.RespondWith(http.StatusOK,
						`{"message":{"role":"assistant","content":"WALMART\n"},"done":false}`+"\n"+
							`{"message":{"role":"assistant","content":"TOTAL 12.50"},"done":true}`+"\n"),
				))
			})

			It("returns the concatenated text", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(recognition.Text).To(Equal("WALMART\nTOTAL 12.50"))
			})

			It("reports monotonic progress ending at 100", func() {
				Expect(progress).To(Equal([]int{0, 20, 30, 35, 40, 100}))
			})
		})

		When("the stream carries an error", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"error":"model not found"}`+"\n"))
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("model not found")))
			})
		})

		When("the API returns a non-200 status", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "boom"))
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("status 500")))
			})
		})
	})

	Describe("Categorize", func() {
		var (
			reply string
			err   error
		)

		JustBeforeEach(func() {
			reply, err = client.Categorize(context.Background(), "WALMART TOTAL 12.50")
		})

		When("the model answers", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.CombineHandlers(
					ghttp.VerifyRequest(http.MethodPost, "/api/generate"),
					func(w http.ResponseWriter, r *http.Request) {
						var req ollamaGenerateRequest
						Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
						Expect(req.Model).To(Equal("llama3.1"))
						Expect(req.Format).To(Equal("json"))
						Expect(req.Prompt).To(Equal("WALMART TOTAL 12.50"))
						Expect(req.System).To(ContainSubstring(`"Entertainment"`))
					},
					ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaGenerateResponse{
						Model:    "llama3.1",
						Response: `{"title":"Walmart","amount":12.5,"category":"Food"}`,
						Done:     true,
					}),
				))
			})

			It("returns the raw reply", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(ParsePayload(reply).Title).To(Equal("Walmart"))
			})
		})

		When("the reply is empty", func() {
			BeforeEach(func() {
				server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaGenerateResponse{Done: true}))
			})

			It("returns an error", func() {
				Expect(err).To(MatchError(ContainSubstring("empty response")))
			})
		})
	})
})
