package scanning

import (
	"context"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("OpenAI", func() {
	var (
		server *ghttp.Server
		client *OpenAI
		reply  string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		client, err = NewOpenAI("test-key", "", server.URL()+"/v1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		reply, err = client.Categorize(context.Background(), "UBER TRIP 18.20")
	})

	When("the API answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/v1/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer test-key"),
				ghttp.RespondWith(http.StatusOK, `{
					"id": "chatcmpl-1",
					"object": "chat.completion",
					"created": 1700000000,
					"model": "gpt-4o-mini",
					"choices": [{
						"index": 0,
						"message": {"role": "assistant", "content": "{\"title\":\"Uber\",\"amount\":18.2,\"category\":\"Transport\"}"},
						"finish_reason": "stop"
					}]
				}`, http.Header{"Content-Type": []string{"application/json"}}),
			))
		})

		It("returns the message content", func() {
			Expect(err).NotTo(HaveOccurred())
			payload := ParsePayload(reply)
			Expect(payload.Status).To(Equal(PayloadWellFormed))
			Expect(payload.Category).To(Equal("Transport"))
		})
	})

	When("the API fails", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError,
				`{"error":{"message":"upstream failure","type":"server_error"}}`,
				http.Header{"Content-Type": []string{"application/json"}}))
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("NewOpenAI", func() {
	It("requires an API key", func() {
		_, err := NewOpenAI("", "", "")
		Expect(err).To(HaveOccurred())
	})
})
