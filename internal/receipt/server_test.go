package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-extractor/internal/enhance"
)

// uploadBody builds a multipart body with a single "file" part
func uploadBody(filename, contentType string, data []byte) (*bytes.Buffer, string) {
	var b bytes.Buffer
	writer := multipart.NewWriter(&b)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, _ := writer.CreatePart(h)
	part.Write(data)
	writer.Close()
	return &b, writer.FormDataContentType()
}

var _ = Describe("Server", func() {
	var (
		storage     *mockStorage
		enhancer    *mockEnhancer
		model       *mockModel
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		storage = newMockStorage()
		enhancer = newMockEnhancer()
		model = newMockModel("MARKET", marketReply)
	})

	JustBeforeEach(func() {
		timeSrc := &mockTimeSource{
			now:  time.Date(2024, 3, 5, 14, 30, 15, 0, time.UTC),
			step: time.Second,
		}
		service := NewServiceWithDeps(enhancer, model, storage, ServiceOptions{}, &mockIDGenerator{id: "req-1"}, timeSrc)
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	Describe("handleIndex", func() {
		It("should return the upload page", func() {
			resp, err := http.Get(ghttpServer.URL() + "/")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(ContainSubstring("text/html"))
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(ContainSubstring("/api/analyze"))
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp, err := http.Post(ghttpServer.URL()+"/", "text/plain", nil)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
			})
		})
	})

	Describe("handleHealth", func() {
		It("should return ok", func() {
			resp, err := http.Get(ghttpServer.URL() + "/healthz")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			Expect(string(body)).To(Equal("ok"))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/analyze", nil)
			Expect(err).NotTo(HaveOccurred())
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("handleAnalyze", func() {
		When("analysis succeeds", func() {
			It("should return the analysis as JSON", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()

				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(resp.Header.Get("Content-Disposition")).To(BeEmpty())

				var got map[string]any
				Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
				Expect(got).To(HaveKeyWithValue("id", "req-1"))
				Expect(got).To(HaveKeyWithValue("type", "MARKET"))
				Expect(got).To(HaveKeyWithValue("processing_time", 1.0))
				Expect(got["data"]).To(HaveKeyWithValue("items", ConsistOf(map[string]any{"name": "Bread", "price": "3.00"})))
			})
		})

		When("a download is requested", func() {
			It("should set a timestamped attachment name", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze?download=1", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.Header.Get("Content-Disposition")).To(Equal(`attachment; filename="receipt_analysis_20240305_143016.json"`))
			})
		})

		When("no file is provided", func() {
			It("should return status Bad Request", func() {
				var b bytes.Buffer
				writer := multipart.NewWriter(&b)
				writer.WriteField("other", "value")
				writer.Close()

				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", writer.FormDataContentType(), &b)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var got map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
				Expect(got["error"]).To(ContainSubstring("No file"))
			})
		})

		When("the body is not a multipart form", func() {
			It("should return status Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", "text/plain", bytes.NewBufferString("hello"))
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			})
		})

		When("the upload cannot be decoded", func() {
			BeforeEach(func() {
				enhancer.err = &enhance.DecodeError{Err: errors.New("unknown format")}
			})

			It("should return status Unsupported Media Type", func() {
				body, contentType := uploadBody("notes.txt", "text/plain", []byte("hello"))
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnsupportedMediaType))
			})
		})

		When("the receipt type is not recognized", func() {
			BeforeEach(func() {
				model = newMockModel("UNKNOWN")
			})

			It("should return status Unprocessable Entity", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

				var got map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&got)).To(Succeed())
				Expect(got["error"]).To(ContainSubstring("UNKNOWN"))
			})
		})

		When("the model fails", func() {
			BeforeEach(func() {
				model.errs = []error{errors.New("upstream down")}
			})

			It("should return status Bad Gateway", func() {
				body, contentType := uploadBody("receipt.jpg", "image/jpeg", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/analyze", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
			})
		})
	})

	Describe("handleEnhance", func() {
		It("should return a PNG", func() {
			body, contentType := uploadBody("receipt.png", "image/png", []byte("fake image data"))
			resp, err := http.Post(ghttpServer.URL()+"/api/enhance", contentType, body)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			Expect(model.prompts).To(BeEmpty())
		})

		When("enhancing fails", func() {
			BeforeEach(func() {
				enhancer.err = &enhance.ProcessingError{Step: "threshold", Err: errors.New("boom")}
			})

			It("should return status Unprocessable Entity", func() {
				body, contentType := uploadBody("receipt.png", "image/png", []byte("fake image data"))
				resp, err := http.Post(ghttpServer.URL()+"/api/enhance", contentType, body)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			})
		})
	})
})

var _ = Describe("statusFor", func() {
	DescribeTable("maps errors to status codes",
		func(err error, expected int) {
			Expect(statusFor(err)).To(Equal(expected))
		},
		Entry("decode", &enhance.DecodeError{Err: errors.New("x")}, http.StatusUnsupportedMediaType),
		Entry("processing", &enhance.ProcessingError{Step: "open", Err: errors.New("x")}, http.StatusUnprocessableEntity),
		Entry("unrecognized type", ErrUnrecognizedType, http.StatusUnprocessableEntity),
		Entry("malformed reply", ErrMalformedReply, http.StatusBadGateway),
		Entry("model", ErrModel, http.StatusBadGateway),
		Entry("timeout", ErrTimeout, http.StatusGatewayTimeout),
		Entry("anything else", errors.New("x"), http.StatusInternalServerError),
	)
})

var _ = Describe("contentTypeFor", func() {
	DescribeTable("falls back to the extension",
		func(filename, header, expected string) {
			fh := &multipart.FileHeader{Filename: filename, Header: textproto.MIMEHeader{}}
			if header != "" {
				fh.Header.Set("Content-Type", header)
			}
			Expect(contentTypeFor(fh)).To(Equal(expected))
		},
		Entry("declared type", "a.bin", "image/jpeg", "image/jpeg"),
		Entry("octet-stream jpg", "a.JPG", "application/octet-stream", "image/jpeg"),
		Entry("missing pdf", "a.pdf", "", "application/pdf"),
		Entry("missing heic", "a.heic", "", "image/heic"),
		Entry("unknown", "a.txt", "", "application/octet-stream"),
	)
})
