package integration

import (
	"encoding/json"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mongoadmin/indexsync/test-integration/indexsync-api/helpers"
)

var _ = Describe("Document Lifecycle", Label("memory"), func() {
	var (
		tempDir      string
		serverHelper *helpers.ServerTestHelper
	)

	products := helpers.DocPath("catalog", "shop", "products", "")
	product := func(id string) string { return helpers.DocPath("catalog", "shop", "products", id) }

	BeforeEach(func() {
		tempDir = createTempDir("indexsync-test-")
		configFile := helpers.WriteConfigYAML(tempDir, helpers.ConfigOptions{
			StatusDir: tempDir + "/status",
			Indexes: map[string][]helpers.Source{
				"catalog": {{Database: "shop", Collection: "products"}, {Database: "shop", Collection: "bundles"}},
			},
		})

		var err error
		serverHelper, err = helpers.NewServerTestHelper(ctx, configFile)
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		Expect(serverHelper.StopServer()).To(Succeed())
		cleanupTempDir(tempDir)
	})

	It("indexes created and updated documents", func() {
		status, env := serverHelper.Call(http.MethodPost, products, map[string]any{
			"id":      "p1",
			"content": map[string]any{"name": "red kettle", "tags": []string{"kitchen"}},
		})
		Expect(status).To(Equal(http.StatusCreated))
		Expect(env.Code).To(Equal(0))

		serverHelper.WaitForIndexVersion("catalog", "shop", "products", "p1", 1, 5*time.Second)
		indexed, ok := serverHelper.Engine.Document("catalog", "p1")
		Expect(ok).To(BeTrue())
		Expect(indexed.Source.CollName).To(Equal("products"))

		status, _ = serverHelper.Call(http.MethodPut, product("p1"), map[string]any{
			"updates": map[string]any{"name": "blue kettle"},
		})
		Expect(status).To(Equal(http.StatusOK))
		serverHelper.WaitForIndexVersion("catalog", "shop", "products", "p1", 2, 5*time.Second)

		status, env = serverHelper.Call(http.MethodPost, "/v1/indexes/catalog/search", map[string]any{"query": "blue"})
		Expect(status).To(Equal(http.StatusOK))
		var result struct {
			Total int64 `json:"total"`
		}
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Total).To(Equal(int64(1)))
	})

	It("removes deleted documents from the index", func() {
		status, _ := serverHelper.Call(http.MethodPost, products, map[string]any{
			"id":      "p2",
			"content": map[string]any{"name": "teapot"},
		})
		Expect(status).To(Equal(http.StatusCreated))
		serverHelper.WaitForIndexVersion("catalog", "shop", "products", "p2", 1, 5*time.Second)

		status, _ = serverHelper.Call(http.MethodDelete, product("p2"), nil)
		Expect(status).To(Equal(http.StatusOK))

		Eventually(func() bool {
			_, ok := serverHelper.Engine.Document("catalog", "p2")
			return ok
		}, 5*time.Second, 100*time.Millisecond).Should(BeFalse())
	})

	It("reports unknown documents and indexes", func() {
		status, env := serverHelper.Call(http.MethodGet, product("missing"), nil)
		Expect(status).To(Equal(http.StatusNotFound))
		Expect(env.Code).To(Equal(-1))

		status, env = serverHelper.Call(http.MethodGet, "/v1/indexes/orders/stats", nil)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(env.Message).To(ContainSubstring("orders"))

		status, env = serverHelper.Call(http.MethodPut, product("p1"), map[string]any{"updates": map[string]any{}})
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(env.Code).To(Equal(-5))
	})

	It("rebuilds the whole index on request", func() {
		for _, id := range []string{"a", "b", "c"} {
			status, _ := serverHelper.Call(http.MethodPost, products, map[string]any{
				"id":      id,
				"content": map[string]any{"name": id},
			})
			Expect(status).To(Equal(http.StatusCreated))
		}
		Eventually(func() int {
			return serverHelper.Engine.Len("catalog")
		}, 5*time.Second, 100*time.Millisecond).Should(Equal(3))

		status, env := serverHelper.Call(http.MethodPost, "/v1/indexes/catalog/rebuild?mode=full", nil)
		Expect(status).To(Equal(http.StatusOK))
		var result struct {
			Mode    string `json:"mode"`
			Visited int64  `json:"visited"`
		}
		Expect(json.Unmarshal(env.Data, &result)).To(Succeed())
		Expect(result.Mode).To(Equal("full"))
		Expect(result.Visited).To(Equal(int64(3)))

		Eventually(func() int {
			return serverHelper.Engine.Len("catalog")
		}, 5*time.Second, 100*time.Millisecond).Should(Equal(3))
	})
})
