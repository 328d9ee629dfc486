package integration

import (
	"net/http"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/mongoadmin/indexsync/test-integration/indexsync-api/helpers"
)

var _ = Describe("Storage and Lock Backends", Label("containers"), Ordered, func() {
	var (
		mongoURI string
		pgOpts   *helpers.PostgresOptions
		tempDir  string
	)

	BeforeAll(func() {
		tempDir = createTempDir("indexsync-backends-")
		DeferCleanup(cleanupTempDir, tempDir)

		mongoContainer, err := mongodb.Run(ctx, "mongo:7")
		if err != nil {
			Skip("container runtime unavailable: " + err.Error())
		}
		DeferCleanup(func() { _ = tc.TerminateContainer(mongoContainer) })
		mongoURI, err = mongoContainer.ConnectionString(ctx)
		Expect(err).NotTo(HaveOccurred())

		pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("indexsync"),
			postgres.WithUsername("indexsync"),
			postgres.WithPassword("indexsync"),
			postgres.BasicWaitStrategies(),
		)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = tc.TerminateContainer(pgContainer) })

		host, err := pgContainer.Host(ctx)
		Expect(err).NotTo(HaveOccurred())
		port, err := pgContainer.MappedPort(ctx, "5432/tcp")
		Expect(err).NotTo(HaveOccurred())
		pgOpts = &helpers.PostgresOptions{
			Host:         host,
			Port:         port.Int(),
			User:         "indexsync",
			Database:     "indexsync",
			PasswordFile: helpers.WriteSecret(tempDir, "pg-password", "indexsync"),
		}
	})

	runLifecycle := func(opts helpers.ConfigOptions, database string) {
		dir := createTempDir("indexsync-config-")
		defer cleanupTempDir(dir)

		opts.Storage = "mongo"
		opts.MongoURI = mongoURI
		opts.Indexes = map[string][]helpers.Source{"catalog": {{Database: database, Collection: "products"}}}

		serverHelper, err := helpers.NewServerTestHelper(ctx, helpers.WriteConfigYAML(dir, opts))
		Expect(err).NotTo(HaveOccurred())
		Expect(serverHelper.StartServer()).To(Succeed())
		defer func() { Expect(serverHelper.StopServer()).To(Succeed()) }()
		serverHelper.WaitForServerReady(30 * time.Second)

		status, env := serverHelper.Call(http.MethodPost, helpers.DocPath("catalog", database, "products", ""), map[string]any{
			"id":      "p1",
			"content": map[string]any{"name": "kettle", "price": 12.5},
		})
		Expect(status).To(Equal(http.StatusCreated), env.Message)
		serverHelper.WaitForIndexVersion("catalog", database, "products", "p1", 1, 10*time.Second)

		status, env = serverHelper.Call(http.MethodPost, helpers.DocPath("catalog", database, "products", ""), map[string]any{
			"id":      "p1",
			"content": map[string]any{"name": "duplicate"},
		})
		Expect(status).To(Equal(http.StatusBadRequest), env.Message)

		for range 3 {
			status, _ = serverHelper.Call(http.MethodPut, helpers.DocPath("catalog", database, "products", "p1"), map[string]any{
				"updates": map[string]any{"price": 13},
			})
			Expect(status).To(Equal(http.StatusOK))
		}
		serverHelper.WaitForIndexVersion("catalog", database, "products", "p1", 4, 10*time.Second)

		indexed, ok := serverHelper.Engine.Document("catalog", "p1")
		Expect(ok).To(BeTrue())
		Expect(indexed.UpdateVersion).To(Equal(int64(4)))
	}

	It("syncs MongoDB documents with PostgreSQL advisory locks", func() {
		runLifecycle(helpers.ConfigOptions{LockBackend: "postgres", Postgres: pgOpts}, "shop_pg")
	})

	It("syncs MongoDB documents with Redis locks", func() {
		redisServer := miniredis.RunT(GinkgoT())
		runLifecycle(helpers.ConfigOptions{LockBackend: "redis", RedisAddr: redisServer.Addr()}, "shop_redis")
	})

	It("syncs MongoDB documents without locks", func() {
		runLifecycle(helpers.ConfigOptions{LockBackend: "none"}, "shop_unlocked")
	})
})
