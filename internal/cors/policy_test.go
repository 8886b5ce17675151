package cors_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/ehr-gateway/internal/cors"
)

var _ = Describe("Policy", func() {
	origins := []string{"http://localhost:5173", "http://127.0.0.1:3000/"}

	DescribeTable("Evaluate",
		func(mode cors.Mode, origin string, expected cors.Decision) {
			policy := cors.NewPolicy(cors.Config{Mode: mode, AllowedOrigins: origins})
			Expect(policy.Evaluate(origin)).To(Equal(expected))
		},
		Entry("strict, listed origin", cors.ModeStrict, "http://localhost:5173",
			cors.Decision{Allowed: true, AllowedOrigin: "http://localhost:5173", Listed: true}),
		Entry("strict, listed origin with trailing slash in config", cors.ModeStrict, "http://127.0.0.1:3000",
			cors.Decision{Allowed: true, AllowedOrigin: "http://127.0.0.1:3000", Listed: true}),
		Entry("strict, unlisted origin", cors.ModeStrict, "https://evil.example",
			cors.Decision{}),
		Entry("strict, case differs", cors.ModeStrict, "http://LOCALHOST:5173",
			cors.Decision{}),
		Entry("strict, no origin", cors.ModeStrict, "",
			cors.Decision{Allowed: true}),
		Entry("permissive, unlisted origin", cors.ModePermissive, "https://evil.example",
			cors.Decision{Allowed: true, AllowedOrigin: "https://evil.example"}),
		Entry("permissive, listed origin", cors.ModePermissive, "http://localhost:5173",
			cors.Decision{Allowed: true, AllowedOrigin: "http://localhost:5173", Listed: true}),
		Entry("unknown mode falls back to strict", cors.Mode("open"), "https://evil.example",
			cors.Decision{}),
	)

	It("should report its effective mode", func() {
		Expect(cors.NewPolicy(cors.Config{}).Mode()).To(Equal(cors.ModeStrict))
		Expect(cors.NewPolicy(cors.Config{Mode: cors.ModePermissive}).Mode()).To(Equal(cors.ModePermissive))
	})
})
