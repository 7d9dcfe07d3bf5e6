package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lodestarhq/aide/pkg/llm/provider"
	"github.com/lodestarhq/aide/pkg/llm/provider/utils"
)

var _ = Describe("NewClient", func() {
	It("defaults to the local ollama backend", func() {
		c, err := utils.NewClient(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name()).To(Equal(provider.Ollama))
	})

	It("builds each supported backend", func() {
		for _, kind := range provider.SupportedClients() {
			c, err := utils.NewClient(&utils.NewClientOpts{Kind: kind, APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Name()).To(Equal(kind))
		}
	})

	It("rejects unknown backends", func() {
		_, err := utils.NewClient(&utils.NewClientOpts{Kind: "watson"})
		Expect(err).To(MatchError(ContainSubstring("watson")))
	})
})
