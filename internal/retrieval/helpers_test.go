package retrieval

import "github.com/contosowiki/sage/internal/config"

func testConfig() *config.Config {
	return &config.Config{
		Retrieval: config.RetrievalConfig{
			K:               25,
			Cap:             10,
			PrecisionFloors: []float64{0.75, 0.50, 0.30},
			MinScoreVector:  0.20,
			MaxPerDocument:  2,
			NearDupJaccard:  0.85,
		},
	}
}
